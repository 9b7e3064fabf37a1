package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/btpflow/worksite_backend/config"
	"github.com/btpflow/worksite_backend/models"
	"github.com/btpflow/worksite_backend/utils"
)

func TestCreateSiteRequiresAdmin(t *testing.T) {
	chef, chefCtx := seedChef(t)

	_, err := models.CreateSite(chefCtx, &models.NewSite{Name: "Unauthorized", ChiefId: chef.ID})
	if !errors.Is(err, utils.ErrorForbidden) {
		t.Fatalf("err = %v, want ErrorForbidden", err)
	}
}

func TestChiefCanUpdateStatusAndProgress(t *testing.T) {
	chef, chefCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)

	status := models.SiteStatusInProgress
	progress := 40
	updated, err := models.UpdateSite(chefCtx, site.ID, &models.UpdateSiteInput{
		Status:   &status,
		Progress: &progress,
	})
	if err != nil {
		t.Fatalf("UpdateSite: %v", err)
	}

	var after models.Site
	if err := config.GetDB().First(&after, updated.ID).Error; err != nil {
		t.Fatalf("reload site: %v", err)
	}
	if after.Status != models.SiteStatusInProgress || after.Progress != 40 {
		t.Fatalf("update not applied: status=%s progress=%d", after.Status, after.Progress)
	}
}

// A chief request mixing an allowed field with a privileged one is rejected
// wholesale; nothing is applied.
func TestChiefMixedUpdateRejectedWholesale(t *testing.T) {
	chef, chefCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)

	status := models.SiteStatusInProgress
	name := "Renamed by chief"
	_, err := models.UpdateSite(chefCtx, site.ID, &models.UpdateSiteInput{
		Status: &status,
		Name:   &name,
	})
	if !errors.Is(err, utils.ErrorForbidden) {
		t.Fatalf("err = %v, want ErrorForbidden", err)
	}

	var after models.Site
	if err := config.GetDB().First(&after, site.ID).Error; err != nil {
		t.Fatalf("reload site: %v", err)
	}
	if after.Status != site.Status || after.Name != site.Name {
		t.Fatal("rejected update must not be partially applied")
	}
}

func TestChiefCannotUpdateOtherSite(t *testing.T) {
	chef, _ := seedChef(t)
	_, otherChefCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)

	status := models.SiteStatusPaused
	_, err := models.UpdateSite(otherChefCtx, site.ID, &models.UpdateSiteInput{Status: &status})
	if !errors.Is(err, utils.ErrorForbidden) {
		t.Fatalf("err = %v, want ErrorForbidden", err)
	}
}

func TestGetSitesVisibility(t *testing.T) {
	chefA, chefACtx := seedChef(t)
	chefB, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	siteA := seedSite(t, adminCtx, chefA.ID)
	seedSite(t, adminCtx, chefB.ID)

	mine, err := models.GetSites(chefACtx, nil, nil)
	if err != nil {
		t.Fatalf("GetSites: %v", err)
	}
	for _, site := range mine {
		if site.ChiefId != chefA.ID {
			t.Fatalf("chef sees site %d owned by chief %d", site.ID, site.ChiefId)
		}
	}
	found := false
	for _, site := range mine {
		if site.ID == siteA.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("chef does not see their own site")
	}
}

func TestGetSiteForbiddenForOtherChef(t *testing.T) {
	chef, _ := seedChef(t)
	_, otherChefCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)

	_, err := models.GetSite(otherChefCtx, site.ID)
	if !errors.Is(err, utils.ErrorForbidden) {
		t.Fatalf("err = %v, want ErrorForbidden", err)
	}
}

func TestDeleteSiteForceReturnsRoster(t *testing.T) {
	chef, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	if _, err := models.AssignEquipment(adminCtx, site.ID, equipment.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := models.DeleteSite(adminCtx, site.ID); err != nil {
		t.Fatalf("DeleteSite: %v", err)
	}

	after := fetchEquipment(t, equipment.ID)
	if after.Status != models.EquipmentStatusAvailable || after.CurrentSiteId != nil {
		t.Fatalf("unit still pinned to deleted site: status=%s site=%v", after.Status, after.CurrentSiteId)
	}
	var count int64
	if err := config.GetDB().Model(&models.Site{}).Where("id = ?", site.ID).Count(&count).Error; err != nil {
		t.Fatalf("count sites: %v", err)
	}
	if count != 0 {
		t.Fatal("site not deleted")
	}
}

func TestAddRosterEntryIdempotentForSameDate(t *testing.T) {
	chef, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	date := time.Now()
	first, err := models.AddRosterEntry(adminCtx, site.ID, equipment.ID, date)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	second, err := models.AddRosterEntry(adminCtx, site.ID, equipment.ID, date)
	if err != nil {
		t.Fatalf("retry add: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("retry created a second entry: %d then %d", first.ID, second.ID)
	}

	_, err = models.AddRosterEntry(adminCtx, site.ID, equipment.ID, date.Add(24*time.Hour))
	if !errors.Is(err, utils.ErrorAlreadyOpenHere) {
		t.Fatalf("err = %v, want ErrorAlreadyOpenHere", err)
	}
}
