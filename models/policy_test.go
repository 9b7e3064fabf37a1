package models_test

import (
	"testing"

	"github.com/btpflow/worksite_backend/models"
)

func TestSitePolicyPredicates(t *testing.T) {
	admin := models.Principal{ID: 1, Role: models.UserRoleAdmin}
	chief := models.Principal{ID: 2, Role: models.UserRoleChef}
	other := models.Principal{ID: 3, Role: models.UserRoleChef}
	site := &models.Site{ID: 10, ChiefId: chief.ID}

	if !models.CanCreateSite(admin) || models.CanCreateSite(chief) {
		t.Fatal("site creation is admin only")
	}
	if !models.CanViewSite(admin, site) || !models.CanViewSite(chief, site) || models.CanViewSite(other, site) {
		t.Fatal("site visibility: admin and responsible chief only")
	}
	if !models.CanDeleteSite(chief, site) || models.CanDeleteSite(other, site) {
		t.Fatal("site deletion: admin or responsible chief")
	}
	if !models.CanManageRoster(chief, site) || models.CanManageRoster(other, site) {
		t.Fatal("roster management: admin or responsible chief")
	}
}

func TestSiteUpdatePolicyFieldRules(t *testing.T) {
	admin := models.Principal{ID: 1, Role: models.UserRoleAdmin}
	chief := models.Principal{ID: 2, Role: models.UserRoleChef}
	site := &models.Site{ID: 10, ChiefId: chief.ID}

	if !models.CanUpdateSite(admin, site, []string{"name", "chief_id", "budget_estimated"}) {
		t.Fatal("admin may touch any field")
	}
	if !models.CanUpdateSite(chief, site, []string{"status", "progress"}) {
		t.Fatal("chief may touch status and progress on their own site")
	}
	if models.CanUpdateSite(chief, site, []string{"status", "name"}) {
		t.Fatal("a mixed patch is rejected wholesale")
	}
	if models.CanUpdateSite(chief, site, []string{"chief_id"}) {
		t.Fatal("chief may not reassign the site")
	}
}

func TestEquipmentAndReportPolicy(t *testing.T) {
	admin := models.Principal{ID: 1, Role: models.UserRoleAdmin}
	chief := models.Principal{ID: 2, Role: models.UserRoleChef}

	if !models.CanCreateEquipment(admin) || models.CanCreateEquipment(chief) {
		t.Fatal("equipment management is admin only")
	}
	if !models.CanViewEquipment(chief) {
		t.Fatal("the inventory is globally visible")
	}
	if !models.CanUpdateReportStatus(admin) || models.CanUpdateReportStatus(chief) {
		t.Fatal("the review workflow is admin only")
	}

	report := &models.Report{ID: 5, CreatedById: chief.ID}
	if !models.CanDeleteReport(chief, report) {
		t.Fatal("creator may delete their report")
	}
	if models.CanDeleteReport(models.Principal{ID: 9, Role: models.UserRoleChef}, report) {
		t.Fatal("unrelated chef may not delete the report")
	}
}
