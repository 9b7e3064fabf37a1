package models_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btpflow/worksite_backend/config"
	"github.com/btpflow/worksite_backend/models"
	"github.com/btpflow/worksite_backend/utils"
	"github.com/shopspring/decimal"
)

func openEntryCount(t *testing.T, siteId int, equipmentId int) int64 {
	t.Helper()
	db := config.GetDB()
	var count int64
	err := db.Model(&models.RosterEntry{}).
		Where("site_id = ? AND equipment_id = ? AND return_date IS NULL", siteId, equipmentId).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count open entries: %v", err)
	}
	return count
}

func fetchEquipment(t *testing.T, id int) *models.Equipment {
	t.Helper()
	db := config.GetDB()
	var equipment models.Equipment
	if err := db.First(&equipment, id).Error; err != nil {
		t.Fatalf("fetch equipment: %v", err)
	}
	return &equipment
}

func TestAssignEquipment(t *testing.T) {
	chef, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	result, err := models.AssignEquipment(adminCtx, site.ID, equipment.ID)
	if err != nil {
		t.Fatalf("AssignEquipment: %v", err)
	}
	if result.Equipment.Status != models.EquipmentStatusInUse {
		t.Fatalf("status = %s, want InUse", result.Equipment.Status)
	}
	if result.Equipment.CurrentSiteId == nil || *result.Equipment.CurrentSiteId != site.ID {
		t.Fatalf("current_site_id = %v, want %d", result.Equipment.CurrentSiteId, site.ID)
	}
	if result.RosterEntry == nil || !result.RosterEntry.IsOpen() {
		t.Fatalf("expected an open roster entry, got %+v", result.RosterEntry)
	}
	if n := openEntryCount(t, site.ID, equipment.ID); n != 1 {
		t.Fatalf("open entries = %d, want 1", n)
	}

	// the usage history row opens with the assignment
	db := config.GetDB()
	var usage models.EquipmentUsage
	err = db.Where("equipment_id = ? AND site_id = ? AND end_date IS NULL", equipment.ID, site.ID).
		First(&usage).Error
	if err != nil {
		t.Fatalf("expected an open usage row: %v", err)
	}
}

func TestAssignEquipmentAlreadyAssigned(t *testing.T) {
	chef, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	siteA := seedSite(t, adminCtx, chef.ID)
	siteB := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	if _, err := models.AssignEquipment(adminCtx, siteA.ID, equipment.ID); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	_, err := models.AssignEquipment(adminCtx, siteB.ID, equipment.ID)
	if !errors.Is(err, utils.ErrorAlreadyAssigned) {
		t.Fatalf("err = %v, want ErrorAlreadyAssigned", err)
	}
	// the loser wrote nothing
	if n := openEntryCount(t, siteB.ID, equipment.ID); n != 0 {
		t.Fatalf("open entries at losing site = %d, want 0", n)
	}
}

func TestAssignEquipmentUnderHold(t *testing.T) {
	chef, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	hold := models.EquipmentStatusMaintenance
	if _, err := models.UpdateEquipment(adminCtx, equipment.ID, &models.UpdateEquipmentInput{Status: &hold}); err != nil {
		t.Fatalf("set maintenance: %v", err)
	}

	_, err := models.AssignEquipment(adminCtx, site.ID, equipment.ID)
	if !errors.Is(err, utils.ErrorNotAssignable) {
		t.Fatalf("err = %v, want ErrorNotAssignable", err)
	}
}

func TestAssignEquipmentForbiddenForOtherChef(t *testing.T) {
	chef, _ := seedChef(t)
	_, otherChefCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	_, err := models.AssignEquipment(otherChefCtx, site.ID, equipment.ID)
	if !errors.Is(err, utils.ErrorForbidden) {
		t.Fatalf("err = %v, want ErrorForbidden", err)
	}
	if fetchEquipment(t, equipment.ID).Status != models.EquipmentStatusAvailable {
		t.Fatal("denied assign must not change equipment state")
	}
}

func TestReturnEquipmentAccruesHours(t *testing.T) {
	chef, chefCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	result, err := models.AssignEquipment(chefCtx, site.ID, equipment.ID)
	if err != nil {
		t.Fatalf("AssignEquipment: %v", err)
	}

	// backdate the stay two days
	db := config.GetDB()
	start := time.Now().Add(-48 * time.Hour)
	if err := db.Model(&models.EquipmentUsage{}).
		Where("equipment_id = ? AND end_date IS NULL", equipment.ID).
		Update("start_date", start).Error; err != nil {
		t.Fatalf("backdate usage: %v", err)
	}

	returned, err := models.ReturnEquipment(chefCtx, site.ID, result.RosterEntry.ID)
	if err != nil {
		t.Fatalf("ReturnEquipment: %v", err)
	}
	if returned.Equipment.Status != models.EquipmentStatusAvailable {
		t.Fatalf("status = %s, want Available", returned.Equipment.Status)
	}
	if returned.Equipment.CurrentSiteId != nil {
		t.Fatalf("current_site_id = %v, want nil", returned.Equipment.CurrentSiteId)
	}
	if returned.RosterEntry.ReturnDate == nil {
		t.Fatal("roster entry not closed")
	}
	if returned.Equipment.TotalHours.LessThan(decimal.NewFromInt(47)) {
		t.Fatalf("total_hours = %s, want roughly 48", returned.Equipment.TotalHours)
	}
}

func TestReturnEquipmentAlreadyClosed(t *testing.T) {
	chef, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	result, err := models.AssignEquipment(adminCtx, site.ID, equipment.ID)
	if err != nil {
		t.Fatalf("AssignEquipment: %v", err)
	}
	if _, err := models.ReturnEquipment(adminCtx, site.ID, result.RosterEntry.ID); err != nil {
		t.Fatalf("first return: %v", err)
	}
	_, err = models.ReturnEquipment(adminCtx, site.ID, result.RosterEntry.ID)
	if !errors.Is(err, utils.ErrorAlreadyClosed) {
		t.Fatalf("err = %v, want ErrorAlreadyClosed", err)
	}
}

func TestReassignEquipment(t *testing.T) {
	chef, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	siteA := seedSite(t, adminCtx, chef.ID)
	siteB := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	if _, err := models.AssignEquipment(adminCtx, siteA.ID, equipment.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	result, err := models.ReassignEquipment(adminCtx, equipment.ID, siteA.ID, siteB.ID)
	if err != nil {
		t.Fatalf("ReassignEquipment: %v", err)
	}
	if result.Equipment.CurrentSiteId == nil || *result.Equipment.CurrentSiteId != siteB.ID {
		t.Fatalf("current_site_id = %v, want %d", result.Equipment.CurrentSiteId, siteB.ID)
	}
	if n := openEntryCount(t, siteA.ID, equipment.ID); n != 0 {
		t.Fatalf("old site still has %d open entries", n)
	}
	if n := openEntryCount(t, siteB.ID, equipment.ID); n != 1 {
		t.Fatalf("new site open entries = %d, want 1", n)
	}
}

func TestConcurrentAssignSingleWinner(t *testing.T) {
	chef, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	siteA := seedSite(t, adminCtx, chef.ID)
	siteB := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	targets := []int{siteA.ID, siteB.ID}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = models.AssignEquipment(adminCtx, targets[i], equipment.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, utils.ErrorAlreadyAssigned) {
			t.Fatalf("loser err = %v, want ErrorAlreadyAssigned", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	if n := openEntryCount(t, siteA.ID, equipment.ID) + openEntryCount(t, siteB.ID, equipment.ID); n != 1 {
		t.Fatalf("total open entries = %d, want 1", n)
	}
}

func TestAssignEquipmentPartialFailureReverts(t *testing.T) {
	chef, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	// divergent leftover: an open roster entry with an older date, while the
	// unit itself is free. Step A will succeed, step B will keep refusing.
	db := config.GetDB()
	stale := models.RosterEntry{
		SiteId:       site.ID,
		EquipmentId:  equipment.ID,
		AssignedDate: time.Now().Add(-72 * time.Hour),
	}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatalf("seed stale entry: %v", err)
	}

	_, err := models.AssignEquipment(adminCtx, site.ID, equipment.ID)
	if !errors.Is(err, utils.ErrorPartialFailure) {
		t.Fatalf("err = %v, want ErrorPartialFailure", err)
	}

	// the equipment write was reverted
	after := fetchEquipment(t, equipment.ID)
	if after.Status != models.EquipmentStatusAvailable || after.CurrentSiteId != nil {
		t.Fatalf("equipment not reverted: status=%s site=%v", after.Status, after.CurrentSiteId)
	}
}

func TestReconcileHealsHalfDoneAssign(t *testing.T) {
	chef, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	// unit pinned with an open usage row but no roster entry
	db := config.GetDB()
	start := time.Now().Add(-6 * time.Hour)
	if err := db.Model(&models.Equipment{}).Where("id = ?", equipment.ID).Updates(map[string]interface{}{
		"Status":        models.EquipmentStatusInUse,
		"CurrentSiteId": site.ID,
	}).Error; err != nil {
		t.Fatalf("seed pinned unit: %v", err)
	}
	usage := models.EquipmentUsage{EquipmentId: equipment.ID, SiteId: site.ID, StartDate: start}
	if err := db.Create(&usage).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	if _, err := models.GetEquipment(adminCtx, equipment.ID); err != nil {
		t.Fatalf("GetEquipment: %v", err)
	}

	if n := openEntryCount(t, site.ID, equipment.ID); n != 1 {
		t.Fatalf("open entries after reconcile = %d, want 1", n)
	}
	var entry models.RosterEntry
	if err := db.Where("site_id = ? AND equipment_id = ? AND return_date IS NULL", site.ID, equipment.ID).
		First(&entry).Error; err != nil {
		t.Fatalf("fetch healed entry: %v", err)
	}
	if entry.AssignedDate.Sub(start).Abs() > time.Minute {
		t.Fatalf("healed entry date = %v, want the recorded start %v", entry.AssignedDate, start)
	}
}

func TestReconcileHealsHalfDoneReturn(t *testing.T) {
	chef, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	// a Return closed the roster entry but the unit write was lost
	db := config.GetDB()
	start := time.Now().Add(-24 * time.Hour)
	end := time.Now().Add(-time.Hour)
	if err := db.Model(&models.Equipment{}).Where("id = ?", equipment.ID).Updates(map[string]interface{}{
		"Status":        models.EquipmentStatusInUse,
		"CurrentSiteId": site.ID,
	}).Error; err != nil {
		t.Fatalf("seed pinned unit: %v", err)
	}
	usage := models.EquipmentUsage{EquipmentId: equipment.ID, SiteId: site.ID, StartDate: start}
	if err := db.Create(&usage).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}
	closed := models.RosterEntry{
		SiteId:       site.ID,
		EquipmentId:  equipment.ID,
		AssignedDate: start,
		ReturnDate:   &end,
	}
	if err := db.Create(&closed).Error; err != nil {
		t.Fatalf("seed closed entry: %v", err)
	}

	if _, err := models.GetEquipment(adminCtx, equipment.ID); err != nil {
		t.Fatalf("GetEquipment: %v", err)
	}

	after := fetchEquipment(t, equipment.ID)
	if after.Status != models.EquipmentStatusAvailable || after.CurrentSiteId != nil {
		t.Fatalf("unit not released: status=%s site=%v", after.Status, after.CurrentSiteId)
	}
}

// Reading the site heals a half-done transition too, so divergence is
// caught from either aggregate.
func TestSiteReadHealsHalfDoneAssign(t *testing.T) {
	chef, _ := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	// unit pinned with an open usage row but no roster entry
	db := config.GetDB()
	start := time.Now().Add(-3 * time.Hour)
	if err := db.Model(&models.Equipment{}).Where("id = ?", equipment.ID).Updates(map[string]interface{}{
		"Status":        models.EquipmentStatusInUse,
		"CurrentSiteId": site.ID,
	}).Error; err != nil {
		t.Fatalf("seed pinned unit: %v", err)
	}
	usage := models.EquipmentUsage{EquipmentId: equipment.ID, SiteId: site.ID, StartDate: start}
	if err := db.Create(&usage).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	loaded, err := models.GetSite(adminCtx, site.ID)
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}

	if n := openEntryCount(t, site.ID, equipment.ID); n != 1 {
		t.Fatalf("open entries after site read = %d, want 1", n)
	}
	found := false
	for _, entry := range loaded.Equipment {
		if entry.EquipmentId == equipment.ID && entry.ReturnDate == nil {
			found = true
		}
	}
	if !found {
		t.Fatal("healed entry missing from the returned roster")
	}
}
