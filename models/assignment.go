package models

import (
	"context"
	"errors"
	"time"

	"github.com/btpflow/worksite_backend/config"
	"github.com/btpflow/worksite_backend/utils"
	"github.com/google/uuid"
)

const assignmentModule = "assignment"

// AssignmentResult bundles the two sides of a completed transition.
type AssignmentResult struct {
	Equipment   *Equipment   `json:"equipment"`
	RosterEntry *RosterEntry `json:"roster_entry"`
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// AssignEquipment drives the two-aggregate assign sequence.
//
// The Equipment side is written first: a unit that shows as in-use with no
// roster entry is a conservative failure (it cannot be double-booked),
// while the reverse order could leave a roster entry pointing at a unit
// still marked available. Step B gets one bounded retry with the already
// recorded date; if it still fails, step A is reverted and PartialFailure
// is surfaced so the caller can retry the whole operation.
func AssignEquipment(ctx context.Context, siteId int, equipmentId int) (*AssignmentResult, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	site, err := utils.FetchModel[Site](ctx, siteId)
	if err != nil {
		return nil, err
	}
	if !CanManageRoster(principal, site) {
		return nil, utils.ErrorForbidden
	}

	equipment, err := utils.FetchModel[Equipment](ctx, equipmentId)
	if err != nil {
		return nil, err
	}
	// Early rejections; the authoritative check is the compare-and-set in
	// SetAssignmentState, so two racing assigns cannot both pass here and
	// both succeed below.
	if equipment.Status.IsAdministrativeHold() {
		return nil, utils.ErrorNotAssignable
	}
	if equipment.CurrentSiteId != nil {
		return nil, utils.ErrorAlreadyAssigned
	}

	release, err := utils.EquipmentLock(ctx, equipmentId, assignmentModule, "AssignEquipment")
	if err != nil {
		return nil, err
	}
	defer release()

	today := time.Now()
	correlationId := correlationIdFromContextOrNew(ctx)

	// Step A: pin the unit.
	equipment, err = SetAssignmentState(ctx, equipmentId, nil, AssignmentTarget{
		SiteId:           &siteId,
		AssignedToUserId: &site.ChiefId,
		Date:             today,
	})
	if err != nil {
		// nothing written yet, state is consistent
		return nil, err
	}

	// Step B: open the roster entry, one bounded retry with the same date.
	entry, stepBErr := AddRosterEntry(ctx, siteId, equipmentId, today)
	if stepBErr != nil {
		entry, stepBErr = AddRosterEntry(ctx, siteId, equipmentId, today)
	}
	if stepBErr != nil {
		_, revertErr := SetAssignmentState(ctx, equipmentId, &siteId, AssignmentTarget{Date: today})
		config.LogError(config.GetLogger(), assignmentModule, "AssignEquipment",
			"equipment write succeeded, roster write failed after retry", map[string]interface{}{
				"correlation_id": correlationId,
				"equipment_id":   equipmentId,
				"site_id":        siteId,
				"roster_error":   stepBErr.Error(),
				"reverted":       revertErr == nil,
			}, utils.ErrorPartialFailure)
		return nil, utils.ErrorPartialFailure
	}

	return &AssignmentResult{Equipment: equipment, RosterEntry: entry}, nil
}

// ReturnEquipment mirrors AssignEquipment in reverse: the roster entry is
// closed first, because "roster shows closed but equipment still shows
// in-use" keeps the unit unavailable rather than falsely available while
// it is still physically on site.
func ReturnEquipment(ctx context.Context, siteId int, rosterEntryId int) (*AssignmentResult, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	site, err := utils.FetchModel[Site](ctx, siteId)
	if err != nil {
		return nil, err
	}
	if !CanManageRoster(principal, site) {
		return nil, utils.ErrorForbidden
	}

	db := config.GetDB()
	var entry RosterEntry
	if err := db.WithContext(ctx).
		Where("id = ? AND site_id = ?", rosterEntryId, siteId).
		First(&entry).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if !entry.IsOpen() {
		return nil, utils.ErrorAlreadyClosed
	}

	release, err := utils.EquipmentLock(ctx, entry.EquipmentId, assignmentModule, "ReturnEquipment")
	if err != nil {
		return nil, err
	}
	defer release()

	today := time.Now()
	correlationId := correlationIdFromContextOrNew(ctx)

	// Step A: close the roster entry.
	closed, err := CloseRosterEntry(ctx, siteId, rosterEntryId, today)
	if err != nil {
		return nil, err
	}

	// Step B: release the unit, one bounded retry.
	equipment, stepBErr := SetAssignmentState(ctx, entry.EquipmentId, &siteId, AssignmentTarget{Date: today})
	if stepBErr != nil {
		equipment, stepBErr = SetAssignmentState(ctx, entry.EquipmentId, &siteId, AssignmentTarget{Date: today})
	}
	if stepBErr != nil {
		revertErr := reopenRosterEntry(ctx, rosterEntryId)
		config.LogError(config.GetLogger(), assignmentModule, "ReturnEquipment",
			"roster write succeeded, equipment write failed after retry", map[string]interface{}{
				"correlation_id":  correlationId,
				"equipment_id":    entry.EquipmentId,
				"site_id":         siteId,
				"roster_entry_id": rosterEntryId,
				"equipment_error": stepBErr.Error(),
				"reverted":        revertErr == nil,
			}, utils.ErrorPartialFailure)
		return nil, utils.ErrorPartialFailure
	}

	return &AssignmentResult{Equipment: equipment, RosterEntry: closed}, nil
}

// ReassignEquipment is Return followed by Assign as two sequential engine
// calls, not a fused operation. The unit is briefly unavailable between
// the two calls; that window is accepted to keep the invariant checking
// in one place.
func ReassignEquipment(ctx context.Context, equipmentId int, oldSiteId int, newSiteId int) (*AssignmentResult, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Where("equipment_id = ? AND return_date IS NULL", equipmentId)
	// oldSiteId 0 means "wherever the unit currently is"
	if oldSiteId != 0 {
		query = query.Where("site_id = ?", oldSiteId)
	}
	var entry RosterEntry
	if err := query.First(&entry).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	if _, err := ReturnEquipment(ctx, entry.SiteId, entry.ID); err != nil {
		return nil, err
	}
	return AssignEquipment(ctx, newSiteId, equipmentId)
}

// reconcileSiteEquipment heals every unit pinned to a site. Site reads call
// it so divergence is caught from either aggregate, not just on equipment
// reads.
func reconcileSiteEquipment(ctx context.Context, siteId int) error {
	db := config.GetDB()
	var ids []int
	if err := db.WithContext(ctx).Model(&Equipment{}).
		Where("current_site_id = ?", siteId).
		Pluck("id", &ids).Error; err != nil {
		return err
	}
	for _, id := range ids {
		if err := ReconcileEquipment(ctx, id); err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			return err
		}
	}
	return nil
}

// forceReturnSiteRoster returns every unit still on a site's roster; used
// before a site delete. Deletion is refused when any forced return fails.
func forceReturnSiteRoster(ctx context.Context, siteId int) error {
	entries, err := openRosterEntries(ctx, siteId)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if _, err := ReturnEquipment(ctx, siteId, entry.ID); err != nil {
			return err
		}
	}
	return nil
}

// forceReturnEquipment closes the unit's open stay wherever it is; used
// before an equipment delete.
func forceReturnEquipment(ctx context.Context, equipmentId int) error {
	db := config.GetDB()
	var entries []*RosterEntry
	if err := db.WithContext(ctx).
		Where("equipment_id = ? AND return_date IS NULL", equipmentId).
		Find(&entries).Error; err != nil {
		return err
	}
	for _, entry := range entries {
		if _, err := ReturnEquipment(ctx, entry.SiteId, entry.ID); err != nil {
			return err
		}
	}
	// A half-done assign has no roster entry; release the unit directly.
	equipment, err := utils.FetchModel[Equipment](ctx, equipmentId)
	if err != nil {
		return err
	}
	if equipment.CurrentSiteId != nil {
		if _, err := SetAssignmentState(ctx, equipmentId, equipment.CurrentSiteId, AssignmentTarget{Date: time.Now()}); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileEquipment is the divergence detection point hit on reads. A unit
// marked in-use with no open roster entry at its site is a half-finished
// transition; which half tells us how to heal:
//   - a closed entry at that site newer than the open usage row means a
//     Return lost its second write, so the unit is released;
//   - otherwise an Assign lost its roster write, so the entry is recreated
//     with the originally recorded date.
// Both repairs reuse the idempotent store operations.
func ReconcileEquipment(ctx context.Context, equipmentId int) error {
	equipment, err := utils.FetchModel[Equipment](ctx, equipmentId)
	if err != nil {
		return err
	}
	if equipment.CurrentSiteId == nil {
		return nil
	}
	siteId := *equipment.CurrentSiteId

	db := config.GetDB()
	var open int64
	if err := db.WithContext(ctx).Model(&RosterEntry{}).
		Where("site_id = ? AND equipment_id = ? AND return_date IS NULL", siteId, equipmentId).
		Count(&open).Error; err != nil {
		return err
	}
	if open > 0 {
		return nil
	}

	startDate := time.Now()
	var usage EquipmentUsage
	usageErr := db.WithContext(ctx).
		Where("equipment_id = ? AND site_id = ? AND end_date IS NULL", equipmentId, siteId).
		Order("id DESC").
		First(&usage).Error
	if usageErr == nil {
		startDate = usage.StartDate
	}

	var closedEntry RosterEntry
	closedErr := db.WithContext(ctx).
		Where("site_id = ? AND equipment_id = ? AND return_date IS NOT NULL AND return_date >= ?",
			siteId, equipmentId, startDate).
		Order("return_date DESC").
		First(&closedEntry).Error
	if closedErr == nil {
		// half-done Return: finish releasing the unit
		_, err := SetAssignmentState(ctx, equipmentId, &siteId, AssignmentTarget{Date: *closedEntry.ReturnDate})
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			return err
		}
		return nil
	}

	// half-done Assign: recreate the roster entry with the recorded date
	_, err = AddRosterEntry(ctx, siteId, equipmentId, startDate)
	if err != nil && !errors.Is(err, utils.ErrorAlreadyOpenHere) {
		return err
	}
	return nil
}
