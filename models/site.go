package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/btpflow/worksite_backend/config"
	"github.com/btpflow/worksite_backend/utils"
	"github.com/shopspring/decimal"
)

type Site struct {
	ID               int             `gorm:"primary_key" json:"id"`
	Name             string          `gorm:"size:100;not null" json:"name" binding:"required"`
	CreatedById      int             `gorm:"index;not null" json:"created_by_id"`
	ChiefId          int             `gorm:"index;not null" json:"chief_id" binding:"required"`
	Address          string          `gorm:"size:255" json:"address"`
	City             string          `gorm:"size:100;index" json:"city"`
	ClientName       string          `gorm:"size:100" json:"client_name"`
	Status           SiteStatus      `gorm:"size:20;not null;default:Planned;index" json:"status"`
	Progress         int             `gorm:"not null;default:0" json:"progress"`
	StartDate        time.Time       `json:"start_date"`
	EstimatedEndDate time.Time       `json:"estimated_end_date"`
	ActualEndDate    *time.Time      `json:"actual_end_date"`
	BudgetEstimated  decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"budget_estimated"`
	BudgetActual     decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"budget_actual"`
	Description      string          `gorm:"type:text" json:"description"`
	Equipment        []RosterEntry   `gorm:"foreignKey:SiteId" json:"equipment,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// RosterEntry records one stay of one equipment unit at one site. The entry
// holds a reference to the unit, never ownership: the authoritative "is this
// unit here" fact is the conjunction of the open entry and the unit's own
// current_site_id.
type RosterEntry struct {
	ID           int        `gorm:"primary_key" json:"id"`
	SiteId       int        `gorm:"index;not null" json:"site_id"`
	EquipmentId  int        `gorm:"index;not null" json:"equipment_id"`
	AssignedDate time.Time  `gorm:"not null" json:"assigned_date"`
	ReturnDate   *time.Time `json:"return_date"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e RosterEntry) IsOpen() bool {
	return e.ReturnDate == nil
}

type NewSite struct {
	Name             string          `json:"name" binding:"required"`
	ChiefId          int             `json:"chief_id" binding:"required"`
	Address          string          `json:"address"`
	City             string          `json:"city"`
	ClientName       string          `json:"client_name"`
	Status           SiteStatus      `json:"status"`
	StartDate        time.Time       `json:"start_date"`
	EstimatedEndDate time.Time       `json:"estimated_end_date"`
	BudgetEstimated  decimal.Decimal `json:"budget_estimated"`
	Description      string          `json:"description"`
}

// UpdateSiteInput is a field patch; nil pointers leave the column untouched.
// The names of touched fields feed the authorization check: a chief may only
// touch status and progress, and a request mixing in anything else fails
// wholesale.
type UpdateSiteInput struct {
	Name             *string          `json:"name"`
	ChiefId          *int             `json:"chief_id"`
	Address          *string          `json:"address"`
	City             *string          `json:"city"`
	ClientName       *string          `json:"client_name"`
	Status           *SiteStatus      `json:"status"`
	Progress         *int             `json:"progress"`
	StartDate        *time.Time       `json:"start_date"`
	EstimatedEndDate *time.Time       `json:"estimated_end_date"`
	ActualEndDate    *time.Time       `json:"actual_end_date"`
	BudgetEstimated  *decimal.Decimal `json:"budget_estimated"`
	BudgetActual     *decimal.Decimal `json:"budget_actual"`
	Description      *string          `json:"description"`
}

// TouchedFields lists the json names of the fields this patch sets.
func (input *UpdateSiteInput) TouchedFields() []string {
	var fields []string
	add := func(name string, set bool) {
		if set {
			fields = append(fields, name)
		}
	}
	add("name", input.Name != nil)
	add("chief_id", input.ChiefId != nil)
	add("address", input.Address != nil)
	add("city", input.City != nil)
	add("client_name", input.ClientName != nil)
	add("status", input.Status != nil)
	add("progress", input.Progress != nil)
	add("start_date", input.StartDate != nil)
	add("estimated_end_date", input.EstimatedEndDate != nil)
	add("actual_end_date", input.ActualEndDate != nil)
	add("budget_estimated", input.BudgetEstimated != nil)
	add("budget_actual", input.BudgetActual != nil)
	add("description", input.Description != nil)
	return fields
}

func (input *NewSite) validate(ctx context.Context) error {
	if strings.TrimSpace(input.Name) == "" {
		return errors.New("site name is required")
	}
	if input.Status != "" && !input.Status.IsValid() {
		return errors.New("invalid site status")
	}
	if err := utils.ValidateResourceId[User](ctx, input.ChiefId); err != nil {
		return errors.New("chief not found")
	}
	return nil
}

func CreateSite(ctx context.Context, input *NewSite) (*Site, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !CanCreateSite(principal) {
		return nil, utils.ErrorForbidden
	}

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = SiteStatusPlanned
	}

	site := Site{
		Name:             input.Name,
		CreatedById:      principal.ID,
		ChiefId:          input.ChiefId,
		Address:          input.Address,
		City:             input.City,
		ClientName:       input.ClientName,
		Status:           status,
		StartDate:        input.StartDate,
		EstimatedEndDate: input.EstimatedEndDate,
		BudgetEstimated:  input.BudgetEstimated,
		BudgetActual:     decimal.Zero,
		Description:      input.Description,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&site).Error; err != nil {
		return nil, err
	}

	return &site, nil
}

func UpdateSite(ctx context.Context, id int, input *UpdateSiteInput) (*Site, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	site, err := utils.FetchModel[Site](ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanUpdateSite(principal, site, input.TouchedFields()) {
		return nil, utils.ErrorForbidden
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["Name"] = *input.Name
	}
	if input.ChiefId != nil {
		if err := utils.ValidateResourceId[User](ctx, *input.ChiefId); err != nil {
			return nil, errors.New("chief not found")
		}
		updates["ChiefId"] = *input.ChiefId
	}
	if input.Address != nil {
		updates["Address"] = *input.Address
	}
	if input.City != nil {
		updates["City"] = *input.City
	}
	if input.ClientName != nil {
		updates["ClientName"] = *input.ClientName
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, errors.New("invalid site status")
		}
		updates["Status"] = *input.Status
	}
	if input.Progress != nil {
		if *input.Progress < 0 || *input.Progress > 100 {
			return nil, errors.New("progress must be between 0 and 100")
		}
		updates["Progress"] = *input.Progress
	}
	if input.StartDate != nil {
		updates["StartDate"] = *input.StartDate
	}
	if input.EstimatedEndDate != nil {
		updates["EstimatedEndDate"] = *input.EstimatedEndDate
	}
	if input.ActualEndDate != nil {
		updates["ActualEndDate"] = *input.ActualEndDate
	}
	if input.BudgetEstimated != nil {
		updates["BudgetEstimated"] = *input.BudgetEstimated
	}
	if input.BudgetActual != nil {
		updates["BudgetActual"] = *input.BudgetActual
	}
	if input.Description != nil {
		updates["Description"] = *input.Description
	}

	if len(updates) == 0 {
		return site, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(site).Updates(updates).Error; err != nil {
		return nil, err
	}

	return site, nil
}

// DeleteSite force-returns every open roster entry before the delete, so
// no unit stays marked as in use at a site that no longer exists.
func DeleteSite(ctx context.Context, id int) (*Site, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	site, err := utils.FetchModel[Site](ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanDeleteSite(principal, site) {
		return nil, utils.ErrorForbidden
	}

	if err := forceReturnSiteRoster(ctx, site.ID); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Where("site_id = ?", id).Delete(&Report{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Where("site_id = ?", id).Delete(&RosterEntry{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&Site{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return site, nil
}

func GetSite(ctx context.Context, id int) (*Site, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	site, err := utils.FetchModel[Site](ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanViewSite(principal, site) {
		return nil, utils.ErrorForbidden
	}

	// reads double as the divergence detection point for the roster side
	if err := reconcileSiteEquipment(ctx, id); err != nil {
		return nil, err
	}

	return utils.FetchModel[Site](ctx, id, "Equipment")
}

// GetSites applies the visibility rule: admins see every site, a chef only
// the sites they are responsible for.
func GetSites(ctx context.Context, status *SiteStatus, city *string) ([]*Site, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Site{})
	if !principal.IsAdmin() {
		dbCtx = dbCtx.Where("chief_id = ?", principal.ID)
	}
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if city != nil && len(*city) > 0 {
		dbCtx = dbCtx.Where("city LIKE ?", "%"+*city+"%")
	}

	var results []*Site
	if err := dbCtx.Order("start_date DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// AddRosterEntry opens a roster entry, refusing a second open entry for the
// same unit at the same site. It cannot see other sites' rosters; the
// cross-site invariant is the assignment engine's job. Re-adding with the
// same date while an identical open entry exists returns that entry, which
// keeps the engine's bounded retry idempotent.
func AddRosterEntry(ctx context.Context, siteId int, equipmentId int, date time.Time) (*RosterEntry, error) {
	db := config.GetDB()

	tx := db.Begin()

	var site Site
	if err := tx.WithContext(ctx).First(&site, siteId).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	var existing RosterEntry
	err := tx.WithContext(ctx).
		Where("site_id = ? AND equipment_id = ? AND return_date IS NULL", siteId, equipmentId).
		First(&existing).Error
	if err == nil {
		tx.Rollback()
		if existing.AssignedDate.Equal(date) {
			return &existing, nil
		}
		return nil, utils.ErrorAlreadyOpenHere
	}

	entry := RosterEntry{
		SiteId:       siteId,
		EquipmentId:  equipmentId,
		AssignedDate: date,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// CloseRosterEntry stamps the return date on an open entry.
func CloseRosterEntry(ctx context.Context, siteId int, rosterEntryId int, date time.Time) (*RosterEntry, error) {
	db := config.GetDB()

	var entry RosterEntry
	err := db.WithContext(ctx).
		Where("id = ? AND site_id = ?", rosterEntryId, siteId).
		First(&entry).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if !entry.IsOpen() {
		return nil, utils.ErrorAlreadyClosed
	}

	if err := db.WithContext(ctx).Model(&entry).Update("ReturnDate", date).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// reopenRosterEntry is the compensation for CloseRosterEntry when the
// second engine write cannot be completed.
func reopenRosterEntry(ctx context.Context, rosterEntryId int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&RosterEntry{}).
		Where("id = ?", rosterEntryId).
		Update("ReturnDate", nil).Error
}

// openRosterEntries returns the currently open entries for a site.
func openRosterEntries(ctx context.Context, siteId int) ([]*RosterEntry, error) {
	db := config.GetDB()
	var entries []*RosterEntry
	err := db.WithContext(ctx).
		Where("site_id = ? AND return_date IS NULL", siteId).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
