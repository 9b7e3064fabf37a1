package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/btpflow/worksite_backend/config"
	"github.com/btpflow/worksite_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Equipment struct {
	ID               int              `gorm:"primary_key" json:"id"`
	Name             string           `gorm:"size:100;not null" json:"name" binding:"required"`
	Type             EquipmentType    `gorm:"size:30;not null;index" json:"type" binding:"required"`
	Identifier       string           `gorm:"size:100;not null;unique" json:"identifier" binding:"required"`
	Status           EquipmentStatus  `gorm:"size:20;not null;default:Available;index" json:"status"`
	CreatedById      int              `gorm:"index;not null" json:"created_by_id"`
	CurrentSiteId    *int             `gorm:"index" json:"current_site_id"`
	AssignedToUserId *int             `gorm:"index" json:"assigned_to_user_id"`
	Brand            string           `gorm:"size:100" json:"brand"`
	Model            string           `gorm:"size:100" json:"model"`
	Year             int              `json:"year"`
	SerialNumber     string           `gorm:"size:100" json:"serial_number"`
	Capacity         string           `gorm:"size:50" json:"capacity"`
	Power            string           `gorm:"size:50" json:"power"`
	TotalHours       decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0" json:"total_hours"`
	UsageHistory     []EquipmentUsage `gorm:"foreignKey:EquipmentId" json:"usage_history,omitempty"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// EquipmentUsage is the minimal usage-history log: one row per stay of a
// unit at a site. The row opens when the unit is assigned and closes when
// it returns.
type EquipmentUsage struct {
	ID          int             `gorm:"primary_key" json:"id"`
	EquipmentId int             `gorm:"index;not null" json:"equipment_id"`
	SiteId      int             `gorm:"index;not null" json:"site_id"`
	StartDate   time.Time       `gorm:"not null" json:"start_date"`
	EndDate     *time.Time      `json:"end_date"`
	HoursUsed   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"hours_used"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewEquipment struct {
	Name         string        `json:"name" binding:"required"`
	Type         EquipmentType `json:"type" binding:"required"`
	Identifier   string        `json:"identifier" binding:"required"`
	Brand        string        `json:"brand"`
	Model        string        `json:"model"`
	Year         int           `json:"year"`
	SerialNumber string        `json:"serial_number"`
	Capacity     string        `json:"capacity"`
	Power        string        `json:"power"`
}

// UpdateEquipmentInput is a field patch; nil pointers leave the column
// untouched. Identifier is immutable after creation and Status may only
// move between Available, Maintenance and OutOfService here: InUse belongs
// to the assignment engine alone.
type UpdateEquipmentInput struct {
	Name         *string          `json:"name"`
	Type         *EquipmentType   `json:"type"`
	Identifier   *string          `json:"identifier"`
	Status       *EquipmentStatus `json:"status"`
	Brand        *string          `json:"brand"`
	Model        *string          `json:"model"`
	Year         *int             `json:"year"`
	SerialNumber *string          `json:"serial_number"`
	Capacity     *string          `json:"capacity"`
	Power        *string          `json:"power"`
}

func (input *NewEquipment) validate(ctx context.Context) error {
	if !input.Type.IsValid() {
		return errors.New("invalid equipment type")
	}
	if strings.TrimSpace(input.Identifier) == "" {
		return errors.New("identifier is required")
	}
	if err := utils.ValidateUnique[Equipment](ctx, "identifier", input.Identifier, 0); err != nil {
		return utils.ErrorDuplicateIdentifier
	}
	return nil
}

func CreateEquipment(ctx context.Context, input *NewEquipment) (*Equipment, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !CanCreateEquipment(principal) {
		return nil, utils.ErrorForbidden
	}

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	equipment := Equipment{
		Name:         input.Name,
		Type:         input.Type,
		Identifier:   strings.TrimSpace(input.Identifier),
		Status:       EquipmentStatusAvailable,
		CreatedById:  principal.ID,
		Brand:        input.Brand,
		Model:        input.Model,
		Year:         input.Year,
		SerialNumber: input.SerialNumber,
		Capacity:     input.Capacity,
		Power:        input.Power,
		TotalHours:   decimal.Zero,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&equipment).Error; err != nil {
		return nil, err
	}

	return &equipment, nil
}

func UpdateEquipment(ctx context.Context, id int, input *UpdateEquipmentInput) (*Equipment, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !CanUpdateEquipment(principal) {
		return nil, utils.ErrorForbidden
	}

	equipment, err := utils.FetchModel[Equipment](ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}

	if input.Identifier != nil && *input.Identifier != equipment.Identifier {
		return nil, errors.New("identifier is immutable")
	}
	if input.Name != nil {
		updates["Name"] = *input.Name
	}
	if input.Type != nil {
		if !input.Type.IsValid() {
			return nil, errors.New("invalid equipment type")
		}
		updates["Type"] = *input.Type
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, errors.New("invalid equipment status")
		}
		if *input.Status == EquipmentStatusInUse {
			return nil, errors.New("status InUse is managed by assignment only")
		}
		// A unit still at a site must be returned before it can be put
		// on hold; holds never auto-revoke an existing assignment.
		if input.Status.IsAdministrativeHold() && equipment.CurrentSiteId != nil {
			return nil, utils.ErrorEquipmentInUse
		}
		if *input.Status == EquipmentStatusAvailable && equipment.CurrentSiteId != nil {
			return nil, utils.ErrorEquipmentInUse
		}
		updates["Status"] = *input.Status
	}
	if input.Brand != nil {
		updates["Brand"] = *input.Brand
	}
	if input.Model != nil {
		updates["Model"] = *input.Model
	}
	if input.Year != nil {
		updates["Year"] = *input.Year
	}
	if input.SerialNumber != nil {
		updates["SerialNumber"] = *input.SerialNumber
	}
	if input.Capacity != nil {
		updates["Capacity"] = *input.Capacity
	}
	if input.Power != nil {
		updates["Power"] = *input.Power
	}

	if len(updates) == 0 {
		return equipment, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(equipment).Updates(updates).Error; err != nil {
		return nil, err
	}

	return equipment, nil
}

// DeleteEquipment force-returns the unit first when it is still at a site,
// so no dangling open roster entry survives the delete.
func DeleteEquipment(ctx context.Context, id int) (*Equipment, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !CanDeleteEquipment(principal) {
		return nil, utils.ErrorForbidden
	}

	equipment, err := utils.FetchModel[Equipment](ctx, id)
	if err != nil {
		return nil, err
	}

	if equipment.CurrentSiteId != nil {
		if err := forceReturnEquipment(ctx, equipment.ID); err != nil {
			return nil, err
		}
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Where("equipment_id = ?", id).Delete(&EquipmentUsage{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&Equipment{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return equipment, nil
}

func GetEquipment(ctx context.Context, id int) (*Equipment, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !CanViewEquipment(principal) {
		return nil, utils.ErrorForbidden
	}

	// reads double as the divergence detection point
	if err := ReconcileEquipment(ctx, id); err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, err
	}

	return utils.FetchModel[Equipment](ctx, id, "UsageHistory")
}

// GetAllEquipment lists the global inventory, optionally filtered by status,
// type, or a name/identifier search term.
func GetAllEquipment(ctx context.Context, status *EquipmentStatus, equipmentType *EquipmentType, search *string) ([]*Equipment, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !CanViewEquipment(principal) {
		return nil, utils.ErrorForbidden
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Equipment{})
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if equipmentType != nil {
		dbCtx = dbCtx.Where("type = ?", *equipmentType)
	}
	if search != nil && len(*search) > 0 {
		term := "%" + *search + "%"
		dbCtx = dbCtx.Where("name LIKE ? OR identifier LIKE ?", term, term)
	}

	var results []*Equipment
	if err := dbCtx.Order("identifier").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// AssignmentTarget is the desired end state for SetAssignmentState: a site
// to pin the unit to, or nil to release it.
type AssignmentTarget struct {
	SiteId           *int
	AssignedToUserId *int
	Date             time.Time
}

// SetAssignmentState is the only path that changes status/location as a
// result of an assignment transition, and the serialization point for
// concurrent assigns: a guarded UPDATE that only succeeds when the row's
// current_site_id still matches expectedPriorSiteId. Re-applying the same
// target is a no-op success, which makes the engine's bounded retry safe.
func SetAssignmentState(ctx context.Context, equipmentId int, expectedPriorSiteId *int, target AssignmentTarget) (*Equipment, error) {
	if target.SiteId != nil {
		return assignEquipmentState(ctx, equipmentId, target)
	}
	return clearEquipmentState(ctx, equipmentId, expectedPriorSiteId, target.Date)
}

func assignEquipmentState(ctx context.Context, equipmentId int, target AssignmentTarget) (*Equipment, error) {
	db := config.GetDB()

	tx := db.Begin()
	result := tx.WithContext(ctx).Model(&Equipment{}).
		Where("id = ? AND current_site_id IS NULL AND status = ?", equipmentId, EquipmentStatusAvailable).
		Updates(map[string]interface{}{
			"Status":           EquipmentStatusInUse,
			"CurrentSiteId":    *target.SiteId,
			"AssignedToUserId": target.AssignedToUserId,
		})
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		tx.Rollback()
		equipment, err := utils.FetchModel[Equipment](ctx, equipmentId)
		if err != nil {
			return nil, err
		}
		// already at the requested site: idempotent success
		if equipment.CurrentSiteId != nil && *equipment.CurrentSiteId == *target.SiteId {
			return equipment, nil
		}
		if equipment.Status.IsAdministrativeHold() {
			return nil, utils.ErrorNotAssignable
		}
		return nil, utils.ErrorAlreadyAssigned
	}

	usage := EquipmentUsage{
		EquipmentId: equipmentId,
		SiteId:      *target.SiteId,
		StartDate:   target.Date,
		HoursUsed:   decimal.Zero,
	}
	if err := tx.WithContext(ctx).Create(&usage).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return utils.FetchModel[Equipment](ctx, equipmentId)
}

func clearEquipmentState(ctx context.Context, equipmentId int, expectedPriorSiteId *int, date time.Time) (*Equipment, error) {
	db := config.GetDB()

	if expectedPriorSiteId == nil {
		equipment, err := utils.FetchModel[Equipment](ctx, equipmentId)
		if err != nil {
			return nil, err
		}
		if equipment.CurrentSiteId == nil {
			return equipment, nil
		}
		return nil, utils.ErrorAlreadyAssigned
	}

	tx := db.Begin()
	result := tx.WithContext(ctx).Model(&Equipment{}).
		Where("id = ? AND current_site_id = ?", equipmentId, *expectedPriorSiteId).
		Updates(map[string]interface{}{
			"Status":           EquipmentStatusAvailable,
			"CurrentSiteId":    nil,
			"AssignedToUserId": nil,
		})
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		tx.Rollback()
		equipment, err := utils.FetchModel[Equipment](ctx, equipmentId)
		if err != nil {
			return nil, err
		}
		// already released: idempotent success
		if equipment.CurrentSiteId == nil {
			return equipment, nil
		}
		return nil, utils.ErrorAlreadyAssigned
	}

	// close the open usage row and roll its hours into the lifetime total
	var usage EquipmentUsage
	err := tx.WithContext(ctx).
		Where("equipment_id = ? AND site_id = ? AND end_date IS NULL", equipmentId, *expectedPriorSiteId).
		Order("id DESC").
		First(&usage).Error
	if err == nil {
		hours := decimal.NewFromFloat(date.Sub(usage.StartDate).Hours()).Round(2)
		if hours.IsNegative() {
			hours = decimal.Zero
		}
		if err := tx.WithContext(ctx).Model(&usage).Updates(map[string]interface{}{
			"EndDate":   date,
			"HoursUsed": hours,
		}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.WithContext(ctx).Model(&Equipment{}).
			Where("id = ?", equipmentId).
			Update("total_hours", gorm.Expr("total_hours + ?", hours)).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return utils.FetchModel[Equipment](ctx, equipmentId)
}
