package models

import (
	"context"

	"github.com/btpflow/worksite_backend/utils"
)

// Principal is the authenticated caller, resolved by the auth middleware
// from the JWT claims. The policy functions below are pure predicates:
// no I/O, no side effects, safe to call speculatively before taking locks.
type Principal struct {
	ID   int
	Role UserRole
}

func (p Principal) IsAdmin() bool {
	return p.Role == UserRoleAdmin
}

// PrincipalFromContext rebuilds the principal placed in the request context
// by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return Principal{}, utils.ErrorForbidden
	}
	roleStr, ok := utils.GetUserRoleFromContext(ctx)
	if !ok {
		return Principal{}, utils.ErrorForbidden
	}
	role, err := ParseUserRole(roleStr)
	if err != nil {
		return Principal{}, utils.ErrorForbidden
	}
	return Principal{ID: userId, Role: role}, nil
}

func CanCreateSite(p Principal) bool {
	return p.IsAdmin()
}

// Sites can be deleted by an admin or by the responsible chief; either way
// deletion first force-returns every open roster entry.
func CanDeleteSite(p Principal, site *Site) bool {
	return p.IsAdmin() || site.ChiefId == p.ID
}

// Fields the responsible chief may touch on their own site. Everything else
// is admin-only; a mixed request is rejected wholesale, never partially
// applied.
var chiefUpdatableSiteFields = map[string]bool{
	"status":   true,
	"progress": true,
}

func CanUpdateSite(p Principal, site *Site, touchedFields []string) bool {
	if p.IsAdmin() {
		return true
	}
	if site.ChiefId != p.ID {
		return false
	}
	for _, field := range touchedFields {
		if !chiefUpdatableSiteFields[field] {
			return false
		}
	}
	return true
}

func CanViewSite(p Principal, site *Site) bool {
	return p.IsAdmin() || site.ChiefId == p.ID
}

// CanManageRoster gates Assign and Return: same rule as UpdateSite.
func CanManageRoster(p Principal, site *Site) bool {
	return p.IsAdmin() || site.ChiefId == p.ID
}

func CanCreateEquipment(p Principal) bool {
	return p.IsAdmin()
}

func CanUpdateEquipment(p Principal) bool {
	return p.IsAdmin()
}

func CanDeleteEquipment(p Principal) bool {
	return p.IsAdmin()
}

// Equipment inventory is global: any authenticated principal may list and
// view units.
func CanViewEquipment(p Principal) bool {
	return true
}

func CanCreateReport(p Principal, site *Site) bool {
	return p.IsAdmin() || site.ChiefId == p.ID
}

func CanViewReport(p Principal, site *Site) bool {
	return p.IsAdmin() || site.ChiefId == p.ID
}

func CanUpdateReportStatus(p Principal) bool {
	return p.IsAdmin()
}

func CanDeleteReport(p Principal, report *Report) bool {
	return p.IsAdmin() || report.CreatedById == p.ID
}

func CanUpdateUser(p Principal, targetUserId int) bool {
	return p.ID == targetUserId
}

func CanSetUserRole(p Principal) bool {
	return p.IsAdmin()
}
