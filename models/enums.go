package models

import "errors"

type UserRole string

const (
	UserRoleAdmin UserRole = "Admin"
	UserRoleChef  UserRole = "Chef"
)

func (r UserRole) IsValid() bool {
	return r == UserRoleAdmin || r == UserRoleChef
}

func ParseUserRole(s string) (UserRole, error) {
	role := UserRole(s)
	if !role.IsValid() {
		return "", errors.New("invalid user role")
	}
	return role, nil
}

type EquipmentType string

const (
	EquipmentTypeVehicle         EquipmentType = "Vehicle"
	EquipmentTypePowerTool       EquipmentType = "PowerTool"
	EquipmentTypeHandTool        EquipmentType = "HandTool"
	EquipmentTypeHeavyMachine    EquipmentType = "HeavyMachine"
	EquipmentTypeScaffolding     EquipmentType = "Scaffolding"
	EquipmentTypeSafetyEquipment EquipmentType = "SafetyEquipment"
	EquipmentTypeOther           EquipmentType = "Other"
)

func (t EquipmentType) IsValid() bool {
	switch t {
	case EquipmentTypeVehicle, EquipmentTypePowerTool, EquipmentTypeHandTool,
		EquipmentTypeHeavyMachine, EquipmentTypeScaffolding,
		EquipmentTypeSafetyEquipment, EquipmentTypeOther:
		return true
	}
	return false
}

type EquipmentStatus string

const (
	EquipmentStatusAvailable    EquipmentStatus = "Available"
	EquipmentStatusInUse        EquipmentStatus = "InUse"
	EquipmentStatusMaintenance  EquipmentStatus = "Maintenance"
	EquipmentStatusOutOfService EquipmentStatus = "OutOfService"
)

func (s EquipmentStatus) IsValid() bool {
	switch s {
	case EquipmentStatusAvailable, EquipmentStatusInUse,
		EquipmentStatusMaintenance, EquipmentStatusOutOfService:
		return true
	}
	return false
}

// Maintenance and OutOfService are set only by explicit administrative
// action; they suppress assignment-driven status changes until cleared.
func (s EquipmentStatus) IsAdministrativeHold() bool {
	return s == EquipmentStatusMaintenance || s == EquipmentStatusOutOfService
}

type SiteStatus string

const (
	SiteStatusPlanned    SiteStatus = "Planned"
	SiteStatusInProgress SiteStatus = "InProgress"
	SiteStatusPaused     SiteStatus = "Paused"
	SiteStatusCompleted  SiteStatus = "Completed"
)

func (s SiteStatus) IsValid() bool {
	switch s {
	case SiteStatusPlanned, SiteStatusInProgress, SiteStatusPaused, SiteStatusCompleted:
		return true
	}
	return false
}

type ReportType string

const (
	ReportTypeDaily           ReportType = "Daily"
	ReportTypeIncident        ReportType = "Incident"
	ReportTypeSafety          ReportType = "Safety"
	ReportTypeProgress        ReportType = "Progress"
	ReportTypeMaterialReceipt ReportType = "MaterialReceipt"
)

func (t ReportType) IsValid() bool {
	switch t {
	case ReportTypeDaily, ReportTypeIncident, ReportTypeSafety,
		ReportTypeProgress, ReportTypeMaterialReceipt:
		return true
	}
	return false
}

type ReportStatus string

const (
	ReportStatusDraft     ReportStatus = "Draft"
	ReportStatusSubmitted ReportStatus = "Submitted"
	ReportStatusReviewed  ReportStatus = "Reviewed"
	ReportStatusApproved  ReportStatus = "Approved"
)

func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportStatusDraft, ReportStatusSubmitted, ReportStatusReviewed, ReportStatusApproved:
		return true
	}
	return false
}

type IncidentSeverity string

const (
	IncidentSeverityLow      IncidentSeverity = "Low"
	IncidentSeverityMedium   IncidentSeverity = "Medium"
	IncidentSeverityHigh     IncidentSeverity = "High"
	IncidentSeverityCritical IncidentSeverity = "Critical"
)

func (s IncidentSeverity) IsValid() bool {
	switch s {
	case IncidentSeverityLow, IncidentSeverityMedium, IncidentSeverityHigh, IncidentSeverityCritical:
		return true
	}
	return false
}
