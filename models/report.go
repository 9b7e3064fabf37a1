package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/btpflow/worksite_backend/config"
	"github.com/btpflow/worksite_backend/utils"
	"github.com/shopspring/decimal"
)

// Report is a site-scoped document whose payload shape depends on Type.
// Content holds the variant payload as JSON text; it is validated against
// the matching variant struct on create and update.
type Report struct {
	ID          int             `gorm:"primary_key" json:"id"`
	SiteId      int             `gorm:"not null;index" json:"site_id"`
	Site        *Site           `json:"site,omitempty"`
	CreatedById int             `gorm:"not null" json:"created_by_id"`
	CreatedBy   *User           `gorm:"foreignKey:CreatedById" json:"created_by,omitempty"`
	Type        ReportType      `gorm:"size:20;not null" json:"type"`
	Status      ReportStatus    `gorm:"size:10;not null;default:Draft" json:"status"`
	Title       string          `gorm:"size:200;not null" json:"title"`
	ReportDate  time.Time       `gorm:"not null" json:"report_date"`
	Content     json.RawMessage `gorm:"type:text;not null" json:"content"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewReport struct {
	SiteId     int             `json:"site_id" binding:"required"`
	Type       ReportType      `json:"type" binding:"required"`
	Title      string          `json:"title" binding:"required"`
	ReportDate time.Time       `json:"report_date" binding:"required"`
	Content    json.RawMessage `json:"content" binding:"required"`
}

type UpdateReportInput struct {
	Title      *string         `json:"title"`
	ReportDate *time.Time      `json:"report_date"`
	Content    json.RawMessage `json:"content"`
}

type CompletedTask struct {
	Description string `json:"description"`
	Status      string `json:"status"`
}

var completedTaskStatuses = map[string]bool{
	"Completed":   true,
	"In Progress": true,
	"Blocked":     true,
}

type DailyReportContent struct {
	Weather        string          `json:"weather"`
	Temperature    *float64        `json:"temperature"`
	WorkersPresent int             `json:"workers_present"`
	TasksCompleted []CompletedTask `json:"tasks_completed"`
}

type InvolvedPerson struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type IncidentReportContent struct {
	IncidentType    string           `json:"incident_type"`
	Severity        IncidentSeverity `json:"severity"`
	Description     string           `json:"description"`
	InvolvedPersons []InvolvedPerson `json:"involved_persons"`
}

type SafetyIssue struct {
	Issue          string `json:"issue"`
	Risk           string `json:"risk"`
	Recommendation string `json:"recommendation"`
}

type SafetyReportContent struct {
	Issues []SafetyIssue `json:"issues"`
}

type Milestone struct {
	Description string     `json:"description"`
	TargetDate  *time.Time `json:"target_date"`
	Status      string     `json:"status"`
}

type ProgressReportContent struct {
	ProgressPercentage int        `json:"progress_percentage"`
	Milestone          *Milestone `json:"milestone"`
}

// MaterialItem references the delivered unit by equipment id so receipts
// stay joinable against the inventory.
type MaterialItem struct {
	EquipmentId int             `json:"equipment_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Condition   string          `json:"condition"`
	Notes       string          `json:"notes"`
}

type MaterialReceiptContent struct {
	Materials []MaterialItem `json:"materials"`
}

func decodeStrict(raw json.RawMessage, out any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

// validateReportContent decodes the payload against the variant matching
// reportType. Unknown fields are rejected so a payload written under the
// wrong type cannot slip through.
func validateReportContent(ctx context.Context, reportType ReportType, raw json.RawMessage) error {
	if len(raw) == 0 {
		return errors.New("content is required")
	}
	switch reportType {
	case ReportTypeDaily:
		var content DailyReportContent
		if err := decodeStrict(raw, &content); err != nil {
			return errors.New("invalid daily report content: " + err.Error())
		}
		if content.Weather == "" {
			return errors.New("weather is required for daily reports")
		}
		if content.Temperature == nil {
			return errors.New("temperature is required for daily reports")
		}
		if content.WorkersPresent < 0 {
			return errors.New("workers_present cannot be negative")
		}
		for _, task := range content.TasksCompleted {
			if task.Description == "" {
				return errors.New("task description is required")
			}
			if !completedTaskStatuses[task.Status] {
				return errors.New("invalid task status")
			}
		}
	case ReportTypeIncident:
		var content IncidentReportContent
		if err := decodeStrict(raw, &content); err != nil {
			return errors.New("invalid incident report content: " + err.Error())
		}
		if content.IncidentType == "" {
			return errors.New("incident_type is required for incident reports")
		}
		if !content.Severity.IsValid() {
			return errors.New("invalid incident severity")
		}
		if content.Description == "" {
			return errors.New("description is required for incident reports")
		}
	case ReportTypeSafety:
		var content SafetyReportContent
		if err := decodeStrict(raw, &content); err != nil {
			return errors.New("invalid safety report content: " + err.Error())
		}
		if len(content.Issues) == 0 {
			return errors.New("safety reports need at least one issue")
		}
		for _, issue := range content.Issues {
			if issue.Issue == "" {
				return errors.New("safety issue description is required")
			}
		}
	case ReportTypeProgress:
		var content ProgressReportContent
		if err := decodeStrict(raw, &content); err != nil {
			return errors.New("invalid progress report content: " + err.Error())
		}
		if content.ProgressPercentage < 0 || content.ProgressPercentage > 100 {
			return errors.New("progress_percentage must be between 0 and 100")
		}
		if content.Milestone != nil && content.Milestone.Description == "" {
			return errors.New("milestone description is required")
		}
	case ReportTypeMaterialReceipt:
		var content MaterialReceiptContent
		if err := decodeStrict(raw, &content); err != nil {
			return errors.New("invalid material receipt content: " + err.Error())
		}
		if len(content.Materials) == 0 {
			return errors.New("material receipts need at least one item")
		}
		for _, item := range content.Materials {
			if err := utils.ValidateResourceId[Equipment](ctx, item.EquipmentId); err != nil {
				if errors.Is(err, utils.ErrorRecordNotFound) {
					return errors.New("material item references unknown equipment")
				}
				return err
			}
			if item.Quantity.IsNegative() || item.Quantity.IsZero() {
				return errors.New("material item quantity must be positive")
			}
		}
	default:
		return errors.New("invalid report type")
	}
	return nil
}

func (input *NewReport) validate(ctx context.Context) error {
	if !input.Type.IsValid() {
		return errors.New("invalid report type")
	}
	if strings.TrimSpace(input.Title) == "" {
		return errors.New("title is required")
	}
	return validateReportContent(ctx, input.Type, input.Content)
}

func CreateReport(ctx context.Context, input *NewReport) (*Report, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	site, err := utils.FetchModel[Site](ctx, input.SiteId)
	if err != nil {
		return nil, err
	}
	if !CanCreateReport(principal, site) {
		return nil, utils.ErrorForbidden
	}

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	report := Report{
		SiteId:      input.SiteId,
		CreatedById: principal.ID,
		Type:        input.Type,
		Status:      ReportStatusDraft,
		Title:       html.EscapeString(strings.TrimSpace(input.Title)),
		ReportDate:  input.ReportDate,
		Content:     input.Content,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func GetReport(ctx context.Context, id int) (*Report, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	report, err := utils.FetchModel[Report](ctx, id, "Site", "CreatedBy")
	if err != nil {
		return nil, err
	}
	if !CanViewReport(principal, report.Site) {
		return nil, utils.ErrorForbidden
	}
	if report.CreatedBy != nil {
		report.CreatedBy.PrepareGive()
	}
	return report, nil
}

// GetSiteReports lists a site's reports newest first, optionally filtered
// by type and status.
func GetSiteReports(ctx context.Context, siteId int, reportType *ReportType, status *ReportStatus) ([]*Report, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	site, err := utils.FetchModel[Site](ctx, siteId)
	if err != nil {
		return nil, err
	}
	if !CanViewReport(principal, site) {
		return nil, utils.ErrorForbidden
	}

	db := config.GetDB()
	query := db.WithContext(ctx).Where("site_id = ?", siteId)
	if reportType != nil {
		if !reportType.IsValid() {
			return nil, errors.New("invalid report type")
		}
		query = query.Where("type = ?", *reportType)
	}
	if status != nil {
		if !status.IsValid() {
			return nil, errors.New("invalid report status")
		}
		query = query.Where("status = ?", *status)
	}

	var results []*Report
	if err := query.Order("report_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ReportFilter narrows GetReports; zero values mean no filter.
type ReportFilter struct {
	SiteId   *int
	Type     *ReportType
	Status   *ReportStatus
	FromDate *time.Time
	ToDate   *time.Time
}

// GetReports lists reports under the same visibility rule as sites: admins
// see everything, a chef only reports for their own sites.
func GetReports(ctx context.Context, filter ReportFilter) ([]*Report, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	query := db.WithContext(ctx).Model(&Report{})
	if !principal.IsAdmin() {
		query = query.Where(
			"site_id IN (?)",
			db.Model(&Site{}).Select("id").Where("chief_id = ?", principal.ID),
		)
	}
	if filter.SiteId != nil {
		query = query.Where("site_id = ?", *filter.SiteId)
	}
	if filter.Type != nil {
		if !filter.Type.IsValid() {
			return nil, errors.New("invalid report type")
		}
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		if !filter.Status.IsValid() {
			return nil, errors.New("invalid report status")
		}
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.FromDate != nil {
		query = query.Where("report_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("report_date <= ?", *filter.ToDate)
	}

	var results []*Report
	if err := query.Order("report_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateReport edits a draft's title, date or content. Only the creator may
// edit, only while the report is still a draft; the type is immutable.
func UpdateReport(ctx context.Context, id int, input *UpdateReportInput) (*Report, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	report, err := utils.FetchModel[Report](ctx, id)
	if err != nil {
		return nil, err
	}
	if report.CreatedById != principal.ID {
		return nil, utils.ErrorForbidden
	}
	if report.Status != ReportStatusDraft {
		return nil, errors.New("only draft reports can be edited")
	}

	updates := map[string]interface{}{}
	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, errors.New("title is required")
		}
		updates["title"] = html.EscapeString(strings.TrimSpace(*input.Title))
	}
	if input.ReportDate != nil {
		updates["report_date"] = *input.ReportDate
	}
	if len(input.Content) > 0 {
		if err := validateReportContent(ctx, report.Type, input.Content); err != nil {
			return nil, err
		}
		updates["content"] = input.Content
	}
	if len(updates) == 0 {
		return report, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(report).Updates(updates).Error; err != nil {
		return nil, err
	}
	return report, nil
}

// reportStatusRank orders the review workflow; transitions only move
// forward, one step at a time, except that a submitted report may be sent
// back to draft.
var reportStatusRank = map[ReportStatus]int{
	ReportStatusDraft:     0,
	ReportStatusSubmitted: 1,
	ReportStatusReviewed:  2,
	ReportStatusApproved:  3,
}

func validReportTransition(from ReportStatus, to ReportStatus) bool {
	if from == ReportStatusSubmitted && to == ReportStatusDraft {
		return true
	}
	return reportStatusRank[to] == reportStatusRank[from]+1
}

// SubmitReport moves a draft into the review workflow; creator only.
func SubmitReport(ctx context.Context, id int) (*Report, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	report, err := utils.FetchModel[Report](ctx, id)
	if err != nil {
		return nil, err
	}
	if report.CreatedById != principal.ID && !principal.IsAdmin() {
		return nil, utils.ErrorForbidden
	}
	if report.Status != ReportStatusDraft {
		return nil, errors.New("only draft reports can be submitted")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(report).Update("Status", ReportStatusSubmitted).Error; err != nil {
		return nil, err
	}
	return report, nil
}

// UpdateReportStatus advances (or rejects) a report in review; admin only.
func UpdateReportStatus(ctx context.Context, id int, status ReportStatus) (*Report, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !CanUpdateReportStatus(principal) {
		return nil, utils.ErrorForbidden
	}
	if !status.IsValid() {
		return nil, errors.New("invalid report status")
	}

	report, err := utils.FetchModel[Report](ctx, id)
	if err != nil {
		return nil, err
	}
	if !validReportTransition(report.Status, status) {
		return nil, errors.New("invalid report status transition")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(report).Update("Status", status).Error; err != nil {
		return nil, err
	}
	return report, nil
}

func DeleteReport(ctx context.Context, id int) (*Report, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	report, err := utils.FetchModel[Report](ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanDeleteReport(principal, report) {
		return nil, utils.ErrorForbidden
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(report).Error; err != nil {
		return nil, err
	}
	return report, nil
}
