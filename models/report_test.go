package models_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/btpflow/worksite_backend/models"
	"github.com/btpflow/worksite_backend/utils"
)

func seedDailyReport(t *testing.T, ctx context.Context, siteId int) *models.Report {
	t.Helper()
	report, err := models.CreateReport(ctx, &models.NewReport{
		SiteId:     siteId,
		Type:       models.ReportTypeDaily,
		Title:      "Morning shift",
		ReportDate: time.Now(),
		Content:    json.RawMessage(`{"weather":"sunny","temperature":24.5,"workers_present":8,"tasks_completed":[{"description":"poured foundation","status":"Completed"}]}`),
	})
	if err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return report
}

func TestCreateReportVariants(t *testing.T) {
	chef, chefCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)

	report := seedDailyReport(t, chefCtx, site.ID)
	if report.Status != models.ReportStatusDraft {
		t.Fatalf("status = %s, want Draft", report.Status)
	}

	_, err := models.CreateReport(chefCtx, &models.NewReport{
		SiteId:     site.ID,
		Type:       models.ReportTypeIncident,
		Title:      "Scaffold collapse",
		ReportDate: time.Now(),
		Content:    json.RawMessage(`{"incident_type":"Structural","severity":"High","description":"partial collapse on level 2","involved_persons":[{"name":"J. Perrin","role":"Mason"}]}`),
	})
	if err != nil {
		t.Fatalf("incident report: %v", err)
	}
}

func TestCreateReportRejectsWrongPayload(t *testing.T) {
	chef, chefCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)

	// daily payload under the incident type: unknown fields are rejected
	_, err := models.CreateReport(chefCtx, &models.NewReport{
		SiteId:     site.ID,
		Type:       models.ReportTypeIncident,
		Title:      "Mislabeled",
		ReportDate: time.Now(),
		Content:    json.RawMessage(`{"weather":"sunny","workers_present":3}`),
	})
	if err == nil {
		t.Fatal("expected payload/type mismatch to be rejected")
	}

	_, err = models.CreateReport(chefCtx, &models.NewReport{
		SiteId:     site.ID,
		Type:       models.ReportTypeIncident,
		Title:      "Bad severity",
		ReportDate: time.Now(),
		Content:    json.RawMessage(`{"incident_type":"Fall","severity":"Catastrophic","description":"x"}`),
	})
	if err == nil {
		t.Fatal("expected invalid severity to be rejected")
	}
}

// Material receipts reference inventory by equipment id; a receipt naming a
// unit that does not exist is rejected.
func TestMaterialReceiptReferencesEquipment(t *testing.T) {
	chef, chefCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	equipment := seedEquipment(t, adminCtx)

	_, err := models.CreateReport(chefCtx, &models.NewReport{
		SiteId:     site.ID,
		Type:       models.ReportTypeMaterialReceipt,
		Title:      "Delivery 42",
		ReportDate: time.Now(),
		Content: json.RawMessage(fmt.Sprintf(
			`{"materials":[{"equipment_id":%d,"quantity":"2","condition":"Good","notes":"crated"}]}`, equipment.ID)),
	})
	if err != nil {
		t.Fatalf("material receipt: %v", err)
	}

	_, err = models.CreateReport(chefCtx, &models.NewReport{
		SiteId:     site.ID,
		Type:       models.ReportTypeMaterialReceipt,
		Title:      "Ghost delivery",
		ReportDate: time.Now(),
		Content:    json.RawMessage(`{"materials":[{"equipment_id":99999999,"quantity":"1","condition":"Good"}]}`),
	})
	if err == nil {
		t.Fatal("expected unknown equipment reference to be rejected")
	}
}

func TestReportForbiddenForOtherChef(t *testing.T) {
	chef, _ := seedChef(t)
	_, otherChefCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)

	_, err := models.CreateReport(otherChefCtx, &models.NewReport{
		SiteId:     site.ID,
		Type:       models.ReportTypeDaily,
		Title:      "Not my site",
		ReportDate: time.Now(),
		Content:    json.RawMessage(`{"weather":"rain","temperature":11,"workers_present":0}`),
	})
	if !errors.Is(err, utils.ErrorForbidden) {
		t.Fatalf("err = %v, want ErrorForbidden", err)
	}
}

func TestReportStatusWorkflow(t *testing.T) {
	chef, chefCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	report := seedDailyReport(t, chefCtx, site.ID)

	// chefs cannot drive the review workflow
	if _, err := models.UpdateReportStatus(chefCtx, report.ID, models.ReportStatusReviewed); !errors.Is(err, utils.ErrorForbidden) {
		t.Fatalf("err = %v, want ErrorForbidden", err)
	}

	if _, err := models.SubmitReport(chefCtx, report.ID); err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}

	// no skipping Reviewed
	if _, err := models.UpdateReportStatus(adminCtx, report.ID, models.ReportStatusApproved); err == nil {
		t.Fatal("expected Submitted -> Approved to be rejected")
	}

	if _, err := models.UpdateReportStatus(adminCtx, report.ID, models.ReportStatusReviewed); err != nil {
		t.Fatalf("to Reviewed: %v", err)
	}
	if _, err := models.UpdateReportStatus(adminCtx, report.ID, models.ReportStatusApproved); err != nil {
		t.Fatalf("to Approved: %v", err)
	}

	// a submitted report stops being editable
	title := "late edit"
	if _, err := models.UpdateReport(chefCtx, report.ID, &models.UpdateReportInput{Title: &title}); err == nil {
		t.Fatal("expected edit after submission to be rejected")
	}
}

func TestGetSiteReportsScopedToSite(t *testing.T) {
	chef, chefCtx := seedChef(t)
	_, otherChefCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	site := seedSite(t, adminCtx, chef.ID)
	report := seedDailyReport(t, chefCtx, site.ID)

	reports, err := models.GetSiteReports(chefCtx, site.ID, nil, nil)
	if err != nil {
		t.Fatalf("GetSiteReports: %v", err)
	}
	found := false
	for _, r := range reports {
		if r.ID == report.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("site listing misses the seeded report")
	}

	draft := models.ReportStatusDraft
	filtered, err := models.GetSiteReports(chefCtx, site.ID, nil, &draft)
	if err != nil {
		t.Fatalf("filtered GetSiteReports: %v", err)
	}
	if len(filtered) == 0 {
		t.Fatal("status filter dropped the draft report")
	}

	if _, err := models.GetSiteReports(otherChefCtx, site.ID, nil, nil); !errors.Is(err, utils.ErrorForbidden) {
		t.Fatalf("err = %v, want ErrorForbidden", err)
	}
}

func TestGetReportsVisibility(t *testing.T) {
	chefA, chefACtx := seedChef(t)
	chefB, chefBCtx := seedChef(t)
	_, adminCtx := seedAdmin(t)
	siteA := seedSite(t, adminCtx, chefA.ID)
	report := seedDailyReport(t, chefACtx, siteA.ID)
	_ = chefB

	reports, err := models.GetReports(chefBCtx, models.ReportFilter{SiteId: &siteA.ID})
	if err != nil {
		t.Fatalf("GetReports: %v", err)
	}
	for _, r := range reports {
		if r.ID == report.ID {
			t.Fatal("chef sees a report for a site they do not run")
		}
	}

	mine, err := models.GetReports(chefACtx, models.ReportFilter{SiteId: &siteA.ID})
	if err != nil {
		t.Fatalf("GetReports: %v", err)
	}
	if len(mine) == 0 {
		t.Fatal("chef does not see their own site's reports")
	}
}
