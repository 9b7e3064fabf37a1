package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/btpflow/worksite_backend/models"
	"github.com/gin-gonic/gin"
)

func createReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewReport
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}

		report, err := models.CreateReport(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, report)
	}
}

func getReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter models.ReportFilter

		if v := c.Query("site_id"); v != "" {
			siteId, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid site_id"})
				return
			}
			filter.SiteId = &siteId
		}
		if v := c.Query("type"); v != "" {
			t := models.ReportType(v)
			filter.Type = &t
		}
		if v := c.Query("status"); v != "" {
			s := models.ReportStatus(v)
			filter.Status = &s
		}
		if v := c.Query("from"); v != "" {
			from, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
				return
			}
			filter.FromDate = &from
		}
		if v := c.Query("to"); v != "" {
			to, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
				return
			}
			filter.ToDate = &to
		}

		reports, err := models.GetReports(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reports)
	}
}

func getSiteReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		siteId, ok := pathId(c)
		if !ok {
			return
		}

		var reportType *models.ReportType
		if v := c.Query("type"); v != "" {
			t := models.ReportType(v)
			reportType = &t
		}
		var status *models.ReportStatus
		if v := c.Query("status"); v != "" {
			s := models.ReportStatus(v)
			status = &s
		}

		reports, err := models.GetSiteReports(c.Request.Context(), siteId, reportType, status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reports)
	}
}

func getReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		report, err := models.GetReport(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func updateReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.UpdateReportInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}

		report, err := models.UpdateReport(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func submitReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		report, err := models.SubmitReport(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

type reportStatusRequest struct {
	Status models.ReportStatus `json:"status" binding:"required"`
}

func updateReportStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req reportStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}

		report, err := models.UpdateReportStatus(c.Request.Context(), id, req.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func deleteReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		report, err := models.DeleteReport(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
