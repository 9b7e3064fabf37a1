package main

import (
	"net/http"

	"github.com/btpflow/worksite_backend/middlewares"
	"github.com/btpflow/worksite_backend/models"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type equipmentView struct {
	*models.Equipment
	CurrentSiteName string `json:"current_site_name,omitempty"`
}

func createEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewEquipment
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}

		equipment, err := models.CreateEquipment(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, equipment)
	}
}

func getAllEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var status *models.EquipmentStatus
		if v := c.Query("status"); v != "" {
			s := models.EquipmentStatus(v)
			status = &s
		}
		var equipmentType *models.EquipmentType
		if v := c.Query("type"); v != "" {
			t := models.EquipmentType(v)
			equipmentType = &t
		}
		var search *string
		if v := c.Query("search"); v != "" {
			search = &v
		}

		units, err := models.GetAllEquipment(ctx, status, equipmentType, search)
		if err != nil {
			respondError(c, err)
			return
		}

		// site names come through the batched site loader
		loaders := middlewares.For(ctx)
		views := make([]*equipmentView, 0, len(units))
		for _, unit := range units {
			view := &equipmentView{Equipment: unit}
			if unit.CurrentSiteId != nil {
				if site, err := loaders.SiteLoader.Load(ctx, *unit.CurrentSiteId)(); err == nil {
					view.CurrentSiteName = site.Name
				}
			}
			views = append(views, view)
		}
		c.JSON(http.StatusOK, views)
	}
}

func getEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		unit, err := models.GetEquipment(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}

		view := &equipmentView{Equipment: unit}
		if unit.CurrentSiteId != nil {
			loaders := middlewares.For(ctx)
			if site, err := loaders.SiteLoader.Load(ctx, *unit.CurrentSiteId)(); err == nil {
				view.CurrentSiteName = site.Name
			}
		}
		c.JSON(http.StatusOK, view)
	}
}

func updateEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.UpdateEquipmentInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}

		equipment, err := models.UpdateEquipment(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, equipment)
	}
}

func deleteEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		equipment, err := models.DeleteEquipment(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, equipment)
	}
}

type reassignRequest struct {
	FromSiteId int `json:"from_site_id"`
	ToSiteId   int `json:"to_site_id" binding:"required"`
}

func reassignEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		equipmentId, ok := pathId(c)
		if !ok {
			return
		}
		var req reassignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "ReassignEquipment", trace.WithAttributes(
			attribute.Int("equipment_id", equipmentId),
			attribute.Int("from_site_id", req.FromSiteId),
			attribute.Int("to_site_id", req.ToSiteId),
		))
		defer span.End()

		result, err := models.ReassignEquipment(ctx, equipmentId, req.FromSiteId, req.ToSiteId)
		if err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func exportEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=equipment.xlsx")
		if err := models.ExportEquipmentExcel(c.Request.Context(), c.Writer); err != nil {
			respondError(c, err)
			return
		}
	}
}
