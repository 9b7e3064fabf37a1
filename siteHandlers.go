package main

import (
	"net/http"

	"github.com/btpflow/worksite_backend/middlewares"
	"github.com/btpflow/worksite_backend/models"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type siteView struct {
	*models.Site
	ChiefName string `json:"chief_name,omitempty"`
}

type rosterEntryView struct {
	*models.RosterEntry
	EquipmentName       string `json:"equipment_name,omitempty"`
	EquipmentIdentifier string `json:"equipment_identifier,omitempty"`
}

type siteDetailView struct {
	*models.Site
	ChiefName string             `json:"chief_name,omitempty"`
	Roster    []*rosterEntryView `json:"roster"`
}

func createSiteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewSite
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}

		site, err := models.CreateSite(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, site)
	}
}

func getSitesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var status *models.SiteStatus
		if v := c.Query("status"); v != "" {
			s := models.SiteStatus(v)
			status = &s
		}
		var city *string
		if v := c.Query("city"); v != "" {
			city = &v
		}

		sites, err := models.GetSites(ctx, status, city)
		if err != nil {
			respondError(c, err)
			return
		}

		// chief names come through the batched user loader
		loaders := middlewares.For(ctx)
		views := make([]*siteView, 0, len(sites))
		for _, site := range sites {
			view := &siteView{Site: site}
			if chief, err := loaders.UserLoader.Load(ctx, site.ChiefId)(); err == nil {
				view.ChiefName = chief.Name
			}
			views = append(views, view)
		}
		c.JSON(http.StatusOK, views)
	}
}

func getSiteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		site, err := models.GetSite(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}

		loaders := middlewares.For(ctx)
		view := &siteDetailView{Site: site, Roster: make([]*rosterEntryView, 0, len(site.Equipment))}
		if chief, err := loaders.UserLoader.Load(ctx, site.ChiefId)(); err == nil {
			view.ChiefName = chief.Name
		}
		for i := range site.Equipment {
			entry := &site.Equipment[i]
			entryView := &rosterEntryView{RosterEntry: entry}
			if unit, err := loaders.EquipmentLoader.Load(ctx, entry.EquipmentId)(); err == nil {
				entryView.EquipmentName = unit.Name
				entryView.EquipmentIdentifier = unit.Identifier
			}
			view.Roster = append(view.Roster, entryView)
		}
		c.JSON(http.StatusOK, view)
	}
}

func updateSiteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.UpdateSiteInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}

		site, err := models.UpdateSite(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, site)
	}
}

func deleteSiteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		site, err := models.DeleteSite(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, site)
	}
}

type assignRequest struct {
	EquipmentId int `json:"equipment_id" binding:"required"`
}

func assignEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		siteId, ok := pathId(c)
		if !ok {
			return
		}
		var req assignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "AssignEquipment", trace.WithAttributes(
			attribute.Int("site_id", siteId),
			attribute.Int("equipment_id", req.EquipmentId),
		))
		defer span.End()

		result, err := models.AssignEquipment(ctx, siteId, req.EquipmentId)
		if err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type returnRequest struct {
	RosterEntryId int `json:"roster_entry_id" binding:"required"`
}

func returnEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		siteId, ok := pathId(c)
		if !ok {
			return
		}
		var req returnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "ReturnEquipment", trace.WithAttributes(
			attribute.Int("site_id", siteId),
			attribute.Int("roster_entry_id", req.RosterEntryId),
		))
		defer span.End()

		result, err := models.ReturnEquipment(ctx, siteId, req.RosterEntryId)
		if err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
