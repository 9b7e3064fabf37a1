package middlewares

import (
	"context"
	"time"

	"github.com/btpflow/worksite_backend/config"
	"github.com/btpflow/worksite_backend/models"
	"github.com/btpflow/worksite_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders wrap your data loaders to inject via middleware
type Loaders struct {
	UserLoader      *dataloader.Loader[int, *models.User]
	SiteLoader      *dataloader.Loader[int, *models.Site]
	EquipmentLoader *dataloader.Loader[int, *models.Equipment]
}

// NewLoaders instantiates data loaders for the middleware
func NewLoaders(conn *gorm.DB) *Loaders {
	userReader := &userReader{db: conn}
	siteReader := &siteReader{db: conn}
	equipmentReader := &equipmentReader{db: conn}

	return &Loaders{
		UserLoader:      dataloader.NewBatchedLoader(userReader.getUsers, dataloader.WithWait[int, *models.User](time.Millisecond)),
		SiteLoader:      dataloader.NewBatchedLoader(siteReader.getSites, dataloader.WithWait[int, *models.Site](time.Millisecond)),
		EquipmentLoader: dataloader.NewBatchedLoader(equipmentReader.getEquipment, dataloader.WithWait[int, *models.Equipment](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(config.GetDB())
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func For(ctx context.Context) *Loaders {
	return ctx.Value(loadersKey).(*Loaders)
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

type userReader struct {
	db *gorm.DB
}

func (r *userReader) getUsers(ctx context.Context, userIds []int) []*dataloader.Result[*models.User] {
	var users []*models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", userIds).Find(&users).Error; err != nil {
		return handleError[*models.User](len(userIds), err)
	}

	userMap := make(map[int]*models.User, len(users))
	for _, user := range users {
		user.PrepareGive()
		userMap[user.ID] = user
	}

	results := make([]*dataloader.Result[*models.User], 0, len(userIds))
	for _, id := range userIds {
		if user, ok := userMap[id]; ok {
			results = append(results, &dataloader.Result[*models.User]{Data: user})
		} else {
			results = append(results, &dataloader.Result[*models.User]{Error: utils.ErrorRecordNotFound})
		}
	}
	return results
}

type siteReader struct {
	db *gorm.DB
}

func (r *siteReader) getSites(ctx context.Context, siteIds []int) []*dataloader.Result[*models.Site] {
	var sites []*models.Site
	if err := r.db.WithContext(ctx).Where("id IN ?", siteIds).Find(&sites).Error; err != nil {
		return handleError[*models.Site](len(siteIds), err)
	}

	siteMap := make(map[int]*models.Site, len(sites))
	for _, site := range sites {
		siteMap[site.ID] = site
	}

	results := make([]*dataloader.Result[*models.Site], 0, len(siteIds))
	for _, id := range siteIds {
		if site, ok := siteMap[id]; ok {
			results = append(results, &dataloader.Result[*models.Site]{Data: site})
		} else {
			results = append(results, &dataloader.Result[*models.Site]{Error: utils.ErrorRecordNotFound})
		}
	}
	return results
}

type equipmentReader struct {
	db *gorm.DB
}

func (r *equipmentReader) getEquipment(ctx context.Context, equipmentIds []int) []*dataloader.Result[*models.Equipment] {
	var units []*models.Equipment
	if err := r.db.WithContext(ctx).Where("id IN ?", equipmentIds).Find(&units).Error; err != nil {
		return handleError[*models.Equipment](len(equipmentIds), err)
	}

	unitMap := make(map[int]*models.Equipment, len(units))
	for _, unit := range units {
		unitMap[unit.ID] = unit
	}

	results := make([]*dataloader.Result[*models.Equipment], 0, len(equipmentIds))
	for _, id := range equipmentIds {
		if unit, ok := unitMap[id]; ok {
			results = append(results, &dataloader.Result[*models.Equipment]{Data: unit})
		} else {
			results = append(results, &dataloader.Result[*models.Equipment]{Error: utils.ErrorRecordNotFound})
		}
	}
	return results
}
