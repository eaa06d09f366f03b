package handlers

import (
	"errors"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aquaflow/shop/internal/events"
	"github.com/aquaflow/shop/internal/logging"
	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/service/search"
	"github.com/aquaflow/shop/internal/util"
)

type ProductHandler struct {
	DB       *gorm.DB
	ES       *elasticsearch.Client
	Index    string
	Producer events.Publisher
}

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageID     string          `json:"image_id"`
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	var product models.Product
	if err := h.DB.Where("id = ?", c.Param("id")).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Product{}).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	var items []models.Product
	if err := h.DB.Model(&models.Product{}).Order("name ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if req.Name == "" || req.Price.IsNegative() {
		return echo.NewHTTPError(http.StatusBadRequest, "name and a non-negative price are required")
	}

	prod := models.Product{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageID:     req.ImageID,
	}
	if err := h.DB.Create(&prod).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	h.reindex(c, prod)
	publish(c, h.Producer, events.TopicProductEvents, prod.ID, map[string]any{
		"type":      "product_created",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusCreated, prod)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	var prod models.Product
	if err := h.DB.Where("id = ?", c.Param("id")).First(&prod).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	if req.Name != "" {
		prod.Name = req.Name
	}
	if req.Description != "" {
		prod.Description = req.Description
	}
	if !req.Price.IsZero() {
		if req.Price.IsNegative() {
			return echo.NewHTTPError(http.StatusBadRequest, "price must be non-negative")
		}
		prod.Price = req.Price
	}
	if req.ImageID != "" {
		prod.ImageID = req.ImageID
	}

	if err := h.DB.Save(&prod).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	h.reindex(c, prod)
	publish(c, h.Producer, events.TopicProductEvents, prod.ID, map[string]any{
		"type":      "product_updated",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusOK, prod)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id := c.Param("id")
	if err := h.DB.Delete(&models.Product{}, "id = ?", id).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	if h.ES != nil {
		if err := search.DeleteProduct(c.Request().Context(), h.ES, h.Index, id); err != nil {
			logging.FromContext(c.Request().Context()).Error("search deindex failed", "productID", id, "error", err)
		}
	}
	publish(c, h.Producer, events.TopicProductEvents, id, map[string]any{
		"type":      "product_deleted",
		"productID": id,
	})

	return c.NoContent(http.StatusNoContent)
}

// reindex keeps the search index in step with the catalog; an indexing
// failure is logged and the write still succeeds.
func (h *ProductHandler) reindex(c echo.Context, prod models.Product) {
	if h.ES == nil {
		return
	}
	if err := search.IndexProduct(c.Request().Context(), h.ES, h.Index, prod); err != nil {
		logging.FromContext(c.Request().Context()).Error("search index failed", "productID", prod.ID, "error", err)
	}
}
