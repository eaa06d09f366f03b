package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aquaflow/shop/internal/models"
)

func newProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{DB: db, Producer: &fakePublisher{}}
}

func TestCreateAndGetProduct(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	rec, c := doJSON(e, http.MethodPost, "/", map[string]any{
		"name":        "5 Gallon Round",
		"description": "Purified water, refill",
		"price":       "35.00",
	})
	require.NoError(t, h.CreateProduct(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.True(t, created.Price.Equal(decimal.NewFromFloat(35.00)))

	rec, c = doJSON(e, http.MethodGet, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	require.NoError(t, h.GetProduct(c))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateProductRequiresName(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	_, c := doJSON(e, http.MethodPost, "/", map[string]any{"price": "10.00"})
	err := h.CreateProduct(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestPatchProductPartialUpdate(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	rec, c := doJSON(e, http.MethodPost, "/", map[string]any{
		"name":  "Slim 5 Gallon",
		"price": "30.00",
	})
	require.NoError(t, h.CreateProduct(c))
	var created models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec, c = doJSON(e, http.MethodPatch, "/", map[string]any{"price": "32.50"})
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	require.NoError(t, h.PatchProduct(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.Product
	require.NoError(t, db.Where("id = ?", created.ID).First(&updated).Error)
	require.Equal(t, "Slim 5 Gallon", updated.Name)
	require.True(t, updated.Price.Equal(decimal.RequireFromString("32.50")))
}

func TestDeleteProduct(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	rec, c := doJSON(e, http.MethodPost, "/", map[string]any{"name": "Mineral 350ml", "price": "8.00"})
	require.NoError(t, h.CreateProduct(c))
	var created models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec, c = doJSON(e, http.MethodDelete, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	require.NoError(t, h.DeleteProduct(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var count int64
	require.NoError(t, db.Model(&models.Product{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestGetProductsPagination(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	for _, name := range []string{"A", "B", "C"} {
		_, c := doJSON(e, http.MethodPost, "/", map[string]any{"name": name, "price": "1.00"})
		require.NoError(t, h.CreateProduct(c))
	}

	rec, c := doJSON(e, http.MethodGet, "/?page=1&size=2", nil)
	require.NoError(t, h.GetProducts(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []models.Product `json:"data"`
		Meta struct {
			Total   int64 `json:"total"`
			HasNext bool  `json:"has_next"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, int64(3), resp.Meta.Total)
	require.True(t, resp.Meta.HasNext)
}
