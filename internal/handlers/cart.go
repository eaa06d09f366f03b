package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/aquaflow/shop/internal/cart"
	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/service/token"
)

type CartHandler struct {
	DB   *gorm.DB
	Cart *cart.Repo
}

func (h *CartHandler) GetCart(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}
	items, err := h.Cart.Get(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	if items == nil {
		items = []models.CartItem{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var req struct {
		ProductID string `json:"product_id"`
		Quantity  uint   `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	var product models.Product
	if err := h.DB.Where("id = ?", req.ProductID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	items, err := h.Cart.Add(c.Request().Context(), userID, product, req.Quantity)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CartHandler) RemoveFromCart(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	quantity := uint(parseIntDefault(c.QueryParam("quantity"), 1))
	items, err := h.Cart.Remove(c.Request().Context(), userID, c.Param("id"), quantity)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}
	if err := h.Cart.Clear(c.Request().Context(), userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}
