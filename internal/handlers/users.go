package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/store"
	"github.com/aquaflow/shop/internal/util"
)

// UserHandler backs the admin customer-management pages: the paginated
// customer list and the drill-down into a single customer's orders.
type UserHandler struct {
	DB    *gorm.DB
	Store store.OrderStore
}

func (h *UserHandler) ListUsers(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.User{}).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	var users []models.User
	if err := h.DB.Model(&models.User{}).Order("email ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	var roles []models.AdminRole
	if err := h.DB.Find(&roles).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	admins := make(map[string]bool, len(roles))
	for _, r := range roles {
		admins[r.UserID] = true
	}

	data := make([]echo.Map, len(users))
	for i, u := range users {
		data[i] = echo.Map{
			"id":         u.ID,
			"email":      u.Email,
			"first_name": u.FirstName,
			"last_name":  u.LastName,
			"is_admin":   admins[u.ID],
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": data,
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

// UserOrders returns one customer's order history, newest first, for the
// admin drill-down view.
func (h *UserHandler) UserOrders(c echo.Context) error {
	userID := c.Param("id")

	var user models.User
	if err := h.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	orders, err := h.Store.QueryOrders(c.Request().Context(), store.QuerySpec{
		OwnerID:         userID,
		OrderByDateDesc: true,
	})
	if err != nil {
		return mapStoreError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user": echo.Map{
			"id":         user.ID,
			"email":      user.Email,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
		},
		"orders": orders,
	})
}
