package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/aquaflow/shop/internal/events"
	"github.com/aquaflow/shop/internal/hash"
	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/service/token"
)

type AuthHandler struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
	Producer      events.Publisher
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	var existing models.User
	if err := h.DB.Where("email = ?", req.Email).First(&existing).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err)
		}
		return echo.NewHTTPError(http.StatusConflict, "user already exists")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: pwHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	publish(c, h.Producer, events.TopicUserEvents, user.ID, map[string]any{
		"type":   "user_registered",
		"userID": user.ID,
		"email":  user.Email,
	})

	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}

	access, err := token.SignAccessToken(user.ID, h.JWTSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	refresh, err := token.SignRefreshToken(user.ID, h.RefreshSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	if err := token.SaveRefreshToken(h.DB, refresh, user.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	c.SetCookie(token.CreateCookie("accessToken", access, "/", time.Now().Add(token.AccessTTL)))
	c.SetCookie(token.CreateCookie("refreshToken", refresh, "/", time.Now().Add(token.RefreshTTL)))

	publish(c, h.Producer, events.TopicUserEvents, user.ID, map[string]any{
		"type":   "user_logged_in",
		"userID": user.ID,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"user": user,
	})
}

func (h *AuthHandler) LogOut(c echo.Context) error {
	refreshCookie, err := c.Cookie("refreshToken")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "not logged in")
	}

	if err := h.DB.Model(&models.RefreshToken{}).
		Where("token = ?", refreshCookie.Value).
		Update("revoked", true).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	expired := time.Now().Add(-1 * time.Hour)
	c.SetCookie(token.CreateCookie("accessToken", "", "/", expired))
	c.SetCookie(token.CreateCookie("refreshToken", "", "/", expired))

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}
