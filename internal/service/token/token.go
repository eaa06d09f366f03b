package token

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aquaflow/shop/internal/authz"
	"github.com/aquaflow/shop/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

const (
	AccessTTL  = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

type Service struct {
	DB            *gorm.DB
	Authz         *authz.Service
	JWTSecret     []byte
	RefreshSecret []byte
}

func CreateCookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func SignAccessToken(userID string, secret []byte) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(AccessTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func SignRefreshToken(userID string, secret []byte) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(RefreshTTL).Unix(),
		"typ": "refresh",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func SaveRefreshToken(db *gorm.DB, token, userID string) error {
	row := models.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(RefreshTTL).Unix(),
	}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func validateRefresh(raw string, secret []byte, db *gorm.DB) (jwt.MapClaims, error) {
	t, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signature method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !t.Valid {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("cannot parse claims")
	}
	if typ, ok := claims["typ"]; !ok || typ != "refresh" {
		return nil, errors.New("not a refresh token")
	}

	var stored models.RefreshToken
	if err := db.Where("token = ?", raw).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("refresh token not found")
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if stored.Revoked {
		return nil, errors.New("refresh token revoked")
	}
	if time.Now().Unix() > stored.ExpiresAt {
		return nil, errors.New("refresh token expired")
	}
	return claims, nil
}

// RotateToken exchanges a valid refresh token for a fresh access/refresh pair.
func (s *Service) RotateToken(raw string) (string, string, jwt.MapClaims, error) {
	claims, err := validateRefresh(raw, s.RefreshSecret, s.DB)
	if err != nil {
		return "", "", nil, err
	}
	userID, ok := claims["sub"].(string)
	if !ok {
		return "", "", nil, errors.New("invalid subject claim")
	}

	newAccess, err := SignAccessToken(userID, s.JWTSecret)
	if err != nil {
		return "", "", nil, err
	}
	newRefresh, err := SignRefreshToken(userID, s.RefreshSecret)
	if err != nil {
		return "", "", nil, err
	}
	if err := s.DB.Model(&models.RefreshToken{}).
		Where("token = ?", raw).Update("revoked", true).Error; err != nil {
		return "", "", nil, err
	}
	if err := SaveRefreshToken(s.DB, newRefresh, userID); err != nil {
		return "", "", nil, err
	}
	return newAccess, newRefresh, claims, nil
}

// CheckCookie validates the access cookie, rotating through the refresh
// cookie on expiry. It returns the (possibly new) access token, a new refresh
// token when rotation happened, and the authenticated user id.
func (s *Service) CheckCookie(c echo.Context) (string, string, string, error) {
	if asCookie, err := c.Cookie("accessToken"); err == nil {
		t, err := jwt.Parse(asCookie.Value, func(j *jwt.Token) (interface{}, error) {
			return s.JWTSecret, nil
		})
		if err == nil && t.Valid {
			claims := t.Claims.(jwt.MapClaims)
			sub, ok := claims["sub"].(string)
			if !ok {
				return "", "", "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			return asCookie.Value, "", sub, nil
		}
		if !errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
	}

	rfCookie, err := c.Cookie("refreshToken")
	if err != nil {
		return "", "", "", echo.NewHTTPError(http.StatusUnauthorized, "not logged in")
	}
	newAccess, newRefresh, claims, err := s.RotateToken(rfCookie.Value)
	if err != nil {
		return "", "", "", echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return "", "", "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return newAccess, newRefresh, sub, nil
}

func (s *Service) refreshCookies(c echo.Context, access, refresh string) {
	if refresh == "" {
		return
	}
	c.SetCookie(CreateCookie("accessToken", access, "/", time.Now().Add(AccessTTL)))
	c.SetCookie(CreateCookie("refreshToken", refresh, "/", time.Now().Add(RefreshTTL)))
}

// RequireLogin authenticates the request and stores the user id in the echo
// context under "userID".
func (s *Service) RequireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		access, refresh, userID, err := s.CheckCookie(c)
		if err != nil {
			return err
		}
		s.refreshCookies(c, access, refresh)
		c.Set("userID", userID)
		return next(c)
	}
}

// RequireAdmin authenticates and then asks the capability service once;
// absence of the marker, or any failure to verify it, denies.
func (s *Service) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		access, refresh, userID, err := s.CheckCookie(c)
		if err != nil {
			return err
		}
		if !s.Authz.IsAdmin(c.Request().Context(), userID) {
			return echo.NewHTTPError(http.StatusForbidden, "you must be an admin")
		}
		s.refreshCookies(c, access, refresh)
		c.Set("userID", userID)
		c.Set("isAdmin", true)
		return next(c)
	}
}

// UserID reads the authenticated user id set by the middleware.
func UserID(c echo.Context) (string, error) {
	id, ok := c.Get("userID").(string)
	if !ok || id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return id, nil
}
