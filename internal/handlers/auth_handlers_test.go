package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aquaflow/shop/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.AdminRole{},
		&models.RefreshToken{},
		&models.Product{},
	))
	return db
}

func newAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{
		DB:            db,
		JWTSecret:     []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		Producer:      &fakePublisher{},
	}
}

func TestRegisterAndLogin(t *testing.T) {
	db := newTestDB(t)
	h := newAuthHandler(db)
	e := echo.New()

	rec, c := doJSON(e, http.MethodPost, "/", map[string]string{
		"email":      "maria@example.com",
		"password":   "s3cret",
		"first_name": "Maria",
		"last_name":  "Santos",
	})
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, "maria@example.com", created.Email)
	require.NotContains(t, rec.Body.String(), "s3cret")

	rec, c = doJSON(e, http.MethodPost, "/", map[string]string{
		"email":    "maria@example.com",
		"password": "s3cret",
	})
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	names := make([]string, len(cookies))
	for i, ck := range cookies {
		names[i] = ck.Name
	}
	require.Contains(t, names, "accessToken")
	require.Contains(t, names, "refreshToken")

	var stored models.RefreshToken
	require.NoError(t, db.First(&stored).Error)
	require.Equal(t, created.ID, stored.UserID)
	require.False(t, stored.Revoked)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	h := newAuthHandler(db)
	e := echo.New()

	payload := map[string]string{"email": "dup@example.com", "password": "pw"}
	_, c := doJSON(e, http.MethodPost, "/", payload)
	require.NoError(t, h.Register(c))

	_, c = doJSON(e, http.MethodPost, "/", payload)
	err := h.Register(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusConflict, httpErr.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	db := newTestDB(t)
	h := newAuthHandler(db)
	e := echo.New()

	_, c := doJSON(e, http.MethodPost, "/", map[string]string{"email": "maria@example.com", "password": "right"})
	require.NoError(t, h.Register(c))

	_, c = doJSON(e, http.MethodPost, "/", map[string]string{"email": "maria@example.com", "password": "wrong"})
	err := h.Login(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestLogOutRevokesRefreshToken(t *testing.T) {
	db := newTestDB(t)
	h := newAuthHandler(db)
	e := echo.New()

	_, c := doJSON(e, http.MethodPost, "/", map[string]string{"email": "maria@example.com", "password": "pw"})
	require.NoError(t, h.Register(c))
	rec, c := doJSON(e, http.MethodPost, "/", map[string]string{"email": "maria@example.com", "password": "pw"})
	require.NoError(t, h.Login(c))

	var refresh string
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "refreshToken" {
			refresh = ck.Value
		}
	}
	require.NotEmpty(t, refresh)

	rec2, c2 := doJSON(e, http.MethodPost, "/", nil)
	c2.Request().AddCookie(&http.Cookie{Name: "refreshToken", Value: refresh})
	require.NoError(t, h.LogOut(c2))
	require.Equal(t, http.StatusOK, rec2.Code)

	var stored models.RefreshToken
	require.NoError(t, db.Where("token = ?", refresh).First(&stored).Error)
	require.True(t, stored.Revoked)
}
