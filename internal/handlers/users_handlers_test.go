package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/store/memstore"
)

func TestListUsersMarksAdmins(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.User{
		ID: "u-1", Email: "ana@example.com", PasswordHash: "x",
		FirstName: "Ana", LastName: "Reyes",
	}).Error)
	require.NoError(t, db.Create(&models.User{
		ID: "u-2", Email: "boss@example.com", PasswordHash: "x",
		FirstName: "Bea", LastName: "Cruz",
	}).Error)
	require.NoError(t, db.Create(&models.AdminRole{UserID: "u-2", GrantedAt: time.Now().UTC()}).Error)

	h := &UserHandler{DB: db, Store: memstore.New()}
	e := echo.New()
	rec, c := doJSON(e, http.MethodGet, "/", nil)
	require.NoError(t, h.ListUsers(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []struct {
			ID      string `json:"id"`
			Email   string `json:"email"`
			IsAdmin bool   `json:"is_admin"`
		} `json:"data"`
		Meta map[string]any `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, "ana@example.com", resp.Data[0].Email)
	require.False(t, resp.Data[0].IsAdmin)
	require.True(t, resp.Data[1].IsAdmin)
	require.NotContains(t, rec.Body.String(), "password")
}

func TestUserOrdersScopedToOneCustomer(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.User{
		ID: "u-1", Email: "ana@example.com", PasswordHash: "x",
		FirstName: "Ana", LastName: "Reyes",
	}).Error)

	st := memstore.New()
	mine := seedOrder(t, st, "u-1", models.StatusProcessing, "AQ000000090001")
	seedOrder(t, st, "u-2", models.StatusProcessing, "AQ000000090002")

	h := &UserHandler{DB: db, Store: st}
	e := echo.New()
	rec, c := doJSON(e, http.MethodGet, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues("u-1")

	require.NoError(t, h.UserOrders(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		User   map[string]any `json:"user"`
		Orders []models.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ana@example.com", resp.User["email"])
	require.Len(t, resp.Orders, 1)
	require.Equal(t, mine.ID, resp.Orders[0].ID)
}

func TestUserOrdersUnknownUser(t *testing.T) {
	h := &UserHandler{DB: newTestDB(t), Store: memstore.New()}
	e := echo.New()
	_, c := doJSON(e, http.MethodGet, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues("nope")

	err := h.UserOrders(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusNotFound, httpErr.Code)
}
