package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vistahub/license-gate/internal/i18n"
)

func newResponseContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, i18n.Initialize())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestPaginatedResponse(t *testing.T) {
	c, w := newResponseContext(t)

	PaginatedResponse(c, CreatePaginationResult([]string{"a", "b"}, 5, PaginationParams{Page: 2, Limit: 2}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-Total-Count"))
	assert.Equal(t, "3", w.Header().Get("X-Total-Pages"))

	var body struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
		Meta    APIMeta  `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, []string{"a", "b"}, body.Data)
	require.NotNil(t, body.Meta.Pagination)
	assert.Equal(t, PageMeta{Page: 2, Limit: 2, Total: 5, TotalPages: 3}, *body.Meta.Pagination)
}

func TestErrorResponsesFallBackToCatalogue(t *testing.T) {
	c, w := newResponseContext(t)
	NotFoundResponse(c, "license")

	var body APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, body.Success)
	assert.Nil(t, body.Meta)
	require.NotNil(t, body.Error)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.Equal(t, "License not found", body.Error.Message)

	c, w = newResponseContext(t)
	UnauthorizedResponse(c, "token expired")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token expired", body.Error.Message)
}

func TestGetAdminFromContext(t *testing.T) {
	c, _ := newResponseContext(t)

	_, ok := GetAdminFromContext(c)
	assert.False(t, ok)

	c.Set("username", "admin")
	username, ok := GetAdminFromContext(c)
	assert.True(t, ok)
	assert.Equal(t, "admin", username)
}
