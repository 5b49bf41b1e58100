package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimanitas/settlement/internal/api/response"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestOK(t *testing.T) {
	w := httptest.NewRecorder()
	response.OK(w, map[string]any{"received": true})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, true, decode(t, w)["received"])
}

func TestJSON_Status(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "abc", decode(t, w)["id"])
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Payment not completed", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Payment not completed", body["error"])
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Len(t, body, 2)
}

func TestError_DetailsAreFlattened(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Payment not completed", map[string]any{
		"payment_status": "unpaid",
		"error":          "ignored",
	})

	body := decode(t, w)
	assert.Equal(t, "unpaid", body["payment_status"])
	assert.Equal(t, "Payment not completed", body["error"])
}
