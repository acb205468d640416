package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-crm/praxis/internal/shared"
)

func TestProblemContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, http.StatusConflict, "Conflict", "template exists")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"title":"Conflict"`)
}

func TestDecodeJSONCapsBodySize(t *testing.T) {
	payload := `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/templates", strings.NewReader(payload))

	var target struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(req, &target)
	assert.Error(t, err, "oversized bodies must not decode")
}

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound},
		{"validation", shared.ErrValidation, http.StatusBadRequest},
		{"conflict", shared.ErrConflict, http.StatusConflict},
		{"admin denied", shared.ErrAdminDenied, http.StatusForbidden},
		{"unknown", assertErr{}, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.code, rec.Code)
		})
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
