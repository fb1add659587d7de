package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	t.Run("writes JSON with content type", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()

		WriteJSON(rec, http.StatusCreated, map[string]string{"id": "e1"})

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"id":"e1"}`, rec.Body.String())
	})

	t.Run("nil data writes no body", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()

		WriteJSON(rec, http.StatusOK, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
	})
}

func TestWriteText(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteText(rec, http.StatusNotAcceptable, "expected exactly 2, found 3 matching")

	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "expected exactly 2, found 3 matching", rec.Body.String())
}

func TestWriteBadRequest(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteBadRequest(rec, errors.New("invalid JSON: unexpected EOF"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, CodeInvalidJSON, body.Error)
		assert.Nil(t, body.Details)
	})

	t.Run("validation errors are listed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		err := fmt.Errorf("expectation 0: %w", errors.Join(
			&expectation.ValidationError{Field: "times.remainingTimes", Message: "must not be negative"},
			&expectation.ValidationError{Field: "httpResponse.statusCode", Message: "must be between 100 and 599"},
		))
		WriteBadRequest(rec, err)

		var body struct {
			Error   string                          `json:"error"`
			Details []*expectation.ValidationError `json:"details"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, CodeValidation, body.Error)
		require.Len(t, body.Details, 2)
		assert.Equal(t, "times.remainingTimes", body.Details[0].Field)
	})
}

func TestDecodeJSON(t *testing.T) {
	var v map[string]int

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"a":1}`))
	require.NoError(t, DecodeJSON(req, &v, 0))
	assert.Equal(t, 1, v["a"])

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(""))
	assert.ErrorIs(t, DecodeJSON(req, &v, 0), ErrEmptyBody)

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"a":`))
	assert.ErrorContains(t, DecodeJSON(req, &v, 0), "invalid JSON")

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"a":12345}`))
	err := DecodeJSON(req, &v, 4)
	assert.ErrorContains(t, err, "exceeds 4 bytes")
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	rec := httptest.NewRecorder()
	WriteBodyError(rec, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
