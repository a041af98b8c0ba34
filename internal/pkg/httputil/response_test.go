package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWithCode(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorWithCode(rec, http.StatusBadRequest, "empty_file", "file contains no columns", map[string]int{"size": 0})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "empty_file", body.Code)
	assert.Equal(t, "file contains no columns", body.Error)
}

func TestInternalErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestDecodeLimit(t *testing.T) {
	var dst map[string]string

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"b"}`))
	assert.True(t, DecodeLimit(rec, req, &dst, 1024))
	assert.Equal(t, "b", dst["a"])

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"`+strings.Repeat("x", 100)+`"}`))
	assert.False(t, DecodeLimit(rec, req, &dst, 16))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	assert.False(t, Decode(rec, req, &dst))
	assert.Contains(t, rec.Body.String(), "invalid JSON")
}
