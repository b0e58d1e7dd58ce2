package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateETag(t *testing.T) {
	a, err := GenerateETag(map[string]int{"rows": 3})
	require.NoError(t, err)
	b, err := GenerateETag(map[string]int{"rows": 3})
	require.NoError(t, err)
	c, err := GenerateETag(map[string]int{"rows": 4})
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	_, err = GenerateETag(make(chan int))
	assert.Error(t, err)
}

func TestETagMatches(t *testing.T) {
	assert.True(t, ETagMatches(`"abc"`, `"abc"`))
	assert.True(t, ETagMatches(`"x", "abc"`, `"abc"`))
	assert.True(t, ETagMatches(`*`, `"abc"`))
	assert.False(t, ETagMatches(`"abd"`, `"abc"`))
	assert.False(t, ETagMatches(``, `"abc"`))
}

func TestSendJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	SendJSONError(rec, req, "No file part", http.StatusBadRequest)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"error":"No file part"}`, rec.Body.String())
}
