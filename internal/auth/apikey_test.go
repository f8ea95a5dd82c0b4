package auth

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "rk_"))
	assert.NotEqual(t, a, b)
	assert.Len(t, a, len("rk_")+43)
}

func TestHashAPIKey(t *testing.T) {
	h := HashAPIKey("rk_example")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashAPIKey("rk_example"))
	assert.NotEqual(t, h, HashAPIKey("rk_example2"))
	assert.NotContains(t, h, "rk_example")
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"x-api-key header", map[string]string{"X-Api-Key": "k1"}, "k1"},
		{"header is case-insensitive", map[string]string{"x-api-key": " k1 "}, "k1"},
		{"bearer fallback", map[string]string{"Authorization": "Bearer k2"}, "k2"},
		{"header wins over bearer", map[string]string{"X-Api-Key": "k1", "Authorization": "Bearer k2"}, "k1"},
		{"basic auth ignored", map[string]string{"Authorization": "Basic abc"}, ""},
		{"nothing", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/poll", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ExtractAPIKey(req))
		})
	}
}
