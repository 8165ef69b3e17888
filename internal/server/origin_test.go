package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   string
		ok     bool
	}{
		{name: "simple", origin: "http://localhost:8080", want: "http://localhost:8080", ok: true},
		{name: "uppercase host", origin: "HTTPS://Example.COM", want: "https://example.com", ok: true},
		{name: "trailing path ignored", origin: "https://example.com/chat", want: "https://example.com", ok: true},
		{name: "missing scheme", origin: "example.com", ok: false},
		{name: "empty", origin: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalizeOrigin(tt.origin)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsOriginAllowed(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowedOrigins = []string{"https://chat.example.com"}
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, isOriginAllowed(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, isOriginAllowed(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	assert.False(t, isOriginAllowed(r), "missing origin header is rejected")
}

func TestWildcardOriginAllowsEverything(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://anything.example.com")
	assert.True(t, isOriginAllowed(r))
}
