package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"credence/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.1.1.1:80", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": " 10.0.0.9 "}, "1.1.1.1:80", "10.0.0.9"},
		{"remote ipv4", nil, "192.168.1.5:5555", "192.168.1.5"},
		{"remote ipv6", nil, "[::1]:5555", "::1"},
		{"remote without port", nil, "10.2.2.2", "10.2.2.2"},
		{"no source", nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}

func TestClientMetadata_PopulatesContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.1.1:1234"
	req.Header.Set("User-Agent", "curl/8.0")

	var ip, ua string
	ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "10.1.1.1", ip)
	assert.Equal(t, "curl/8.0", ua)
}

func TestClientSummary(t *testing.T) {
	assert.Equal(t, "unknown", ClientSummary(context.Background()))

	chrome := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	got := ClientSummary(requestcontext.WithClientMetadata(context.Background(), "", chrome))
	assert.Contains(t, got, "Chrome")

	bot := "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	assert.Equal(t, "bot", ClientSummary(requestcontext.WithClientMetadata(context.Background(), "", bot)))
}
