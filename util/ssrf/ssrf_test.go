package ssrf

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPublicAddr(t *testing.T) {
	assert := assert.New(t)

	public := []string{
		"93.184.216.34",
		"2606:2800:220:1:248:1893:25c8:1946",
	}
	for _, a := range public {
		assert.True(IsPublicAddr(netip.MustParseAddr(a)), a)
	}

	private := []string{
		"127.0.0.1",
		"10.1.2.3",
		"192.168.1.10",
		"169.254.169.254",
		"100.64.0.1",
		"::1",
		"fd00::1",
		"fe80::1",
		// mapped loopback
		"::ffff:127.0.0.1",
	}
	for _, a := range private {
		assert.False(IsPublicAddr(netip.MustParseAddr(a)), a)
	}
}

func TestPublicOnlyControl(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(PublicOnlyControl("tcp4", "93.184.216.34:443", nil))
	assert.NoError(PublicOnlyControl("tcp6", "[2606:2800:220:1:248:1893:25c8:1946]:80", nil))
	assert.ErrorIs(PublicOnlyControl("tcp4", "93.184.216.34:6379", nil), ErrBlocked)
	assert.ErrorIs(PublicOnlyControl("tcp4", "127.0.0.1:443", nil), ErrBlocked)
	assert.ErrorIs(PublicOnlyControl("udp4", "93.184.216.34:443", nil), ErrBlocked)
	assert.ErrorIs(PublicOnlyControl("tcp4", "not-an-address", nil), ErrBlocked)
}

// The refusal is still recognizable after passing through http.Client.
func TestPublicOnlyTransportLoopback(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: PublicOnlyTransport()}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	assert.NoError(err)
	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(err)
	assert.True(errors.Is(err, ErrBlocked), err)
}
