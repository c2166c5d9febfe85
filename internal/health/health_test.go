package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func status(h http.HandlerFunc, query string) int {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/"+query, nil))
	return rec.Code
}

func TestChecker_Ready(t *testing.T) {
	c := NewChecker(nil)
	c.AddStore("store", func() error { return nil })
	c.AddPinger("redis", PingFunc(func(context.Context) error { return nil }), time.Second)

	assert.Equal(t, http.StatusOK, status(c.LiveHandler(), ""))
	assert.Equal(t, http.StatusOK, status(c.ReadyHandler(), ""))
}

func TestChecker_NotReady(t *testing.T) {
	c := NewChecker(nil)
	c.AddStore("store", func() error { return errors.New("db down") })

	assert.Equal(t, http.StatusOK, status(c.LiveHandler(), ""))
	assert.Equal(t, http.StatusServiceUnavailable, status(c.ReadyHandler(), ""))
}

func TestChecker_PingerTimeout(t *testing.T) {
	c := NewChecker(nil)
	c.AddPinger("redis", PingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), 10*time.Millisecond)

	assert.Equal(t, http.StatusServiceUnavailable, status(c.ReadyHandler(), ""))
}

func TestChecker_TCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	c := NewChecker(nil)
	c.AddTCP("smtp", l.Addr().String(), time.Second)
	assert.Equal(t, http.StatusOK, status(c.ReadyHandler(), ""))
}
