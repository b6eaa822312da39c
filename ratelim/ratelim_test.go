package ratelim

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func ok(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusNoContent)
}

func TestLimitPerIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	h := rl.Limit(ok)

	call := func(addr string) int {
		r := httptest.NewRequest(http.MethodPost, "/cart", nil)
		r.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h(rec, r, nil)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1111"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:3333"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:1111"))
}

func TestSweepDropsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.getLimiter("a")
	rl.sweep(time.Now().Add(11 * time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.visitors)
}

func TestJanitorStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(1, 1)
	done := make(chan struct{})
	go func() {
		rl.Janitor()
		close(done)
	}()
	rl.Stop()
	rl.Stop()
	<-done
}
