package health

import (
	"net/http"
	"sync/atomic"

	"github.com/noah-isme/invoice-pricing/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the process-wide readiness flag. The server clears it when draining.
func SetReady(v bool) { ready.Store(v) }

// Checker reports whether the pricing tables loaded into the process can serve quotes.
type Checker interface {
	CheckRules() error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func() error

// CheckRules implements Checker.
func (f CheckerFunc) CheckRules() error { return f() }

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker Checker
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on the rule table check and the shutdown flag.
func (h Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"rules": "not loaded"})
		return
	}
	if err := h.Checker.CheckRules(); err != nil {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"rules": err.Error()})
		return
	}
	common.JSON(w, http.StatusOK, map[string]string{"rules": "ok"})
}
