// diagnostics.go — optional localhost HTTP /stats endpoint, JSON-encoded
// with sugawarayuuta/sonnet. A read-only side channel off the event
// loop's hot path: it runs on the net/http handler goroutine, never the
// single-threaded publisher/consumer loop. Mirrors the pprof-on-localhost
// pattern in chycee-cryptoGo/cmd/app/main.go.
package diagnostics

import (
	"context"
	"net/http"

	"github.com/sugawarayuuta/sonnet"
)

// StatsFunc is called on every /stats request; implementations must be
// safe to call concurrently with the owning event loop (e.g. by reading
// only atomic counters).
type StatsFunc func() any

// Server serves GET /stats as sonnet-encoded JSON on addr.
type Server struct {
	httpSrv *http.Server
}

// Start begins listening on addr in the background. A zero-value addr
// disables diagnostics entirely; callers should check for that before
// calling Start.
func Start(addr string, stats StatsFunc) (*Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := sonnet.NewEncoder(w)
		_ = enc.Encode(stats())
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := httpListen(addr)
	if err != nil {
		return nil, err
	}
	go srv.Serve(ln)
	return &Server{httpSrv: srv}, nil
}

// Stop gracefully shuts the diagnostics server down.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
