// Package api exposes the engine over HTTP: a POST /run endpoint
// implementing §6's host→engine "Run request" contract, plus GET /healthz.
// Adapted from the
// teacher's pkg/web/server.go — same bind/listen/graceful-shutdown and
// permissive-localhost-CORS plumbing — but the route table and handler are
// rewritten entirely around SuiteReport instead of the teacher's flow/
// config/memory file-backed resources.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/testsmith-io/testblocks/pkg/engine"
)

// Start binds to 127.0.0.1:port (0 = OS-assigned), registers the route
// table, and begins serving in a background goroutine. Returns the actual
// bound port and a shutdown function that drains the server gracefully.
func Start(eng *engine.Engine, port int) (actualPort int, shutdown func(), err error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return 0, nil, fmt.Errorf("api: failed to bind port: %w", err)
	}
	actualPort = ln.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	registerRoutes(mux, eng)

	srv := &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // a suite run can run long
	}

	go func() { _ = srv.Serve(ln) }()

	shutdown = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}

	return actualPort, shutdown, nil
}

// corsMiddleware adds permissive CORS headers suitable for localhost-only use.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
