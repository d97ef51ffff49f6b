package api

import (
	"net/http"

	"github.com/testsmith-io/testblocks/pkg/engine"
)

func registerRoutes(mux *http.ServeMux, eng *engine.Engine) {
	h := &handlers{engine: eng}
	mux.HandleFunc("POST /run", h.postRun)
	mux.HandleFunc("GET /healthz", h.getHealthz)
}
