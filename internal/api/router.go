package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/cloudconsole/engine/internal/api/handlers"
	mw "github.com/cloudconsole/engine/internal/api/middleware"
)

type Dependencies struct {
	CORSOrigin         string
	DeploymentsHandler *handlers.DeploymentsHandler
	HealthHandler      *handlers.HealthHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS(dep.CORSOrigin))
	r.Use(mw.RateLimit(10, 20))
	r.Use(chimid.Compress(5))

	hh := dep.HealthHandler
	if hh == nil {
		hh = handlers.NewHealthHandler(nil)
	}
	r.Get("/health", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	r.Post("/deploy", dep.DeploymentsHandler.Deploy)
	r.Post("/undeploy", dep.DeploymentsHandler.Undeploy)

	return r
}
