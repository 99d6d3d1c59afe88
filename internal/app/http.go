package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"loom/pkg/api"
	"loom/pkg/api/handlers"
	"loom/pkg/banner"
	"loom/pkg/store"
	"loom/pkg/telemetry"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.Print(a.eff, verStr)
}

// setupRoutes attaches all HTTP routes to the router.
func (a *App) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))

	apiHandlers := &handlers.API{Engine: a.engine}
	apiHandlers.Register(r.PathPrefix("/v1").Subrouter())
}

// readyzHandler reports readiness: the store must be open and the
// provider reachable check is intentionally skipped here, since upstream
// hiccups should not take the whole API out of rotation.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

// healthzHandler handles the /healthz endpoint.
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// startHTTP builds the handler, starts the HTTP server in a goroutine
// and returns a channel that will carry any server error.
func (a *App) startHTTP() <-chan error {
	r := mux.NewRouter()
	a.setupRoutes(r)

	secCfg := api.SecConfig{
		AllowedOrigins: append([]string{}, a.eff.Config.Security.CORS.AllowedOrigins...),
		RPS:            a.eff.Config.Security.RateLimit.RPS,
		Burst:          a.eff.Config.Security.RateLimit.Burst,
	}
	wrapped := api.Middleware(secCfg)(r)
	wrapped = telemetry.Middleware(wrapped)

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: wrapped}

	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}
