package app

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// startDiagnosticsServer serves liveness and run metrics on the configured
// port. It never blocks the run.
func (a *App) startDiagnosticsServer(port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", port)
	go func() {
		a.logger.Info("Diagnostics server starting.", "address", fmt.Sprintf("http://localhost%s", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			a.logger.Error("Diagnostics server failed.", "error", err)
		}
	}()
}
