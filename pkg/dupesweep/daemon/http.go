package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/output"
)

var contentTypes = map[string]string{
	"json":  "application/json",
	"jsonl": "application/x-ndjson",
	"yaml":  "application/yaml",
}

// NewRouter returns the read-only HTTP API:
//
//	GET /healthz            liveness
//	GET /v1/status          daemon status as JSON
//	GET /v1/report?format=  latest report in any output format (default json)
func NewRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			st, err := svc.Status(req.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(st)
		})

		r.Get("/report", func(w http.ResponseWriter, req *http.Request) {
			format := req.URL.Query().Get("format")
			if format == "" {
				format = "json"
			}
			formatter, err := output.Get(format)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			report := svc.Latest()
			if report == nil {
				http.Error(w, "no completed scan", http.StatusNotFound)
				return
			}

			var buf bytes.Buffer
			if err := formatter.Format(&buf, output.NewResult(report)); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			ct, ok := contentTypes[format]
			if !ok {
				ct = "text/plain; charset=utf-8"
			}
			w.Header().Set("Content-Type", ct)
			_, _ = w.Write(buf.Bytes())
		})
	})
	return r
}
