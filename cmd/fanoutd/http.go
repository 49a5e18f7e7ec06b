package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Swind/go-frame-observer/core"
	"github.com/Swind/go-frame-observer/observer"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultRecentLimit = 20

type tasksResponse struct {
	Manager core.ManagerStats          `json:"manager"`
	Live    []core.TaskStats           `json:"live"`
	Recent  []core.TaskExecutionRecord `json:"recent"`
}

type fanoutResponse struct {
	Fanout observer.FanoutStats `json:"fanout"`
	Counts eventCounts          `json:"counts"`
}

func newRouter(d *daemon) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.fanout.Stopped() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopped"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.reg, promhttp.HandlerOpts{}))

	r.Route("/debug", func(r chi.Router) {
		r.Get("/tasks", func(w http.ResponseWriter, r *http.Request) {
			limit := defaultRecentLimit
			if v := r.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					writeJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
					return
				}
				limit = n
			}

			live := d.manager.Tasks()
			resp := tasksResponse{
				Manager: d.manager.Stats(),
				Live:    make([]core.TaskStats, 0, len(live)),
				Recent:  d.manager.RecentTasks(limit),
			}
			for _, h := range live {
				resp.Live = append(resp.Live, h.Stats())
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Get("/fanout", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, fanoutResponse{
				Fanout: d.fanout.Stats(),
				Counts: d.counter.Counts(),
			})
		})
	})

	return r
}

// requestLogger logs each request at debug level with its status and latency.
func requestLogger(logger core.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				core.F("method", r.Method),
				core.F("path", r.URL.Path),
				core.F("status", ww.Status()),
				core.F("bytes", ww.BytesWritten()),
				core.F("latency", time.Since(start)),
				core.F("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  status,
	})
}
