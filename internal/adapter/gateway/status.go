package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"voicekey/internal/adapter/overlay"
	"voicekey/internal/domain"
)

// Version is reported by the status endpoint. Overridden at build time.
var Version = "dev"

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	App      AppStatus     `json:"app"`
	Session  SessionStatus `json:"session"`
	Overlay  overlay.State `json:"overlay"`
	Clients  int           `json:"clients"`
	Counters CounterStatus `json:"counters"`
}

// AppStatus holds process overview info.
type AppStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// SessionStatus describes the recording state machine.
type SessionStatus struct {
	Mode     domain.RecordingMode `json:"mode"`
	Stopping bool                 `json:"stopping"`
	Armed    domain.ChordTarget   `json:"armed,omitempty"`
}

// CounterStatus holds cumulative counters.
type CounterStatus struct {
	SessionsStarted   int64 `json:"sessions_started"`
	SessionsFinished  int64 `json:"sessions_finished"`
	SessionsCancelled int64 `json:"sessions_cancelled"`
	Deliveries        int64 `json:"deliveries"`
	ChordsRecorded    int64 `json:"chords_recorded"`
}

// Metrics tracks counters for the status API and the metrics endpoint.
type Metrics struct {
	SessionsStarted   atomic.Int64
	SessionsFinished  atomic.Int64
	SessionsCancelled atomic.Int64
	Deliveries        atomic.Int64
	ChordsRecorded    atomic.Int64
}

func (m *Metrics) snapshot() CounterStatus {
	return CounterStatus{
		SessionsStarted:   m.SessionsStarted.Load(),
		SessionsFinished:  m.SessionsFinished.Load(),
		SessionsCancelled: m.SessionsCancelled.Load(),
		Deliveries:        m.Deliveries.Load(),
		ChordsRecorded:    m.ChordsRecorded.Load(),
	}
}

// Subscribe counts bus events until the returned function is called.
func (m *Metrics) Subscribe(bus domain.EventBus) func() {
	counters := map[domain.EventType]*atomic.Int64{
		domain.EventSessionStarted:   &m.SessionsStarted,
		domain.EventSessionFinished:  &m.SessionsFinished,
		domain.EventSessionCancelled: &m.SessionsCancelled,
		domain.EventOutputDelivered:  &m.Deliveries,
		domain.EventShortcutRecorded: &m.ChordsRecorded,
	}
	unsubs := make([]func(), 0, len(counters))
	for t, c := range counters {
		unsubs = append(unsubs, bus.Subscribe(t, func(context.Context, domain.Event) { c.Add(1) }))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// RegisterRESTHandlers registers the status and metrics endpoints on the
// gateway server. Both require a gateway token.
func RegisterRESTHandlers(s *Server, deps HandlerDeps) *Metrics {
	startTime := time.Now()
	metrics := &Metrics{}
	if deps.Bus != nil {
		metrics.Subscribe(deps.Bus)
	}

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if token == "" {
				token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if _, err := s.auth.Authenticate(token); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	s.RegisterHTTPRoute("/api/v1/status", authMiddleware(statusHandler(deps, s.ClientCount, startTime, metrics)))
	s.RegisterHTTPRoute("/metrics", authMiddleware(metricsHandler(deps, startTime, metrics)))
	return metrics
}

func sessionStatus(deps HandlerDeps) SessionStatus {
	var st SessionStatus
	if deps.Machine != nil {
		st.Mode = deps.Machine.Mode()
		st.Stopping = deps.Machine.IsStopping()
	}
	if deps.Router != nil {
		st.Armed = deps.Router.Armed()
	}
	return st
}

// statusHandler returns an HTTP handler for GET /api/v1/status.
func statusHandler(deps HandlerDeps, clients func() int, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		resp := StatusResponse{
			App: AppStatus{
				Name:          "voicekey",
				Version:       Version,
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Session:  sessionStatus(deps),
			Clients:  clients(),
			Counters: metrics.snapshot(),
		}
		if deps.Overlay != nil {
			resp.Overlay = deps.Overlay.Snapshot()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
func metricsHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		c := metrics.snapshot()
		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
		}
		gauge := func(name, help string, v float64) {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", name, help, name, name, v)
		}

		counter("voicekey_sessions_started_total", "Recording sessions started.", c.SessionsStarted)
		counter("voicekey_sessions_finished_total", "Recording sessions that produced a transcript.", c.SessionsFinished)
		counter("voicekey_sessions_cancelled_total", "Recording sessions discarded.", c.SessionsCancelled)
		counter("voicekey_deliveries_total", "Results delivered to the user.", c.Deliveries)
		counter("voicekey_chords_recorded_total", "Global shortcuts re-recorded.", c.ChordsRecorded)

		recording := 0.0
		if st := sessionStatus(deps); st.Mode != "" && st.Mode != domain.ModeIdle {
			recording = 1
		}
		gauge("voicekey_recording", "Whether a session is live.", recording)
		gauge("voicekey_uptime_seconds", "Seconds since start.", float64(int64(time.Since(startTime).Seconds())))

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		gauge("go_goroutines", "Number of goroutines.", float64(runtime.NumGoroutine()))
		gauge("go_memstats_alloc_bytes", "Bytes of allocated heap objects.", float64(mem.Alloc))
	}
}
