package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// metricsMux serves /metrics in Prometheus text exposition format, /healthz
// and /metrics.json.
func (s *Server) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/metrics.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(s.metrics.JSON()))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// startMetricsHTTP starts the metrics endpoint in the background. It shuts
// down when ctx is cancelled. An empty address disables it.
func (s *Server) startMetricsHTTP(ctx context.Context) {
	addr := s.cfg.Metrics.Addr
	if addr == "" {
		return // metrics endpoint disabled
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("gocollab_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("gocollab_connections_active", "Current registered connections.", "gauge",
		m.ActiveConnections.Load())
	write("gocollab_connections_total", "Lifetime websocket connections registered.", "counter",
		m.TotalConnections.Load())
	write("gocollab_connections_rejected_total", "Connections refused for bans or the per-IP limit.", "counter",
		m.RejectedConnections.Load())
	write("gocollab_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())
	write("gocollab_malformed_frames_total", "Frames that failed to parse.", "counter",
		m.MalformedFrames.Load())

	write("gocollab_auth_success_total", "Successful login attempts.", "counter",
		m.SuccessfulAuths.Load())
	write("gocollab_auth_failed_total", "Failed login attempts.", "counter",
		m.FailedAuths.Load())

	write("gocollab_chat_messages_total", "Chat lines broadcast.", "counter",
		m.ChatMessagesSent.Load())
	write("gocollab_turns_total", "Turns handed to a new holder.", "counter",
		m.TurnsGranted.Load())
	write("gocollab_votes_started_total", "Reset votes started.", "counter",
		m.VotesStarted.Load())
	write("gocollab_votes_finished_total", "Reset votes ended.", "counter",
		m.VotesFinished.Load())

	write("gocollab_frames_sent_total", "Screen updates delivered.", "counter",
		m.FramesSent.Load())
	write("gocollab_audio_packets_sent_total", "Opus packets delivered.", "counter",
		m.AudioPacketsSent.Load())
	write("gocollab_audio_frames_skipped_total", "Silent audio frames skipped.", "counter",
		m.AudioFramesSkipped.Load())

	write("gocollab_kicks_total", "Users kicked.", "counter",
		m.KickCount.Load())
	write("gocollab_bans_total", "Users banned.", "counter",
		m.BanCount.Load())
	write("gocollab_mutes_total", "Users muted.", "counter",
		m.MuteCount.Load())
}
