package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections    atomic.Int64 // lifetime websocket connections registered
	ActiveConnections   atomic.Int64 // current registered connections
	RejectedConnections atomic.Int64 // refused for bans or the per-IP limit
	TotalDisconnects    atomic.Int64 // total client disconnects (clean + unclean)
	MalformedFrames     atomic.Int64 // frames that failed to parse

	// Auth counters
	FailedAuths     atomic.Int64 // failed login and admin login attempts
	SuccessfulAuths atomic.Int64 // successful login and admin login attempts

	// Session counters
	ChatMessagesSent atomic.Int64 // chat lines broadcast
	TurnsGranted     atomic.Int64 // turns handed to a new holder
	VotesStarted     atomic.Int64 // reset votes started
	VotesFinished    atomic.Int64 // reset votes ended (expired or forced)

	// Media counters
	FramesSent         atomic.Int64 // screen updates delivered (per recipient)
	AudioPacketsSent   atomic.Int64 // opus packets delivered (per recipient)
	AudioFramesSkipped atomic.Int64 // silent audio frames not encoded

	// Admin counters
	KickCount atomic.Int64 // users kicked
	BanCount  atomic.Int64 // users banned
	MuteCount atomic.Int64 // users muted (manual and automatic)
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections   int64 `json:"active_connections"`
	TotalConnections    int64 `json:"total_connections"`
	RejectedConnections int64 `json:"rejected_connections"`
	TotalDisconnects    int64 `json:"total_disconnects"`
	MalformedFrames     int64 `json:"malformed_frames"`

	SuccessfulAuths int64 `json:"successful_auths"`
	FailedAuths     int64 `json:"failed_auths"`

	ChatMessagesSent int64 `json:"chat_messages_sent"`
	TurnsGranted     int64 `json:"turns_granted"`
	VotesStarted     int64 `json:"votes_started"`
	VotesFinished    int64 `json:"votes_finished"`

	FramesSent         int64 `json:"frames_sent"`
	AudioPacketsSent   int64 `json:"audio_packets_sent"`
	AudioFramesSkipped int64 `json:"audio_frames_skipped"`

	KickCount int64 `json:"kick_count"`
	BanCount  int64 `json:"ban_count"`
	MuteCount int64 `json:"mute_count"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:              uptime.Truncate(time.Second).String(),
		UptimeSeconds:       int64(uptime.Seconds()),
		ActiveConnections:   m.ActiveConnections.Load(),
		TotalConnections:    m.TotalConnections.Load(),
		RejectedConnections: m.RejectedConnections.Load(),
		TotalDisconnects:    m.TotalDisconnects.Load(),
		MalformedFrames:     m.MalformedFrames.Load(),
		SuccessfulAuths:     m.SuccessfulAuths.Load(),
		FailedAuths:         m.FailedAuths.Load(),
		ChatMessagesSent:    m.ChatMessagesSent.Load(),
		TurnsGranted:        m.TurnsGranted.Load(),
		VotesStarted:        m.VotesStarted.Load(),
		VotesFinished:       m.VotesFinished.Load(),
		FramesSent:          m.FramesSent.Load(),
		AudioPacketsSent:    m.AudioPacketsSent.Load(),
		AudioFramesSkipped:  m.AudioFramesSkipped.Load(),
		KickCount:           m.KickCount.Load(),
		BanCount:            m.BanCount.Load(),
		MuteCount:           m.MuteCount.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"chat_msgs", s.ChatMessagesSent,
		"turns", s.TurnsGranted,
		"frames_sent", s.FramesSent,
		"audio_pkts", s.AudioPacketsSent,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
