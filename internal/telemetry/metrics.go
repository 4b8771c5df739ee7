/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ktv_api_request_duration_seconds",
		Help:    "Control API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ktv_api_requests_total",
		Help: "Control API requests served.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ktv_api_active_connections",
		Help: "In-flight control API requests.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ktv_api_websocket_connections",
		Help: "Connected player event websocket clients.",
	})

	// Playback metrics
	BufferingStallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ktv_playback_buffering_stalls_total",
		Help: "Times playback was paused because a required track starved.",
	}, []string{"track"})

	DriftCorrectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ktv_playback_drift_corrections_total",
		Help: "Follower track seeks issued to correct drift.",
	}, []string{"track"})

	CrossfadesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ktv_playback_crossfades_total",
		Help: "Vocal-mode crossfades by target and result.",
	}, []string{"target", "result"})

	TrackLoadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ktv_playback_track_load_failures_total",
		Help: "Fatal media load errors by track.",
	}, []string{"track"})

	DegradationMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ktv_playback_degradation_mode",
		Help: "1 for the current degradation mode of the active session.",
	}, []string{"mode"})

	SessionsLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ktv_playback_sessions_loaded_total",
		Help: "Song sessions loaded.",
	})

	// Event forwarding
	EventForwardErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ktv_eventbus_forward_errors_total",
		Help: "Player events that failed to reach the external bus.",
	}, []string{"backend"})
)

// SetDegradationMode marks mode as the current one.
func SetDegradationMode(mode string) {
	DegradationMode.Reset()
	DegradationMode.WithLabelValues(mode).Set(1)
}

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
