// Package metrics exposes Prometheus counters and gauges for the game
// server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gameplus_ws_connections_open",
		Help: "Currently open match WebSocket connections.",
	})

	MovesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gameplus_moves_total",
		Help: "Accepted moves across all matches.",
	})

	MatchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gameplus_matches_finished_total",
		Help: "Finished matches by terminal reason.",
	}, []string{"reason"})

	RoomsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gameplus_lobby_rooms_open",
		Help: "Lobby rooms currently in waiting status.",
	})
)
