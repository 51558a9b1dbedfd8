// Package metrics 定义房间协调器暴露给 Prometheus 的指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 事件结果标签
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// 刷写结果标签
const (
	FlushOK      = "ok"
	FlushNoop    = "noop"
	FlushError   = "error"
	FlushDropped = "dropped" // 重试耗尽后放弃
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dormdesign_sessions_active",
		Help: "Number of connected sessions.",
	})

	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dormdesign_rooms_active",
		Help: "Number of rooms with at least one attached session.",
	})

	RoomEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dormdesign_room_events_total",
		Help: "Room events dispatched, by event name and outcome.",
	}, []string{"event", "outcome"})

	RoomFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dormdesign_room_flushes_total",
		Help: "Cache to durable store flushes, by result.",
	}, []string{"result"})

	StaleSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dormdesign_stale_sessions_total",
		Help: "Sessions terminated because their room was no longer cached.",
	})
)

// ObserveEvent 记录一次事件处理结果
func ObserveEvent(event string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	RoomEvents.WithLabelValues(event, outcome).Inc()
}

// Handler 返回 /metrics 端点
func Handler() http.Handler {
	return promhttp.Handler()
}
