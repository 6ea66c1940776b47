package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequestsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "queue_vision_http_requests_total",
	Help: "counter of dashboard API requests served, by route and status code",
}, []string{"route", "code"})

var streamClientsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "queue_vision_stream_clients",
	Help: "gauge of connected event-stream clients",
}, []string{"transport"})

var eventsBroadcastCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "queue_vision_events_broadcast_total",
	Help: "counter of job events fanned out to event-stream clients",
})

var eventsDroppedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "queue_vision_stream_events_dropped_total",
	Help: "counter of job events dropped because a stream client was too slow",
}, []string{"transport"})
