// Package metrics holds the prometheus collectors shared by the data handler, the cache
// helpers and the classifier.
package metrics

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	log "github.com/sirupsen/logrus"
)

const (
	OutcomeSuccess      = "success"
	OutcomeNotFilled    = "not_filled"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
	CacheHit            = "hit"
	CacheMiss           = "miss"
	CacheError          = "error"
	VerdictCandidate    = "candidate"
	VerdictLikely       = "likely"
	VerdictPossible     = "possible"
	VerdictAttributed   = "attributed_to_ancestor"
	VerdictTooFar       = "too_far"
	VerdictUnresolved   = "unresolved"
	pushGatewayEnvVar   = "CULPRIT_PROMETHEUS_PUSHGATEWAY"
	pushGatewayJobLabel = "culprit"
)

var (
	SourceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "culprit_source_requests_total",
		Help: "Requests made to data sources by contract, source and outcome",
	}, []string{"contract", "source", "outcome"})

	SourceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "culprit_source_request_millis",
		Help:    "Milliseconds spent in a data source request",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 5000, 10000, 30000},
	}, []string{"contract", "source"})

	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "culprit_cache_requests_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "culprit_verdicts_total",
		Help: "Runnable verdicts produced by the classifier",
	}, []string{"kind", "verdict"})

	ClassifyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "culprit_classify_millis",
		Help:    "Milliseconds to classify the regressions of a push",
		Buckets: []float64{10, 100, 500, 1000, 5000, 10000, 30000, 60000, 300000},
	}, []string{"kind"})
)

// ObserveSource records one source request.
func ObserveSource(contract, source, outcome string, start time.Time) {
	SourceRequests.WithLabelValues(contract, source, outcome).Inc()
	SourceLatency.WithLabelValues(contract, source).Observe(float64(time.Since(start).Milliseconds()))
}

// PushToGateway pushes the collectors to a prometheus pushgateway when one is configured,
// for one shot CLI runs that are never scraped.
func PushToGateway() {
	gateway := os.Getenv(pushGatewayEnvVar)
	if gateway == "" {
		return
	}

	pusher := push.New(gateway, pushGatewayJobLabel).
		Collector(SourceRequests).
		Collector(SourceLatency).
		Collector(CacheRequests).
		Collector(Verdicts).
		Collector(ClassifyDuration)

	log.Info("pushing metrics to prometheus gateway")
	if err := pusher.Add(); err != nil {
		log.WithError(err).Error("could not push to prometheus pushgateway")
		return
	}
	log.Info("successfully pushed metrics to prometheus gateway")
}
