package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	accountRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncd",
		Subsystem: "account",
		Name:      "refreshes_total",
		Help:      "Account fetches against the backend, by result.",
	}, []string{"result"})

	accountPublishes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "syncd",
		Subsystem: "account",
		Name:      "publishes_total",
		Help:      "Validated account/keypair pairs published to consumers.",
	})

	deviceRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncd",
		Subsystem: "device",
		Name:      "refreshes_total",
		Help:      "Device payload fetches against the backend, by result.",
	}, []string{"result"})

	retentionWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncd",
		Subsystem: "device",
		Name:      "retention_writes_total",
		Help:      "Retention policy writes, by result.",
	}, []string{"result"})

	dnsProfileSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncd",
		Subsystem: "device",
		Name:      "dns_profile_saves_total",
		Help:      "Private-DNS profile installs triggered by tag changes, by result.",
	}, []string{"result"})
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
