package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/timanema/fail2ban-exporter/internal/logger"
	"github.com/timanema/fail2ban-exporter/pkg/storage"
)

type family struct {
	name string
	help string
	typ  dto.MetricType
}

var (
	bannedTotal     = family{"f2b_banned_total", "Total number of banned IPs", dto.MetricType_COUNTER}
	jailBanned      = family{"f2b_jail_banned_total", "Total bans per jail", dto.MetricType_COUNTER}
	jailUnbanned    = family{"f2b_jail_unbanned_total", "Total unbans per jail", dto.MetricType_COUNTER}
	currentlyBanned = family{"f2b_currently_banned", "Current number of banned IPs", dto.MetricType_GAUGE}
	lastUpdate      = family{"f2b_exporter_last_update_seconds", "Last update timestamp", dto.MetricType_GAUGE}
)

// families is the fixed block order of the exposition.
var families = []family{bannedTotal, jailBanned, jailUnbanned, currentlyBanned, lastUpdate}

// storeCollector exposes a storage.Storage snapshot as constant metrics.
type storeCollector struct {
	store storage.Storage
	log   *logger.Logger

	bannedTotal     *prometheus.Desc
	jailBanned      *prometheus.Desc
	jailUnbanned    *prometheus.Desc
	currentlyBanned *prometheus.Desc
	lastUpdate      *prometheus.Desc
}

func newStoreCollector(store storage.Storage, log *logger.Logger) *storeCollector {
	return &storeCollector{
		store:           store,
		log:             log,
		bannedTotal:     prometheus.NewDesc(bannedTotal.name, bannedTotal.help, nil, nil),
		jailBanned:      prometheus.NewDesc(jailBanned.name, jailBanned.help, []string{"jail"}, nil),
		jailUnbanned:    prometheus.NewDesc(jailUnbanned.name, jailUnbanned.help, []string{"jail"}, nil),
		currentlyBanned: prometheus.NewDesc(currentlyBanned.name, currentlyBanned.help, nil, nil),
		lastUpdate:      prometheus.NewDesc(lastUpdate.name, lastUpdate.help, nil, nil),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bannedTotal
	ch <- c.jailBanned
	ch <- c.jailUnbanned
	ch <- c.currentlyBanned
	ch <- c.lastUpdate
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	snap, err := c.store.Snapshot()
	if err != nil {
		c.log.Error().Err(err).Msg("failed to snapshot counters")
		return
	}

	ch <- prometheus.MustNewConstMetric(c.bannedTotal, prometheus.CounterValue, float64(snap.TotalBanned()))
	for jail, stats := range snap.Jails {
		ch <- prometheus.MustNewConstMetric(c.jailBanned, prometheus.CounterValue, float64(stats.Banned), jail)
		ch <- prometheus.MustNewConstMetric(c.jailUnbanned, prometheus.CounterValue, float64(stats.Unbanned), jail)
	}
	ch <- prometheus.MustNewConstMetric(c.currentlyBanned, prometheus.GaugeValue, float64(len(snap.Addresses)))
	ch <- prometheus.MustNewConstMetric(c.lastUpdate, prometheus.GaugeValue, float64(snap.LastUpdate.Unix()))
}
