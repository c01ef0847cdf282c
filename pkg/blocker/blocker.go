// Package blocker reads the bans fail2ban currently enforces in the firewall.
//
// fail2ban's iptables actions create one chain per jail (f2b-<jail> by default) holding a
// "-s <address> -j <target>" rule for every active ban, followed by a RETURN rule.
package blocker

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/timanema/fail2ban-exporter/internal/logger"
	"strings"
)

const MetricName = "f2b_firewall_banned"

// Lister is the part of *iptables.IPTables the inspector uses.
type Lister interface {
	ListChains(table string) ([]string, error)
	List(table, chain string) ([]string, error)
}

type Inspector struct {
	lister Lister
	table  string
	prefix string
}

func New(lister Lister, table, prefix string) *Inspector {
	return &Inspector{
		lister: lister,
		table:  table,
		prefix: prefix,
	}
}

// Banned returns the number of blocked sources per jail.
func (i *Inspector) Banned() (map[string]int, error) {
	chains, err := i.lister.ListChains(i.table)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list chains of table %v", i.table)
	}

	res := make(map[string]int)
	for _, chain := range chains {
		if !strings.HasPrefix(chain, i.prefix) || len(chain) == len(i.prefix) {
			continue
		}

		rules, err := i.lister.List(i.table, chain)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list rules of chain %v", chain)
		}

		jail := strings.TrimPrefix(chain, i.prefix)
		res[jail] = 0
		for _, rule := range rules {
			if strings.HasPrefix(rule, "-A ") && strings.Contains(rule, " -s ") {
				res[jail]++
			}
		}
	}

	return res, nil
}

// Collector exposes Inspector.Banned as a gauge per jail.
type Collector struct {
	inspector *Inspector
	log       *logger.Logger
	desc      *prometheus.Desc
}

func NewCollector(inspector *Inspector, log *logger.Logger) *Collector {
	return &Collector{
		inspector: inspector,
		log:       log,
		desc:      prometheus.NewDesc(MetricName, "Addresses currently blocked in the firewall per jail", []string{"jail"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	banned, err := c.inspector.Banned()
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to inspect firewall bans")
		return
	}

	for jail, n := range banned {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), jail)
	}
}
