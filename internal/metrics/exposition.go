package metrics

import (
	"fmt"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/timanema/fail2ban-exporter/internal/logger"
	"github.com/timanema/fail2ban-exporter/pkg/storage"
	"strconv"
	"strings"
)

// Exposition renders the counter store, and any extra collectors, in the Prometheus text format.
// The five store blocks always come first and in a fixed order; extra families follow sorted by name.
type Exposition struct {
	registry *prometheus.Registry
	log      *logger.Logger
}

func NewExposition(store storage.Storage, log *logger.Logger, extra ...prometheus.Collector) (*Exposition, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(newStoreCollector(store, log)); err != nil {
		return nil, errors.Wrap(err, "failed to register store collector")
	}
	for _, c := range extra {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register collector")
		}
	}

	return &Exposition{registry: reg, log: log}, nil
}

// Render never fails: gather and encoding errors are logged and whatever could be rendered is returned.
func (e *Exposition) Render() string {
	gathered, err := e.registry.Gather()
	if err != nil {
		e.log.Error().Err(err).Msg("failed to gather metrics")
	}

	byName := make(map[string]*dto.MetricFamily, len(gathered))
	for _, mf := range gathered {
		byName[mf.GetName()] = mf
	}

	var b strings.Builder
	for _, f := range families {
		if mf, ok := byName[f.name]; ok {
			e.write(&b, mf)
			delete(byName, f.name)
			continue
		}
		writeHeader(&b, f)
	}

	// Gather sorts by name, so iterating it keeps the extras deterministic.
	for _, mf := range gathered {
		if _, ok := byName[mf.GetName()]; ok {
			e.write(&b, mf)
		}
	}

	return b.String()
}

func (e *Exposition) write(b *strings.Builder, mf *dto.MetricFamily) {
	if mf.GetName() == lastUpdate.name {
		writeSeconds(b, mf)
		return
	}
	if _, err := expfmt.MetricFamilyToText(b, mf); err != nil {
		e.log.Error().Err(err).Str("family", mf.GetName()).Msg("failed to encode metric family")
	}
}

// writeHeader emits the HELP and TYPE lines of a family that currently has no samples.
func writeHeader(b *strings.Builder, f family) {
	fmt.Fprintf(b, "# HELP %s %s\n", f.name, f.help)
	fmt.Fprintf(b, "# TYPE %s %s\n", f.name, strings.ToLower(f.typ.String()))
}

// writeSeconds prints an epoch timestamp gauge as a plain integer, where expfmt would use exponent form.
func writeSeconds(b *strings.Builder, mf *dto.MetricFamily) {
	writeHeader(b, lastUpdate)
	for _, m := range mf.GetMetric() {
		fmt.Fprintf(b, "%s %s\n", mf.GetName(), strconv.FormatFloat(m.GetGauge().GetValue(), 'f', -1, 64))
	}
}
