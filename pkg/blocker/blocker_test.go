package blocker

import (
	"errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/timanema/fail2ban-exporter/internal/logger"
	"strings"
	"testing"
)

type fakeLister struct {
	chains map[string][]string
	err    error
}

func (f fakeLister) ListChains(table string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := []string{"INPUT", "FORWARD", "OUTPUT", "f2b-"}
	for c := range f.chains {
		res = append(res, c)
	}
	return res, nil
}

func (f fakeLister) List(table, chain string) ([]string, error) {
	return f.chains[chain], nil
}

var sampleChains = map[string][]string{
	"f2b-sshd": {
		"-N f2b-sshd",
		"-A f2b-sshd -s 203.0.113.5/32 -j REJECT --reject-with icmp-port-unreachable",
		"-A f2b-sshd -s 198.51.100.7/32 -j REJECT --reject-with icmp-port-unreachable",
		"-A f2b-sshd -j RETURN",
	},
	"f2b-nginx": {
		"-N f2b-nginx",
		"-A f2b-nginx -j RETURN",
	},
	"docker-user": {
		"-A docker-user -s 10.0.0.1/32 -j DROP",
	},
}

func TestInspectorBanned(t *testing.T) {
	i := New(fakeLister{chains: sampleChains}, "filter", "f2b-")

	banned, err := i.Banned()
	if err != nil {
		t.Fatal(err)
	}

	if len(banned) != 2 {
		t.Fatalf("banned = %v, want only f2b chains", banned)
	}
	if banned["sshd"] != 2 {
		t.Errorf("sshd = %d, want 2", banned["sshd"])
	}
	if n, ok := banned["nginx"]; !ok || n != 0 {
		t.Errorf("nginx = %d (%v), want 0 and present", n, ok)
	}
}

func TestInspectorError(t *testing.T) {
	i := New(fakeLister{err: errors.New("permission denied")}, "filter", "f2b-")
	if _, err := i.Banned(); err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("got %v", err)
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector(New(fakeLister{chains: sampleChains}, "filter", "f2b-"), logger.Nop())

	want := `
# HELP f2b_firewall_banned Addresses currently blocked in the firewall per jail
# TYPE f2b_firewall_banned gauge
f2b_firewall_banned{jail="nginx"} 0
f2b_firewall_banned{jail="sshd"} 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want), MetricName); err != nil {
		t.Fatal(err)
	}
}

func TestCollectorSwallowsErrors(t *testing.T) {
	c := NewCollector(New(fakeLister{err: errors.New("no iptables")}, "filter", "f2b-"), logger.Nop())

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 0 {
		t.Fatalf("GatherAndCount = %d, %v; want 0, nil", n, err)
	}
}
