package blocker

import (
	"github.com/coreos/go-iptables/iptables"
	"github.com/pkg/errors"
)

// NewIptables inspects the IPv4 iptables rules through the iptables binary.
func NewIptables(table, prefix string) (*Inspector, error) {
	ipt, err := iptables.New()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get iptables link")
	}

	return New(ipt, table, prefix), nil
}
