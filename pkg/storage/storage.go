package storage

import (
	"github.com/pkg/errors"
	"time"
)

var InvalidEntryErr = errors.New("invalid entry")

// JailStats holds the cumulative ban and unban counts observed for a single jail.
type JailStats struct {
	Banned   uint64
	Unbanned uint64
}

// Snapshot is a point-in-time copy of the counters, safe to read without locking.
type Snapshot struct {
	Addresses  map[string]uint64
	Jails      map[string]JailStats
	LastUpdate time.Time
}

// TotalBanned returns the sum of all per-address ban counts.
func (s Snapshot) TotalBanned() uint64 {
	var total uint64
	for _, n := range s.Addresses {
		total += n
	}
	return total
}

type Storage interface {
	AddBan(address, jail string) error
	AddUnban(jail string) error
	SetLastUpdate(t time.Time) error
	Snapshot() (Snapshot, error)
}
