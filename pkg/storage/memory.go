package storage

import (
	"sync"
	"time"
)

type MemoryStorage struct {
	lock sync.RWMutex

	addresses  map[string]uint64
	jails      map[string]JailStats
	lastUpdate time.Time
}

func NewMemoryStore() Storage {
	return &MemoryStorage{
		lock:       sync.RWMutex{},
		addresses:  make(map[string]uint64),
		jails:      make(map[string]JailStats),
		lastUpdate: time.Now(),
	}
}

func (m *MemoryStorage) AddBan(address, jail string) error {
	if address == "" || jail == "" {
		return InvalidEntryErr
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.addresses[address]++

	stats := m.jails[jail]
	stats.Banned++
	m.jails[jail] = stats
	return nil
}

func (m *MemoryStorage) AddUnban(jail string) error {
	if jail == "" {
		return InvalidEntryErr
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	stats := m.jails[jail]
	stats.Unbanned++
	m.jails[jail] = stats
	return nil
}

func (m *MemoryStorage) SetLastUpdate(t time.Time) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.lastUpdate = t
	return nil
}

func (m *MemoryStorage) Snapshot() (Snapshot, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	res := Snapshot{
		Addresses:  make(map[string]uint64, len(m.addresses)),
		Jails:      make(map[string]JailStats, len(m.jails)),
		LastUpdate: m.lastUpdate,
	}
	for address, n := range m.addresses {
		res.Addresses[address] = n
	}
	for jail, stats := range m.jails {
		res.Jails[jail] = stats
	}

	return res, nil
}
