package state

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ValentinKolb/dHA/lib/durability"
	"github.com/ValentinKolb/dHA/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("state")

type managerImpl struct {
	store  store.IStore
	prefix string

	mu    sync.Mutex // serializes log writes
	seq   uint64
	index map[string][]string // transaction id -> log keys
}

// NewStateManager opens the state of cluster in s. Existing log entries are indexed
// so Truncate works across restarts.
func NewStateManager(s store.IStore, cluster string) (IStateManager, error) {
	if cluster == "" {
		return nil, fmt.Errorf("state: cluster id must not be empty")
	}
	if strings.Contains(cluster, "/") {
		return nil, fmt.Errorf("state: cluster id %q must not contain '/'", cluster)
	}

	m := &managerImpl{
		store:  s,
		prefix: cluster + "/",
		index:  make(map[string][]string),
	}

	entries, err := s.Scan(m.logPrefix())
	if err != nil {
		return nil, fmt.Errorf("state: failed to scan log: %w", err)
	}
	for _, entry := range entries {
		seq, err := m.parseSeq(entry.Key)
		if err != nil {
			log.Errorf("ignoring log entry with invalid key %q: %v", entry.Key, err)
			continue
		}
		if seq > m.seq {
			m.seq = seq
		}
		var ev durability.Event
		if err := ev.Deserialize(entry.Value); err != nil {
			log.Errorf("ignoring corrupt log entry %q: %v", entry.Key, err)
			continue
		}
		m.index[ev.TxID] = append(m.index[ev.TxID], entry.Key)
	}
	if len(entries) > 0 {
		log.Infof("cluster %s: opened durability log with %d events (last seq %d)", cluster, len(entries), m.seq)
	}
	return m, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see state/interface.go)
// --------------------------------------------------------------------------

func (m *managerImpl) ActiveReplicas() ([]string, bool, error) {
	return m.getList("active")
}

func (m *managerImpl) SetActiveReplicas(ids []string) error {
	return m.setList("active", ids)
}

func (m *managerImpl) ResyncRequired() ([]string, error) {
	ids, _, err := m.getList("resync")
	return ids, err
}

func (m *managerImpl) SetResyncRequired(ids []string) error {
	return m.setList("resync", ids)
}

func (m *managerImpl) Append(ev durability.Event) (durability.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.Seq = m.seq + 1
	key := m.logKey(ev.Seq)
	if err := m.store.Set(key, ev.Serialize()); err != nil {
		return durability.Event{}, err
	}
	m.seq = ev.Seq
	m.index[ev.TxID] = append(m.index[ev.TxID], key)
	return ev, nil
}

func (m *managerImpl) Truncate(txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, ok := m.index[txID]
	if !ok {
		return nil
	}
	if err := m.store.Delete(keys...); err != nil {
		return err
	}
	delete(m.index, txID)
	return nil
}

func (m *managerImpl) Events() ([]durability.Event, error) {
	entries, err := m.store.Scan(m.logPrefix())
	if err != nil {
		return nil, err
	}
	events := make([]durability.Event, 0, len(entries))
	for _, entry := range entries {
		seq, err := m.parseSeq(entry.Key)
		if err != nil {
			continue
		}
		var ev durability.Event
		if err := ev.Deserialize(entry.Value); err != nil {
			log.Errorf("skipping corrupt log entry %q: %v", entry.Key, err)
			continue
		}
		ev.Seq = seq
		events = append(events, ev)
	}
	return events, nil
}

func (m *managerImpl) Close() error {
	return m.store.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (m *managerImpl) logPrefix() string {
	return m.prefix + "log/"
}

func (m *managerImpl) logKey(seq uint64) string {
	return fmt.Sprintf("%s%020d", m.logPrefix(), seq)
}

func (m *managerImpl) parseSeq(key string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(key, m.logPrefix()), 10, 64)
}

func (m *managerImpl) getList(name string) ([]string, bool, error) {
	val, ok, err := m.store.Get(m.prefix + name)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(val) == 0 {
		return []string{}, true, nil
	}
	return strings.Split(string(val), "\n"), true, nil
}

func (m *managerImpl) setList(name string, ids []string) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return m.store.Set(m.prefix+name, []byte(strings.Join(sorted, "\n")))
}
