package bus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockBus is an in-memory Bus and SetStore for tests. It models real
// consumer-group semantics: per-group cursors, per-consumer pending lists,
// and ring eviction, so crash-recovery paths can be exercised without Redis.
type MockBus struct {
	mu      sync.Mutex
	nextSeq int64
	entries []mockEntry
	maxLen  int
	groups  map[string]*mockGroup

	sets    map[string]map[string]bool
	setTTLs map[string]time.Duration

	PublishErr error
	ReadErr    error
	AckErr     error
	SetErr     error
}

type mockEntry struct {
	seq    int64
	values map[string]interface{}
}

type mockGroup struct {
	cursor  int64              // highest seq delivered as "new"
	pending map[string][]int64 // consumer -> unacked seqs, delivery order
}

// NewMockBus returns an empty mock bus with the given ring cap
// (0 = unbounded).
func NewMockBus(maxLen int) *MockBus {
	return &MockBus{
		maxLen:  maxLen,
		groups:  make(map[string]*mockGroup),
		sets:    make(map[string]map[string]bool),
		setTTLs: make(map[string]time.Duration),
	}
}

func (m *MockBus) Publish(ctx context.Context, values map[string]interface{}) error {
	return m.PublishBatch(ctx, []map[string]interface{}{values})
}

func (m *MockBus) PublishBatch(ctx context.Context, batch []map[string]interface{}) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, values := range batch {
		m.nextSeq++
		m.entries = append(m.entries, mockEntry{seq: m.nextSeq, values: values})
	}
	if m.maxLen > 0 && len(m.entries) > m.maxLen {
		m.entries = m.entries[len(m.entries)-m.maxLen:]
	}
	return nil
}

func (m *MockBus) EnsureGroup(ctx context.Context, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[group]; !ok {
		m.groups[group] = &mockGroup{pending: make(map[string][]int64)}
	}
	return nil
}

func (m *MockBus) ReadNew(ctx context.Context, group, consumer string, count int, block time.Duration) ([]Entry, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[group]
	if !ok {
		return nil, fmt.Errorf("NOGROUP no such consumer group %q", group)
	}

	var out []Entry
	for _, e := range m.entries {
		if e.seq <= g.cursor {
			continue
		}
		out = append(out, Entry{ID: entryID(e.seq), Values: e.values})
		g.pending[consumer] = append(g.pending[consumer], e.seq)
		g.cursor = e.seq
		if len(out) >= count {
			break
		}
	}
	return out, nil
}

func (m *MockBus) ReadPending(ctx context.Context, group, consumer string, count int) ([]Entry, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[group]
	if !ok {
		return nil, fmt.Errorf("NOGROUP no such consumer group %q", group)
	}

	var out []Entry
	for _, seq := range g.pending[consumer] {
		e, live := m.lookup(seq)
		if !live {
			// Evicted from the ring while pending: accepted loss.
			continue
		}
		out = append(out, Entry{ID: entryID(e.seq), Values: e.values})
		if len(out) >= count {
			break
		}
	}
	return out, nil
}

func (m *MockBus) Ack(ctx context.Context, group string, ids ...string) error {
	if m.AckErr != nil {
		return m.AckErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[group]
	if !ok {
		return nil
	}
	acked := make(map[string]bool, len(ids))
	for _, id := range ids {
		acked[id] = true
	}
	for consumer, seqs := range g.pending {
		kept := seqs[:0]
		for _, seq := range seqs {
			if !acked[entryID(seq)] {
				kept = append(kept, seq)
			}
		}
		g.pending[consumer] = kept
	}
	return nil
}

func (m *MockBus) SetContains(ctx context.Context, key, member string) (bool, error) {
	if m.SetErr != nil {
		return false, m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets[key][member], nil
}

func (m *MockBus) SetAddWithTTL(ctx context.Context, key, member string, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[key] == nil {
		m.sets[key] = make(map[string]bool)
	}
	m.sets[key][member] = true
	m.setTTLs[key] = ttl
	return nil
}

func (m *MockBus) Close() error { return nil }

// Len returns the number of live entries in the ring.
func (m *MockBus) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// PendingCount returns the number of unacked entries for a consumer.
func (m *MockBus) PendingCount(group, consumer string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[group]
	if !ok {
		return 0
	}
	return len(g.pending[consumer])
}

// SetTTL returns the last TTL recorded for a set key.
func (m *MockBus) SetTTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setTTLs[key]
}

// DropSet removes a whole set, simulating TTL expiry.
func (m *MockBus) DropSet(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets, key)
	delete(m.setTTLs, key)
}

func (m *MockBus) lookup(seq int64) (mockEntry, bool) {
	for _, e := range m.entries {
		if e.seq == seq {
			return e, true
		}
	}
	return mockEntry{}, false
}

func entryID(seq int64) string {
	return fmt.Sprintf("%d-0", seq)
}
