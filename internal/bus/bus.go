package bus

import (
	"context"
	"time"
)

// Stream topology. Two independent consumer groups share the raw news
// stream; each process uses a fixed consumer name. Running two replicas
// with the same consumer name would split the pending list, so don't.
const (
	NewsStream       = "news.raw"
	NewsStreamMaxLen = 100_000

	GroupAnalyzer    = "group_analyzer"
	GroupArchiver    = "group_archiver"
	ConsumerAnalyzer = "analyzer_1"
	ConsumerArchiver = "archiver_1"

	// DefaultBlock is the longest a ReadNew call may block waiting for
	// entries before returning empty.
	DefaultBlock = 2 * time.Second
)

// Entry is one delivered stream entry: a monotonically increasing opaque id
// and the string-valued payload fields.
type Entry struct {
	ID     string
	Values map[string]interface{}
}

// Bus is the append-only multi-consumer log the pipeline runs on. Entries
// are retained in an approximate ring of NewsStreamMaxLen; under pressure
// the oldest entries are evicted even if unacked.
type Bus interface {
	// Publish appends a single entry.
	Publish(ctx context.Context, values map[string]interface{}) error

	// PublishBatch appends all entries in one pipelined round trip.
	PublishBatch(ctx context.Context, batch []map[string]interface{}) error

	// EnsureGroup idempotently creates a consumer group reading from the
	// beginning of the stream. An already-existing group is success.
	EnsureGroup(ctx context.Context, group string) error

	// ReadNew delivers up to count entries newer than the group cursor,
	// blocking up to block when none are available. Delivered entries
	// become pending for the named consumer until acked.
	ReadNew(ctx context.Context, group, consumer string, count int, block time.Duration) ([]Entry, error)

	// ReadPending replays entries previously delivered to this consumer
	// that have not been acknowledged.
	ReadPending(ctx context.Context, group, consumer string, count int) ([]Entry, error)

	// Ack acknowledges one or more entry ids for the group.
	Ack(ctx context.Context, group string, ids ...string) error

	Close() error
}

// SetStore is the slice of the substrate the deduplicator needs: dated
// fingerprint sets with a TTL refreshed on write.
type SetStore interface {
	SetContains(ctx context.Context, key, member string) (bool, error)
	SetAddWithTTL(ctx context.Context, key, member string, ttl time.Duration) error
}
