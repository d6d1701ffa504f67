// Package dedup suppresses re-publication of articles already seen within a
// three-day sliding window of daily fingerprint sets.
package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/mohamedkhairy/news-pipeline/internal/bus"
	"github.com/mohamedkhairy/news-pipeline/pkg/logger"
)

const (
	keyPrefix  = "dedup:news:"
	windowDays = 3
	setTTL     = windowDays * 24 * time.Hour
)

// Deduplicator answers "have we seen this key in the last three days".
// Collisions within the window are acceptable: the occasional silently
// dropped article is cheaper than duplicate LLM spend. Storage errors fail
// open so a Redis outage never loses novel articles.
type Deduplicator struct {
	store bus.SetStore
	now   func() time.Time
}

// New creates a deduplicator over the given set store.
func New(store bus.SetStore) *Deduplicator {
	return &Deduplicator{store: store, now: time.Now}
}

// Fingerprint returns the first 12 hex chars of an MD5 over the lowercased,
// non-word-stripped input. Pure function of the text.
func Fingerprint(text string) string {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, text)
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])[:12]
}

// IsNew reports whether key is unseen across the window and, if so, marks
// it in today's set. Probe and mark are one logical operation; concurrent
// callers may race, and the resulting double publish is absorbed by
// downstream idempotency.
func (d *Deduplicator) IsNew(ctx context.Context, key string) bool {
	if d.IsDuplicate(ctx, key) {
		return false
	}
	d.markSeen(ctx, key)
	return true
}

// IsDuplicate is a membership probe over the last three daily sets, without
// marking. Any storage error is treated as "not duplicate".
func (d *Deduplicator) IsDuplicate(ctx context.Context, key string) bool {
	fp := Fingerprint(key)
	today := d.now()
	for i := 0; i < windowDays; i++ {
		day := today.AddDate(0, 0, -i)
		seen, err := d.store.SetContains(ctx, d.key(day), fp)
		if err != nil {
			logger.Debug("Dedup probe failed, treating as new",
				logger.ErrorField(err),
				logger.String("key", d.key(day)),
			)
			return false
		}
		if seen {
			return true
		}
	}
	return false
}

func (d *Deduplicator) markSeen(ctx context.Context, key string) {
	fp := Fingerprint(key)
	if err := d.store.SetAddWithTTL(ctx, d.key(d.now()), fp, setTTL); err != nil {
		logger.Debug("Failed to mark article as seen",
			logger.ErrorField(err),
		)
	}
}

func (d *Deduplicator) key(t time.Time) string {
	return fmt.Sprintf("%s%s", keyPrefix, t.Format("20060102"))
}
