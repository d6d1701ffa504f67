package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohamedkhairy/news-pipeline/internal/bus"
)

func TestFingerprint_Normalization(t *testing.T) {
	// Case and non-word characters must not change the fingerprint.
	a := Fingerprint("삼성전자, 호실적 발표!")
	b := Fingerprint("삼성전자 호실적   발표")
	if a != b {
		t.Errorf("normalized fingerprints differ: %s vs %s", a, b)
	}
	if len(a) != 12 {
		t.Errorf("fingerprint length = %d, want 12", len(a))
	}
	if Fingerprint("호실적") == Fingerprint("악재") {
		t.Error("distinct headlines collided")
	}
}

func TestDeduplicator_IsNewMarksOnce(t *testing.T) {
	ctx := context.Background()
	store := bus.NewMockBus(0)
	d := New(store)

	url := "https://finance.naver.com/a"
	if !d.IsNew(ctx, url) {
		t.Fatal("first probe should be new")
	}
	if d.IsNew(ctx, url) {
		t.Fatal("second probe should be duplicate")
	}
	if !d.IsDuplicate(ctx, url) {
		t.Fatal("IsDuplicate should see the mark")
	}
	if ttl := store.SetTTL("dedup:news:" + time.Now().Format("20060102")); ttl != 3*24*time.Hour {
		t.Errorf("set TTL = %v, want 72h", ttl)
	}
}

func TestDeduplicator_IsDuplicateDoesNotMark(t *testing.T) {
	ctx := context.Background()
	store := bus.NewMockBus(0)
	d := New(store)

	if d.IsDuplicate(ctx, "https://finance.naver.com/a") {
		t.Fatal("unseen key reported duplicate")
	}
	// The probe must not have marked anything.
	if !d.IsNew(ctx, "https://finance.naver.com/a") {
		t.Fatal("probe-only call marked the key")
	}
}

func TestDeduplicator_ThreeDayWindow(t *testing.T) {
	ctx := context.Background()
	store := bus.NewMockBus(0)

	day0 := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	d := New(store)
	d.now = func() time.Time { return day0 }

	url := "https://finance.naver.com/a"
	if !d.IsNew(ctx, url) {
		t.Fatal("day 0: should be new")
	}

	// Tomorrow and the day after still see the day-0 mark.
	for days := 1; days <= 2; days++ {
		d.now = func() time.Time { return day0.AddDate(0, 0, days) }
		if d.IsNew(ctx, url) {
			t.Fatalf("day %d: should still be duplicate", days)
		}
	}

	// Three days later the day-0 set has expired and the URL is novel
	// again.
	store.DropSet("dedup:news:20260826")
	d.now = func() time.Time { return day0.AddDate(0, 0, 3) }
	if !d.IsNew(ctx, url) {
		t.Fatal("day 3: should be new after window expiry")
	}
}

func TestDeduplicator_FailsOpenOnStorageError(t *testing.T) {
	ctx := context.Background()
	store := bus.NewMockBus(0)
	store.SetErr = errors.New("connection refused")
	d := New(store)

	// A storage outage must never suppress publication.
	if !d.IsNew(ctx, "https://finance.naver.com/a") {
		t.Fatal("storage error should fail open")
	}
	if d.IsDuplicate(ctx, "https://finance.naver.com/a") {
		t.Fatal("storage error should report not duplicate")
	}
}
