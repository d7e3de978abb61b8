// Package cookies persists HTTP cookies per origin and answers which cookies
// belong to a request.
package cookies

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/oeee-cafe/oeee-client/internal/kv"
	"github.com/oeee-cafe/oeee-client/internal/lib/logger/sl"
	"github.com/oeee-cafe/oeee-client/internal/metrics"
	"github.com/oeee-cafe/oeee-client/internal/models"
)

// persistedAtKey records when the namespace was last written, so remaining
// max-ages keep their absolute expiry across restarts. It can never collide
// with an origin because it has no scheme or host.
const persistedAtKey = "#meta#persisted_at"

const storageTimeout = 5 * time.Second

// Option configures RecordStore and Store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// RecordStore owns the persisted cookie records, bucketed by origin. Every
// mutation rewrites the whole namespace in the backing kv.Store.
type RecordStore struct {
	mu      sync.Mutex
	log     *slog.Logger
	store   kv.Store
	metrics *metrics.Metrics
	now     func() time.Time
	buckets map[string][]models.CookieRecord
}

// NewRecordStore loads the persisted records from store. Malformed and expired
// records are dropped; only a failure to read the store is an error.
func NewRecordStore(
	ctx context.Context,
	log *slog.Logger,
	store kv.Store,
	m *metrics.Metrics,
	opts ...Option,
) (*RecordStore, error) {
	o := buildOptions(opts)
	rs := &RecordStore{
		log:     log.With(slog.String("op", "cookies.RecordStore")),
		store:   store,
		metrics: m,
		now:     o.now,
		buckets: make(map[string][]models.CookieRecord),
	}

	if err := rs.load(ctx); err != nil {
		return nil, err
	}

	return rs, nil
}

func (rs *RecordStore) load(ctx context.Context) error {
	entries, err := rs.store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cookies: %w", err)
	}

	now := rs.now()
	storedAt := now
	if raw, ok := entries[persistedAtKey]; ok {
		if millis, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			if at := time.UnixMilli(millis); !at.After(now) {
				storedAt = at
			}
		}
		delete(entries, persistedAtKey)
	}

	var skipped, expired int
	for origin, raw := range entries {
		parsed, parseErr := url.Parse(origin)
		if parseErr != nil || parsed.Host == "" {
			rs.log.WarnContext(ctx, "Skipping cookie entry with malformed origin", "origin", origin)
			skipped++
			continue
		}

		records, bad := decodeRecords(raw, storedAt)
		skipped += bad

		kept := records[:0]
		for _, rec := range records {
			if rec.HasExpired(now) {
				expired++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) > 0 {
			rs.buckets[origin] = kept
		}
	}

	if skipped > 0 {
		rs.log.WarnContext(ctx, "Skipped malformed cookie records", "count", skipped)
		if rs.metrics != nil {
			rs.metrics.CookieRecordsSkipped.Add(float64(skipped))
		}
	}
	if expired > 0 && rs.metrics != nil {
		rs.metrics.CookiesPurged.Add(float64(expired))
	}
	rs.log.DebugContext(ctx, "Cookies loaded", "origins", len(rs.buckets), "expired", expired)

	return nil
}

// Put replaces the bucket of origin and persists. An empty slice drops the bucket.
func (rs *RecordStore) Put(origin string, records []models.CookieRecord) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if len(records) == 0 {
		delete(rs.buckets, origin)
	} else {
		rs.buckets[origin] = append([]models.CookieRecord(nil), records...)
	}

	return rs.persist()
}

// Bucket returns a copy of the records stored for origin.
func (rs *RecordStore) Bucket(origin string) []models.CookieRecord {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	return append([]models.CookieRecord(nil), rs.buckets[origin]...)
}

// All returns a copy of every bucket.
func (rs *RecordStore) All() map[string][]models.CookieRecord {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	all := make(map[string][]models.CookieRecord, len(rs.buckets))
	for origin, records := range rs.buckets {
		all[origin] = append([]models.CookieRecord(nil), records...)
	}

	return all
}

// Clear drops every record and persists the empty state.
func (rs *RecordStore) Clear() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.buckets = make(map[string][]models.CookieRecord)

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	if err := rs.store.Clear(ctx); err != nil {
		rs.log.ErrorContext(ctx, "Failed to clear persisted cookies", sl.Err(err))
		return fmt.Errorf("failed to clear cookies: %w", err)
	}

	return nil
}

// persist writes every non-expired record. Callers hold rs.mu.
func (rs *RecordStore) persist() error {
	now := rs.now()
	entries := make(map[string]string, len(rs.buckets)+1)

	for origin, records := range rs.buckets {
		live := make([]models.CookieRecord, 0, len(records))
		for _, rec := range records {
			if !rec.HasExpired(now) {
				live = append(live, rec)
			}
		}
		if len(live) > 0 {
			entries[origin] = encodeRecords(live, now)
		}
	}
	entries[persistedAtKey] = strconv.FormatInt(now.UnixMilli(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	if err := rs.store.ReplaceAll(ctx, entries); err != nil {
		rs.log.ErrorContext(ctx, "Failed to persist cookies", sl.Err(err))
		return fmt.Errorf("failed to persist cookies: %w", err)
	}

	return nil
}
