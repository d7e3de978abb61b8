package cookies

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oeee-cafe/oeee-client/internal/lib/logger/sl"
	"github.com/oeee-cafe/oeee-client/internal/metrics"
	"github.com/oeee-cafe/oeee-client/internal/models"
)

// Store answers which cookies belong to a request origin. It holds no copies:
// every call reads the RecordStore.
type Store struct {
	mu      sync.Mutex
	log     *slog.Logger
	records *RecordStore
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewStore creates a Store over records.
func NewStore(log *slog.Logger, records *RecordStore, m *metrics.Metrics, opts ...Option) *Store {
	o := buildOptions(opts)

	return &Store{
		log:     log.With(slog.String("op", "cookies.Store")),
		records: records,
		metrics: m,
		now:     o.now,
	}
}

// OriginKey returns the bucket key of u: lowercased scheme and host, without
// the port, so a cookie set through one port replaces the same name on another.
func OriginKey(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	return strings.ToLower(u.Scheme) + "://" + host
}

// Add files rec under origin, replacing any record with the same name.
func (s *Store) Add(origin *url.URL, rec models.CookieRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count("add")
	key := OriginKey(origin)
	now := s.now()
	if rec.StoredAt.IsZero() {
		rec.StoredAt = now
	}

	bucket, _ := s.purged(key, now)
	kept := bucket[:0]
	for _, existing := range bucket {
		if existing.Name != rec.Name {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, rec)

	if err := s.records.Put(key, kept); err != nil {
		s.log.Error("Failed to store cookie", sl.Cookie(rec.Name, origin.Hostname()), sl.Err(err))
		return err
	}

	return nil
}

// Get returns every live cookie whose origin host is a suffix of the host of
// origin, or has it as a suffix. The match is deliberately looser than
// RFC 6265 domain matching: a stored "evil.com" also matches "notevil.com".
// An origin without a host matches nothing.
func (s *Store) Get(origin *url.URL) []models.CookieRecord {
	host := strings.ToLower(origin.Hostname())
	if host == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.count("get")
	now := s.now()
	key := OriginKey(origin)
	if bucket, dropped := s.purged(key, now); dropped {
		if err := s.records.Put(key, bucket); err != nil {
			s.log.Warn("Failed to persist purged cookies", slog.String("origin", key), sl.Err(err))
		}
	}

	var matched []models.CookieRecord
	for stored, records := range s.records.All() {
		storedURL, err := url.Parse(stored)
		if err != nil {
			continue
		}
		storedHost := storedURL.Hostname()
		if !strings.HasSuffix(host, storedHost) && !strings.HasSuffix(storedHost, host) {
			continue
		}
		for _, rec := range records {
			if !rec.HasExpired(now) {
				matched = append(matched, rec)
			}
		}
	}

	return matched
}

// All returns every live cookie of every origin.
func (s *Store) All() []models.CookieRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var all []models.CookieRecord
	for _, records := range s.records.All() {
		for _, rec := range records {
			if !rec.HasExpired(now) {
				all = append(all, rec)
			}
		}
	}

	return all
}

// Snapshot returns the live cookies grouped by origin key.
func (s *Store) Snapshot() map[string][]models.CookieRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	snapshot := make(map[string][]models.CookieRecord)
	for origin, records := range s.records.All() {
		for _, rec := range records {
			if !rec.HasExpired(now) {
				snapshot[origin] = append(snapshot[origin], rec)
			}
		}
	}

	return snapshot
}

// Remove drops the record named like rec from the bucket of origin and
// reports whether one was there.
func (s *Store) Remove(origin *url.URL, rec models.CookieRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count("remove")
	key := OriginKey(origin)
	bucket := s.records.Bucket(key)

	kept := bucket[:0]
	for _, existing := range bucket {
		if existing.Name != rec.Name {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(bucket) {
		return false
	}

	if err := s.records.Put(key, kept); err != nil {
		s.log.Warn("Failed to persist cookie removal", sl.Cookie(rec.Name, origin.Hostname()), sl.Err(err))
	}

	return true
}

// Clear drops every cookie. It always reports true; a failed durable write is
// only logged.
func (s *Store) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count("clear")
	if err := s.records.Clear(); err != nil {
		s.log.Warn("Cookies cleared in memory only", sl.Err(err))
	}

	return true
}

// purged returns the bucket of key without its expired records and whether
// any were dropped.
func (s *Store) purged(key string, now time.Time) ([]models.CookieRecord, bool) {
	bucket := s.records.Bucket(key)

	live := bucket[:0]
	for _, rec := range bucket {
		if !rec.HasExpired(now) {
			live = append(live, rec)
		}
	}

	dropped := len(bucket) - len(live)
	if dropped > 0 && s.metrics != nil {
		s.metrics.CookiesPurged.Add(float64(dropped))
	}

	return live, dropped > 0
}

func (s *Store) count(op string) {
	if s.metrics != nil {
		s.metrics.CookieOps.WithLabelValues(op).Inc()
	}
}
