// Package cache implements the Response Cache (C1): a persistent
// key/value store with per-entry TTL, content-addressed by the
// SHA-256 hash of the normalized request fingerprint.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/itsneelabh/pulse/core"
	_ "modernc.org/sqlite"
)

// DefaultTTL is the fixed cache default (spec.md §9 open question (a)).
const DefaultTTL = 3600 * time.Second

// Stats mirrors spec.md §4.1's stats() contract.
type Stats struct {
	Entries   int64
	TotalSize int64
}

// Cache is the singleton-per-DB-path Response Cache. A single writer
// at a time; readers never block writers beyond sqlite's own
// row-level discipline (spec.md §4.1 Concurrency).
type Cache struct {
	mu     sync.Mutex
	db     *sql.DB
	mem    map[string]memEntry
	memory bool
	logger core.Logger
}

type memEntry struct {
	payload  []byte
	storedAt int64
	ttl      int64
}

// Open opens (or creates) the sqlite-backed cache at path. On failure
// to open the file it falls back to a purely in-memory map and logs
// one warning (spec.md §4.1 Failure semantics) — Open itself never
// returns an error for this reason; only truly unrecoverable
// programmer errors (e.g. a nil logger is fine) are avoided.
func Open(path string, logger core.Logger) *Cache {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	c := &Cache{logger: logger}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		c.fallBackToMemory(err)
		return c
	}
	if err := db.Ping(); err != nil {
		c.fallBackToMemory(err)
		return c
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		hash TEXT PRIMARY KEY,
		payload BLOB,
		stored_at INTEGER,
		ttl INTEGER
	)`); err != nil {
		c.fallBackToMemory(err)
		return c
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_entries_stored_at ON entries(stored_at)`); err != nil {
		c.fallBackToMemory(err)
		return c
	}

	c.db = db
	c.ClearExpired(context.Background())
	return c
}

func (c *Cache) fallBackToMemory(err error) {
	c.memory = true
	c.mem = make(map[string]memEntry)
	c.logger.Warn("cache: falling back to in-memory store", map[string]interface{}{
		"error": err.Error(),
	})
}

// HashKey canonicalizes key (string passthrough; otherwise a
// sorted-key JSON encoding) then SHA-256 hashes it, matching
// spec.md §4.1 Hashing and the Python CacheManager._generate_hash.
func HashKey(key interface{}) string {
	var data string
	if s, ok := key.(string); ok {
		data = s
	} else {
		data = canonicalJSON(key)
	}
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func canonicalJSON(v interface{}) string {
	switch m := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ","
			}
			kb, _ := json.Marshal(k)
			out += string(kb) + ":" + canonicalJSON(m[k])
		}
		return out + "}"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Get implements spec.md §4.1's get(key): hashes key, looks it up,
// deletes and returns (nil, false) if expired, otherwise returns the
// stored payload. Invariant 1 (§8): visible iff now-stored_at<=ttl.
func (c *Cache) Get(ctx context.Context, key interface{}) ([]byte, bool) {
	hash := HashKey(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().Unix()

	if c.memory {
		entry, found := c.mem[hash]
		if !found {
			return nil, false
		}
		if now-entry.storedAt > entry.ttl {
			delete(c.mem, hash)
			return nil, false
		}
		return entry.payload, true
	}

	var payload []byte
	var storedAt, ttl int64
	row := c.db.QueryRowContext(ctx, `SELECT payload, stored_at, ttl FROM entries WHERE hash = ?`, hash)
	if err := row.Scan(&payload, &storedAt, &ttl); err != nil {
		return nil, false
	}
	if now-storedAt > ttl {
		_, _ = c.db.ExecContext(ctx, `DELETE FROM entries WHERE hash = ?`, hash)
		return nil, false
	}
	return payload, true
}

// Set implements spec.md §4.1's set(key, value, ttl): upserts; errors
// are logged and swallowed — the cache is advisory, never fatal. A zero
// ttl stores the entry with DefaultTTL.
func (c *Cache) Set(ctx context.Context, key interface{}, payload []byte, ttl time.Duration) {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	hash := HashKey(key)
	now := time.Now().Unix()
	ttlSeconds := int64(ttl.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.memory {
		c.mem[hash] = memEntry{payload: payload, storedAt: now, ttl: ttlSeconds}
		return
	}

	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (hash, payload, stored_at, ttl) VALUES (?, ?, ?, ?)`,
		hash, payload, now, ttlSeconds,
	); err != nil {
		c.logger.Error("cache: set failed", map[string]interface{}{"error": err.Error()})
	}
}

// Invalidate implements spec.md §4.1's invalidate(key): deletes one entry.
func (c *Cache) Invalidate(ctx context.Context, key interface{}) {
	hash := HashKey(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.memory {
		delete(c.mem, hash)
		return
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE hash = ?`, hash); err != nil {
		c.logger.Error("cache: invalidate failed", map[string]interface{}{"error": err.Error()})
	}
}

// Clear implements spec.md §4.1's clear(prefix?): deletes all entries
// whose hash-hex starts with prefix (hashed+truncated to 16 hex chars
// if raw text is passed), or all entries if prefix is empty.
func (c *Cache) Clear(ctx context.Context, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hexPrefix := prefix
	if prefix != "" && !isHexPrefix(prefix) {
		hexPrefix = HashKey(prefix)[:16]
	}

	if c.memory {
		if hexPrefix == "" {
			c.mem = make(map[string]memEntry)
			return
		}
		for h := range c.mem {
			if hasPrefix(h, hexPrefix) {
				delete(c.mem, h)
			}
		}
		return
	}

	if hexPrefix == "" {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM entries`); err != nil {
			c.logger.Error("cache: clear failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE hash LIKE ?`, hexPrefix+"%"); err != nil {
		c.logger.Error("cache: clear failed", map[string]interface{}{"error": err.Error()})
	}
}

func isHexPrefix(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return len(s) <= 16
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// ClearExpired implements spec.md §4.1's clear_expired(): bulk delete
// of rows where stored_at+ttl < now; called opportunistically on open.
func (c *Cache) ClearExpired(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().Unix()

	if c.memory {
		for h, e := range c.mem {
			if e.storedAt+e.ttl < now {
				delete(c.mem, h)
			}
		}
		return
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE stored_at + ttl < ?`, now); err != nil {
		c.logger.Error("cache: clear_expired failed", map[string]interface{}{"error": err.Error()})
	}
}

// Stats implements spec.md §4.1's stats(): totals and byte size.
func (c *Cache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.memory {
		var size int64
		for _, e := range c.mem {
			size += int64(len(e.payload))
		}
		return Stats{Entries: int64(len(c.mem)), TotalSize: size}
	}

	var entries, size sql.NullInt64
	row := c.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(LENGTH(payload)), 0) FROM entries`)
	if err := row.Scan(&entries, &size); err != nil {
		return Stats{}
	}
	return Stats{Entries: entries.Int64, TotalSize: size.Int64}
}

// Close releases the underlying database handle, if any.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// IsMemoryFallback reports whether the cache fell back to an
// in-memory store because the DB could not be opened.
func (c *Cache) IsMemoryFallback() bool {
	return c.memory
}
