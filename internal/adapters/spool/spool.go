// Package spool keeps payloads in a local pebble database so they can be
// replayed after the backend comes back.
package spool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

var prefix = []byte("payload/")

// Entry is one spooled payload.
type Entry struct {
	Key     []byte
	Payload *domain.Payload
}

// Spool implements ports.Sink on top of pebble.
type Spool struct {
	db  *pebble.DB
	now func() time.Time
}

// Open opens (or creates) the spool at dir.
func Open(dir string) (*Spool, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}
	return &Spool{db: db, now: time.Now}, nil
}

func (s *Spool) Name() string { return "spool" }

// Send stores the payload under payload/<unix-nanos>/<id>. Keys sort in
// arrival order.
func (s *Spool) Send(_ context.Context, p *domain.Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	key := fmt.Appendf(nil, "payload/%020d/%s", s.now().UnixNano(), p.ID)
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("spool payload %s: %w", p.ID, err)
	}
	return nil
}

// List returns up to limit spooled payloads, oldest first. A limit <= 0
// returns everything.
func (s *Spool) List(limit int) ([]Entry, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Entry
	for ok := it.First(); ok; ok = it.Next() {
		var p domain.Payload
		if err := json.Unmarshal(it.Value(), &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		k := make([]byte, len(it.Key()))
		copy(k, it.Key())
		out = append(out, Entry{Key: k, Payload: &p})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, it.Error()
}

// Delete removes a replayed entry.
func (s *Spool) Delete(key []byte) error {
	if !bytes.HasPrefix(key, prefix) {
		return fmt.Errorf("not a spool key: %q", key)
	}
	return s.db.Delete(key, pebble.Sync)
}

// Replay hands every spooled payload to sink and deletes it on success. It
// stops at the first failure so ordering is kept.
func (s *Spool) Replay(ctx context.Context, sink ports.Sink) (int, error) {
	entries, err := s.List(0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := sink.Send(ctx, e.Payload); err != nil {
			return n, fmt.Errorf("replay %s: %w", e.Key, err)
		}
		if err := s.Delete(e.Key); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Spool) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func prefixEnd(p []byte) []byte {
	end := append([]byte{}, p...)
	end[len(end)-1]++
	return end
}

var _ ports.Sink = (*Spool)(nil)
