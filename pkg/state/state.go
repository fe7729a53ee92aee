// pkg/state/state.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store holds the per-table high-water marks that bound delta extraction.
// The mapping lives in memory and is rewritten to the backing file after
// every advance, so progress survives a crash at the cost of at-least-once
// replay of the last batch not yet reflected in the file.
//
// Watermarks are stored as text but compared on their native values:
// timestamps chronologically, numbers numerically, everything else lexically
// on the rendered form. Timestamps render with a fixed-width layout so the
// persisted text also orders lexically.
//
// All access is serialized behind one mutex: the store is shared by every
// table worker in a run.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
	marks  map[string]string
}

// Open loads the watermark mapping from path. A missing file yields an
// empty store; the file is created on first advance.
func Open(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger.Named("watermark-store"),
		marks:  make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read watermark state %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.marks); err != nil {
		return nil, fmt.Errorf("parse watermark state %s: %w", path, err)
	}

	s.logger.Info("Loaded watermark state",
		zap.String("path", path),
		zap.Int("tables", len(s.marks)))

	return s, nil
}

// Get returns the stored watermark for table, if any.
func (s *Store) Get(table string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.marks[table]
	return v, ok
}

// Advance computes the maximum of the non-nil candidates and, when it
// exceeds the stored watermark, overwrites it and persists the entire
// mapping. The stored value never decreases. A candidate set with no
// non-nil values is a no-op.
func (s *Store) Advance(table string, candidates []interface{}) error {
	max, ok := maxCandidate(candidates)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, exists := s.marks[table]; exists && !storedLess(current, max) {
		return nil
	}

	s.marks[table] = max
	if err := s.persist(); err != nil {
		return fmt.Errorf("persist watermark state: %w", err)
	}

	s.logger.Debug("Advanced watermark",
		zap.String("table", table),
		zap.String("value", max))

	return nil
}

// persist rewrites the backing file atomically. Caller holds the mutex.
func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.marks, "", "    ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// maxCandidate selects the maximum non-nil candidate on its native type and
// renders only the winner to text.
func maxCandidate(candidates []interface{}) (string, bool) {
	var max interface{}
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if max == nil || candidateLess(max, c) {
			max = c
		}
	}
	if max == nil {
		return "", false
	}
	return renderWatermark(max), true
}

// candidateLess orders two candidates natively when both share a comparable
// kind (timestamps, numbers) and falls back to lexical comparison of the
// rendered text.
func candidateLess(a, b interface{}) bool {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Before(bt)
		}
	}
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an < bn
		}
	}
	return renderWatermark(a) < renderWatermark(b)
}

// storedLess compares two rendered watermarks, numerically when both parse
// as numbers. Timestamp renderings are fixed-width, so lexical order is
// already chronological for them.
func storedLess(current, next string) bool {
	if cn, err := strconv.ParseFloat(current, 64); err == nil {
		if nn, err := strconv.ParseFloat(next, 64); err == nil {
			return cn < nn
		}
	}
	return current < next
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// renderWatermark produces the textual form of a watermark value.
// Timestamps use a fixed-width layout so lexical order equals time order.
func renderWatermark(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02 15:04:05.000000")
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
