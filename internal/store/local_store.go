package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/driftkv/driftkv/internal/model"
	"go.uber.org/zap"
)

const (
	opPut    = "put"
	opDelete = "del"

	// compactMinRecords keeps tiny logs from being rewritten constantly.
	compactMinRecords = 1024
)

// logRecord is one line of the append-only commit log.
type logRecord struct {
	Op        string `json:"op"`
	Key       string `json:"key"`
	Value     []byte `json:"value,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// FileStore is a durable LocalStore: an in-memory map backed by an
// append-only JSON-line commit log, replayed on open and compacted when
// dead records dominate. One file per node, named after the node ID.
type FileStore struct {
	mu      sync.RWMutex
	data    map[string]*model.Entry
	file    *os.File
	path    string
	records int
	logger  *zap.Logger
}

// NewFileStore opens (or creates) the store file for nodeID under dataDir
// and replays the commit log.
func NewFileStore(dataDir, nodeID string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	path := filepath.Join(dataDir, sanitizeNodeID(nodeID)+".log")
	s := &FileStore{
		data:   make(map[string]*model.Entry),
		path:   path,
		logger: logger,
	}

	if err := s.replay(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open store file: %w", err)
	}
	s.file = f

	logger.Info("Local store opened",
		zap.String("path", path),
		zap.Int("keys", len(s.data)),
		zap.Int("log_records", s.records))

	return s, nil
}

// sanitizeNodeID makes a node ID safe to use as a file name.
func sanitizeNodeID(nodeID string) string {
	r := strings.NewReplacer(":", "_", "/", "_", "\\", "_")
	return r.Replace(nodeID)
}

// replay rebuilds the in-memory map from the commit log. A truncated
// final line (torn write during a crash) is tolerated and dropped.
func (s *FileStore) replay() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open store file for replay: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec logRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.logger.Warn("Dropping unparsable commit log record", zap.Error(err))
			continue
		}
		s.records++
		switch rec.Op {
		case opPut:
			s.data[rec.Key] = &model.Entry{Value: rec.Value, Timestamp: rec.Timestamp}
		case opDelete:
			delete(s.data, rec.Key)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("failed to replay store file: %w", err)
	}
	return nil
}

// Put stores value under key and returns the assigned timestamp.
func (s *FileStore) Put(ctx context.Context, key string, value []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := time.Now().UnixMilli()
	if err := s.append(logRecord{Op: opPut, Key: key, Value: value, Timestamp: ts}); err != nil {
		return 0, err
	}
	s.data[key] = &model.Entry{Value: value, Timestamp: ts}
	s.maybeCompact()
	return ts, nil
}

// Get returns the entry for key.
func (s *FileStore) Get(ctx context.Context, key string) (*model.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return &model.Entry{Value: entry.Value, Timestamp: entry.Timestamp}, true, nil
}

// Delete removes key outright.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return nil
	}
	if err := s.append(logRecord{Op: opDelete, Key: key}); err != nil {
		return err
	}
	delete(s.data, key)
	s.maybeCompact()
	return nil
}

// AllKeys returns every stored key.
func (s *FileStore) AllKeys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// AllMeta returns key -> timestamp for every stored key.
func (s *FileStore) AllMeta(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta := make(map[string]int64, len(s.data))
	for k, entry := range s.data {
		meta[k] = entry.Timestamp
	}
	return meta, nil
}

// Close syncs and closes the commit log.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		s.file = nil
		return fmt.Errorf("failed to sync store file: %w", err)
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// append writes one record to the commit log. Caller holds the lock.
func (s *FileStore) append(rec logRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}
	line = append(line, '\n')
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("failed to append to store file: %w", err)
	}
	s.records++
	return nil
}

// maybeCompact rewrites the log as a snapshot of live entries once dead
// records outnumber live ones 3:1. Caller holds the lock.
func (s *FileStore) maybeCompact() {
	if s.records < compactMinRecords || s.records < 4*len(s.data) {
		return
	}
	if err := s.compact(); err != nil {
		s.logger.Error("Commit log compaction failed", zap.Error(err))
	}
}

// compact writes live entries to a temp file and atomically replaces the
// log. Caller holds the lock.
func (s *FileStore) compact() error {
	tmpPath := s.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create compaction file: %w", err)
	}

	w := bufio.NewWriter(tmp)
	written := 0
	for key, entry := range s.data {
		line, err := json.Marshal(logRecord{Op: opPut, Key: key, Value: entry.Value, Timestamp: entry.Timestamp})
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to marshal entry during compaction: %w", err)
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to write compaction file: %w", err)
		}
		written++
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush compaction file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync compaction file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close old store file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to swap compacted store file: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to reopen store file: %w", err)
	}
	s.file = f

	old := s.records
	s.records = written
	s.logger.Info("Commit log compacted",
		zap.Int("old_records", old),
		zap.Int("live_records", written))
	return nil
}
