// Package logstore persists a replica's changelog and discovers its
// snapshot files. The changelog is backed by a single github.com/tidwall/wal
// write-ahead log (one indexed, fsync-on-demand segment store per replica),
// the same library the teacher's internal/raft/storage.go uses to persist
// etcd/raft's entry log; snapshot files stay plain, independently-framed
// files under the same directory, mirroring storage.go's split between its
// WAL-backed entry log and its flat snapshot/<index> blob files.
package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/wal"

	"raftkv/internal/raftlog/framedfile"
	"raftkv/internal/raftpb"
)

const (
	snapshotPrefix = "snapshot."
	changelogDir   = "changelog"
)

// Store persists one replica's changelog (via wal.Log) and resolves its
// snapshot/vote file paths under a single directory.
type Store struct {
	dir string
	log *wal.Log
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logstore: mkdir %s: %w", dir, err)
	}
	opts := *wal.DefaultOptions
	log, err := wal.Open(filepath.Join(dir, changelogDir), &opts)
	if err != nil {
		return nil, fmt.Errorf("logstore: wal.Open: %w", err)
	}
	return &Store{dir: dir, log: log}, nil
}

// tsToIndex/indexToTs map a LogRecord's ts (which starts at 0 and increases
// by exactly 1 per record within a replica's buffered log) onto wal's
// 1-based sequential index space.
func tsToIndex(ts int64) uint64 { return uint64(ts + 1) }
func indexToTs(idx uint64) int64 { return int64(idx) - 1 }

// AppendRecord writes rec at the WAL index its ts maps to. Callers must
// supply ts values in strictly increasing, gap-free order, as the flusher
// does.
func (s *Store) AppendRecord(rec *raftpb.LogRecord) error {
	data, err := rec.Marshal()
	if err != nil {
		return err
	}
	return s.log.Write(tsToIndex(rec.Ts), data)
}

// Sync fsyncs the changelog.
func (s *Store) Sync() error {
	return s.log.Sync()
}

// Bounds reports the ts range currently held in the changelog. ok is false
// for an empty (or not-yet-written) log.
func (s *Store) Bounds() (first, last int64, ok bool, err error) {
	empty, err := s.log.IsEmpty()
	if err != nil {
		return 0, 0, false, fmt.Errorf("logstore: wal.IsEmpty: %w", err)
	}
	if empty {
		return 0, 0, false, nil
	}
	fi, err := s.log.FirstIndex()
	if err != nil {
		return 0, 0, false, fmt.Errorf("logstore: wal.FirstIndex: %w", err)
	}
	li, err := s.log.LastIndex()
	if err != nil {
		return 0, 0, false, fmt.Errorf("logstore: wal.LastIndex: %w", err)
	}
	return indexToTs(fi), indexToTs(li), true, nil
}

// RecordsFrom returns every changelog record with ts >= resumeFrom, in ts
// order. A changelog with nothing at or after resumeFrom (including an
// entirely empty one) returns a nil slice.
func (s *Store) RecordsFrom(resumeFrom int64) ([]raftpb.LogRecord, error) {
	first, last, ok, err := s.Bounds()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	start := resumeFrom
	if start < first {
		start = first
	}
	var recs []raftpb.LogRecord
	for ts := start; ts <= last; ts++ {
		data, err := s.log.Read(tsToIndex(ts))
		if err != nil {
			return nil, fmt.Errorf("logstore: wal.Read(ts=%d): %w", ts, err)
		}
		var rec raftpb.LogRecord
		if err := rec.Unmarshal(data); err != nil {
			return nil, fmt.Errorf("logstore: unmarshal ts=%d: %w", ts, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// TruncateFront drops every changelog record with ts <= through, the records
// a just-written snapshot has already made redundant. A no-op on an empty
// log or when through doesn't yet cover the first retained record; through
// is clamped to the last retained record so it never asks wal to drop
// everything.
func (s *Store) TruncateFront(through int64) error {
	first, last, ok, err := s.Bounds()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	keepFrom := through + 1
	if keepFrom <= first {
		return nil
	}
	if keepFrom > last {
		keepFrom = last
	}
	if err := s.log.TruncateFront(tsToIndex(keepFrom)); err != nil {
		return fmt.Errorf("logstore: wal.TruncateFront(ts=%d): %w", keepFrom, err)
	}
	return nil
}

// Close closes the changelog WAL.
func (s *Store) Close() error {
	return s.log.Close()
}

func (s *Store) snapshotPath(n int64) string {
	return filepath.Join(s.dir, snapshotPrefix+strconv.FormatInt(n, 10))
}

func (s *Store) VotePath() string {
	return filepath.Join(s.dir, "vote")
}

func parseName(prefix, name string) (int64, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(name, prefix), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// DiscoverSnapshots lists snapshot applied_ts numbers in ascending order.
func (s *Store) DiscoverSnapshots() ([]int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var nums []int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := parseName(snapshotPrefix, e.Name()); ok {
			nums = append(nums, n)
		}
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums, nil
}

// CreateSnapshot creates (or truncates) the snapshot file for appliedTs.
func (s *Store) CreateSnapshot(appliedTs int64) (*framedfile.File, error) {
	f, err := os.OpenFile(s.snapshotPath(appliedTs), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return framedfile.Open(f), nil
}

// OpenSnapshotForRead opens an existing snapshot read-only.
func (s *Store) OpenSnapshotForRead(appliedTs int64) (*framedfile.File, error) {
	f, err := os.Open(s.snapshotPath(appliedTs))
	if err != nil {
		return nil, err
	}
	return framedfile.Open(f), nil
}
