package framedfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"raftkv/internal/raftpb"
)

func TestWriteReadLogRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	bf := Open(f)

	rec := raftpb.LogRecord{Ts: 5, Operations: []raftpb.Operation{{Key: []byte("k"), Value: []byte("v")}}}
	bf.WriteRecord(&rec)
	bf.Sync()
	require.NoError(t, f.Close())

	f2, err := os.Open(path)
	require.NoError(t, err)
	defer f2.Close()
	bf2 := Open(f2)

	var got raftpb.LogRecord
	require.True(t, bf2.ReadRecord(&got))
	require.Equal(t, rec.Ts, got.Ts)
	require.Equal(t, rec.Operations, got.Operations)

	// clean EOF after the single record.
	var next raftpb.LogRecord
	require.False(t, bf2.ReadRecord(&next))
}

func TestWriteReadInt64RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "header")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	bf := Open(f)
	bf.WriteInt64(-17)
	bf.Sync()
	require.NoError(t, f.Close())

	f2, err := os.Open(path)
	require.NoError(t, err)
	defer f2.Close()
	bf2 := Open(f2)

	v, ok := bf2.ReadInt64()
	require.True(t, ok)
	require.Equal(t, int64(-17), v)
}

func TestReadRecordTruncatedReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "torn")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	bf := Open(f)
	rec := raftpb.LogRecord{Ts: 1, Operations: []raftpb.Operation{{Key: []byte("k"), Value: []byte("v")}}}
	bf.WriteRecord(&rec)
	bf.Sync()
	require.NoError(t, f.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-2))

	f2, err := os.Open(path)
	require.NoError(t, err)
	defer f2.Close()
	bf2 := Open(f2)

	var got raftpb.LogRecord
	require.False(t, bf2.ReadRecord(&got))
}

func TestMultipleRecordsAcrossBufferBoundary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "many")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	bf := Open(f)

	// ~26 bytes per framed record: enough records to span several 128 KiB buffers.
	const n = 20000
	for i := 0; i < n; i++ {
		rec := raftpb.LogRecord{Ts: int64(i), Operations: []raftpb.Operation{{Key: []byte("key"), Value: []byte("value")}}}
		bf.WriteRecord(&rec)
	}
	bf.Sync()
	require.NoError(t, f.Close())

	f2, err := os.Open(path)
	require.NoError(t, err)
	defer f2.Close()
	bf2 := Open(f2)

	for i := 0; i < n; i++ {
		var got raftpb.LogRecord
		require.True(t, bf2.ReadRecord(&got))
		require.Equal(t, int64(i), got.Ts)
	}
	var trailing raftpb.LogRecord
	require.False(t, bf2.ReadRecord(&trailing))
}
