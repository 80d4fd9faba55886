// Package framedfile implements a record-oriented wrapper over a file
// descriptor with a fixed in-memory buffer, used by the snapshot file format
// (one LogRecord per key, written and replayed in sequence) and by the
// streaming recovery-snapshot reception path; the changelog itself is
// backed by logstore's tidwall/wal log, not this package. The length-prefix
// framing (an 8-byte size header followed by payload bytes) generalizes the
// same idea the teacher's internal/raft/storage.go hand-rolls for its own
// WAL payload records (marshalRecord/unmarshalRecord: a header followed by
// a payload) to a buffered multi-record stream. All I/O errors are fatal:
// storage is assumed locally reliable, and partial-failure semantics live
// in the protocol layer above, not here.
package framedfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const bufSize = 128 << 10

// Record is anything that can serialize itself to bytes, the minimal
// surface a LogRecord/Vote/etc needs to be framed.
type Record interface {
	Marshal() ([]byte, error)
}

// Unmarshaler is the read-side counterpart of Record.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// File is a buffered, length-prefixed record stream over an *os.File.
type File struct {
	f    *os.File
	buf  [bufSize]byte
	data int // bytes held in buf, valid [0:data)
	cons int // bytes of buf already consumed by reads, valid [0:cons)
}

// Open wraps an already-opened file descriptor.
func Open(f *os.File) *File {
	return &File{f: f}
}

func (bf *File) Close() error {
	if bf.f == nil {
		return nil
	}
	return bf.f.Close()
}

// reserve makes room for sz bytes in the write buffer, flushing first if
// the buffer is too full, and returns the offset to write at.
func (bf *File) reserve(sz int) int {
	if bf.data+sz > bufSize {
		bf.Flush()
	}
	off := bf.data
	bf.data += sz
	return off
}

// Flush writes the buffered bytes to the file descriptor.
func (bf *File) Flush() {
	if bf.data == 0 {
		return
	}
	if _, err := bf.f.Write(bf.buf[:bf.data]); err != nil {
		fatal(err)
	}
	bf.data = 0
	bf.cons = 0
}

// Sync flushes then fsyncs the descriptor.
func (bf *File) Sync() {
	bf.Flush()
	if err := bf.f.Sync(); err != nil {
		fatal(err)
	}
}

// WriteInt64 appends a fixed-width int64.
func (bf *File) WriteInt64(v int64) {
	off := bf.reserve(8)
	binary.LittleEndian.PutUint64(bf.buf[off:], uint64(v))
}

// fetch ensures sz unconsumed bytes are available starting at the returned
// offset, compacting the buffer and refilling from the descriptor as
// needed. Returns ok=false on clean EOF or truncation (not enough bytes
// ever arrive).
func (bf *File) fetch(sz int) (off int, ok bool) {
	if bf.cons+sz > bf.data {
		// compact: move unconsumed bytes to the front, then refill.
		copy(bf.buf[:], bf.buf[bf.cons:bf.data])
		bf.data -= bf.cons
		bf.cons = 0

		for bf.cons+sz > bf.data && bf.data < bufSize {
			n, err := bf.f.Read(bf.buf[bf.data:])
			if n > 0 {
				bf.data += n
			}
			if err == io.EOF || n == 0 {
				break
			}
			if err != nil {
				fatal(err)
			}
		}
	}
	if bf.cons+sz > bf.data {
		return 0, false
	}
	off = bf.cons
	bf.cons += sz
	return off, true
}

// ReadInt64 reads a fixed-width int64, returning ok=false on clean EOF.
func (bf *File) ReadInt64() (int64, bool) {
	off, ok := bf.fetch(8)
	if !ok {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(bf.buf[off:])), true
}

// WriteRecord appends a length-prefixed (uint64) serialized record.
func (bf *File) WriteRecord(rec Record) {
	payload, err := rec.Marshal()
	if err != nil {
		fatal(err)
	}
	off := bf.reserve(8)
	binary.LittleEndian.PutUint64(bf.buf[off:], uint64(len(payload)))

	written := 0
	for written < len(payload) {
		chunk := len(payload) - written
		if chunk > bufSize {
			chunk = bufSize
		}
		dst := bf.reserve(chunk)
		copy(bf.buf[dst:dst+chunk], payload[written:written+chunk])
		written += chunk
	}
}

// ReadRecord reads one length-prefixed record into out, returning ok=false
// on clean EOF or truncation (a torn write at the tail of the file).
func (bf *File) ReadRecord(out Unmarshaler) (ok bool) {
	lenOff, ok := bf.fetch(8)
	if !ok {
		return false
	}
	sz := int(binary.LittleEndian.Uint64(bf.buf[lenOff:]))

	payload := make([]byte, 0, sz)
	remaining := sz
	for remaining > 0 {
		chunk := remaining
		if chunk > bufSize {
			chunk = bufSize
		}
		off, ok := bf.fetch(chunk)
		if !ok {
			return false
		}
		payload = append(payload, bf.buf[off:off+chunk]...)
		remaining -= chunk
	}

	if err := out.Unmarshal(payload); err != nil {
		return false
	}
	return true
}

// fatalHook lets tests observe a fatal I/O error instead of exiting the
// process; production leaves it nil and aborts, per the spec's "storage is
// assumed locally reliable" rationale.
var fatalHook func(error)

func fatal(err error) {
	if fatalHook != nil {
		fatalHook(err)
		return
	}
	fmt.Fprintf(os.Stderr, "framedfile: fatal I/O error: %v\n", err)
	os.Exit(1)
}
