// Package raftpb defines the wire and on-disk message shapes used by the
// replica: log records, votes, snapshots, and the four peer/client RPCs.
//
// Messages are hand-written structs with Marshal()/Unmarshal() methods that
// speak real protobuf wire format (varint tags, zigzag signed ints,
// length-delimited bytes/strings). The tag/varint/zigzag primitives
// themselves come from google.golang.org/protobuf/encoding/protowire, the
// same low-level package protoc-gen-go's generated Marshal methods bottom
// out on; this package only omits the reflective protoimpl.MessageState
// machinery those generated types carry (there is no protoc invocation
// available here to produce a .pb.go alongside a .proto file), matching the
// plain-struct-plus-methods shape go.etcd.io/raft/v3/raftpb ships its Entry
// and HardState types in.
package raftpb

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrTruncated is returned by Unmarshal when the input ends mid-field.
var ErrTruncated = errors.New("raftpb: truncated message")

func putTag(buf []byte, field int, wireType protowire.Type) []byte {
	return protowire.AppendTag(buf, protowire.Number(field), wireType)
}

func putVarint(buf []byte, field int, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = putTag(buf, field, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func putZigzag(buf []byte, field int, v int64) []byte {
	if v == 0 {
		return buf
	}
	buf = putTag(buf, field, protowire.VarintType)
	return protowire.AppendVarint(buf, protowire.EncodeZigZag(v))
}

func decodeZigzag(v uint64) int64 {
	return protowire.DecodeZigZag(v)
}

func putBytes(buf []byte, field int, v []byte) []byte {
	if len(v) == 0 {
		return buf
	}
	buf = putTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, v)
}

func putString(buf []byte, field int, v string) []byte {
	return putBytes(buf, field, []byte(v))
}

func putMessage(buf []byte, field int, m interface{ Marshal() ([]byte, error) }) []byte {
	data, err := m.Marshal()
	if err != nil || len(data) == 0 {
		return buf
	}
	return putBytes(buf, field, data)
}

// fieldIter walks a buffer yielding (field, wireType, payload, ok, err) one
// field at a time, using protowire's Consume* primitives to parse tags and
// values.
type fieldIter struct {
	data []byte
	pos  int
}

func (it *fieldIter) next() (field int, wireType int, raw []byte, ok bool, err error) {
	if it.pos >= len(it.data) {
		return 0, 0, nil, false, nil
	}
	num, typ, n := protowire.ConsumeTag(it.data[it.pos:])
	if n < 0 {
		return 0, 0, nil, false, ErrTruncated
	}
	it.pos += n
	field = int(num)
	wireType = int(typ)

	switch typ {
	case protowire.VarintType:
		_, n := protowire.ConsumeVarint(it.data[it.pos:])
		if n < 0 {
			return 0, 0, nil, false, ErrTruncated
		}
		raw = it.data[it.pos : it.pos+n]
		it.pos += n
	case protowire.BytesType:
		v, n := protowire.ConsumeBytes(it.data[it.pos:])
		if n < 0 {
			return 0, 0, nil, false, ErrTruncated
		}
		raw = v
		it.pos += n
	default:
		return 0, 0, nil, false, fmt.Errorf("raftpb: unsupported wire type %d", typ)
	}
	return field, wireType, raw, true, nil
}

func varintOf(raw []byte) uint64 {
	v, _ := protowire.ConsumeVarint(raw)
	return v
}
