// Package transport exposes the replica's peer and client RPC surface
// (spec §6's table) as a single gRPC service, and dials peers to implement
// raft.Transport. This is the "transport (framed RPC over TCP ...)"
// component spec.md §1 fixes as an external collaborator's contract, not
// part of the protocol under test.
package transport

import (
	"fmt"
)

// marshaler/unmarshaler mirror the hand-written protobuf-wire-format
// surface every raftpb message type implements (see raftpb/wire.go) so
// this codec can hand the already-framed bytes straight to gRPC without
// pulling in protobuf's reflective Marshal/Unmarshal machinery.
type marshaler interface {
	Marshal() ([]byte, error)
}

type unmarshaler interface {
	Unmarshal([]byte) error
}

// rawCodec is gRPC's wire codec for this service: it defers entirely to
// the message types' own Marshal/Unmarshal, the same non-reflective style
// protoc-gen-gogofaster-generated types use. Both server and client force
// this codec explicitly (grpc.ForceServerCodec / grpc.ForceCodec) rather
// than negotiating a content-subtype, since there is exactly one codec in
// play.
type rawCodec struct{}

func (rawCodec) Name() string { return "raftkv-raw" }

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(marshaler)
	if !ok {
		return nil, fmt.Errorf("transport: %T does not implement Marshal() ([]byte, error)", v)
	}
	return m.Marshal()
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	u, ok := v.(unmarshaler)
	if !ok {
		return fmt.Errorf("transport: %T does not implement Unmarshal([]byte) error", v)
	}
	return u.Unmarshal(data)
}
