package raftpb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogRecordRoundTrip(t *testing.T) {
	rec := LogRecord{
		Ts: 42,
		Operations: []Operation{
			{Key: []byte("k1"), Value: []byte("v1")},
			{Key: []byte("k2"), Value: []byte("v2")},
		},
	}

	data, err := rec.Marshal()
	require.NoError(t, err)

	var got LogRecord
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, rec.Ts, got.Ts)
	require.Len(t, got.Operations, 2)
	require.Equal(t, rec.Operations, got.Operations)
}

func TestLogRecordEqual(t *testing.T) {
	a := LogRecord{Ts: 1, Operations: []Operation{{Key: []byte("k"), Value: []byte("v")}}}
	b := LogRecord{Ts: 1, Operations: []Operation{{Key: []byte("k"), Value: []byte("v")}}}
	c := LogRecord{Ts: 1, Operations: []Operation{{Key: []byte("k"), Value: []byte("other")}}}

	require.True(t, a.Equal(&b))
	require.False(t, a.Equal(&c))
}

func TestVoteRoundTrip(t *testing.T) {
	v := Vote{Term: 7, Ts: -1, VoteFor: 2}
	data, err := v.Marshal()
	require.NoError(t, err)

	var got Vote
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, v, got)
}

func TestResponseRoundTrip(t *testing.T) {
	r := Response{Term: 3, DurableTs: -1, NextTs: 0, Success: true}
	data, err := r.Marshal()
	require.NoError(t, err)

	var got Response
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, r, got)
}

func TestClientRequestRoundTrip(t *testing.T) {
	req := ClientRequest{Ops: []ClientOp{
		{Type: ClientOpWrite, Key: []byte("k"), Value: []byte("v")},
	}}
	data, err := req.Marshal()
	require.NoError(t, err)

	var got ClientRequest
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, req, got)
}
