package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"raftkv/internal/raftpb"
)

func TestRawCodecRoundTrip(t *testing.T) {
	var c rawCodec

	req := &raftpb.VoteRequest{Term: 7, Ts: 41, VoteFor: 2}
	data, err := c.Marshal(req)
	require.NoError(t, err)

	out := new(raftpb.VoteRequest)
	require.NoError(t, c.Unmarshal(data, out))
	require.Equal(t, req, out)
}

func TestRawCodecRejectsForeignType(t *testing.T) {
	var c rawCodec
	_, err := c.Marshal("not a raftpb message")
	require.Error(t, err)

	err = c.Unmarshal([]byte{1, 2, 3}, new(int))
	require.Error(t, err)
}
