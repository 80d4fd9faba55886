package transport

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"raftkv/internal/raft"
	"raftkv/internal/raftpb"
)

// grpcPeerClient implements raft.PeerClient over one dialed connection.
// Dialing is lazy/async (grpc.NewClient does not block), matching the
// teacher's dialRaftPeer.
type grpcPeerClient struct {
	selfID uint64
	conn   *grpc.ClientConn
}

func (c *grpcPeerClient) outgoing(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, peerIDHeader, strconv.FormatUint(c.selfID, 10))
}

func (c *grpcPeerClient) Vote(ctx context.Context, req *raftpb.VoteRequest) (*raftpb.Response, error) {
	resp := new(raftpb.Response)
	if err := c.conn.Invoke(c.outgoing(ctx), fullMethod("Vote"), req, resp, grpc.ForceCodec(rawCodec{})); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *grpcPeerClient) AppendEntries(ctx context.Context, req *raftpb.AppendEntriesRequest) (*raftpb.Response, error) {
	resp := new(raftpb.Response)
	if err := c.conn.Invoke(c.outgoing(ctx), fullMethod("AppendEntries"), req, resp, grpc.ForceCodec(rawCodec{})); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *grpcPeerClient) RecoverySnapshot(ctx context.Context, req *raftpb.RecoverySnapshotRequest) (*raftpb.Response, error) {
	resp := new(raftpb.Response)
	if err := c.conn.Invoke(c.outgoing(ctx), fullMethod("Recover"), req, resp, grpc.ForceCodec(rawCodec{})); err != nil {
		return nil, err
	}
	return resp, nil
}

// PeerTransport dials every configured peer once at startup and never
// mutates the resulting set afterward, matching raft.Transport's contract
// (dynamic membership is a non-goal). Grounded on the teacher's
// initPeerClients/combinedClient.
type PeerTransport struct {
	peers map[uint64]*grpcPeerClient
	ids   []uint64
}

// Dial connects to every address in addrs (membership index -> dial
// address, self excluded), keyed by membership id.
func Dial(selfID uint64, addrs map[uint64]string) (*PeerTransport, error) {
	t := &PeerTransport{peers: make(map[uint64]*grpcPeerClient, len(addrs))}
	for id, addr := range addrs {
		conn, err := dialPeer(addr)
		if err != nil {
			return nil, fmt.Errorf("transport: dial peer %d at %s: %w", id, addr, err)
		}
		t.peers[id] = &grpcPeerClient{selfID: selfID, conn: conn}
		t.ids = append(t.ids, id)
	}
	sort.Slice(t.ids, func(i, j int) bool { return t.ids[i] < t.ids[j] })
	return t, nil
}

func dialPeer(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
}

func (t *PeerTransport) Peer(id uint64) raft.PeerClient {
	c, ok := t.peers[id]
	if !ok {
		return nil
	}
	return c
}

func (t *PeerTransport) Peers() []uint64 { return t.ids }

// Close tears down every dialed connection. Called after Replica.Stop so
// no periodic task is still issuing RPCs through it.
func (t *PeerTransport) Close() error {
	var firstErr error
	for _, c := range t.peers {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Client is a thin RPC stub for external callers of the client RPC surface
// (spec §6, ClientReq): CLIs, integration tests, or a future client
// library. It is not used by the replica itself.
type Client struct {
	conn *grpc.ClientConn
}

func DialClient(addr string) (*Client, error) {
	conn, err := dialPeer(addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Do(ctx context.Context, req *raftpb.ClientRequest) (*raftpb.ClientResponse, error) {
	resp := new(raftpb.ClientResponse)
	if err := c.conn.Invoke(ctx, fullMethod("ClientReq"), req, resp, grpc.ForceCodec(rawCodec{})); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
