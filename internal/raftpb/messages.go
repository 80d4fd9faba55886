package raftpb

// Operation is a single key/value write inside a LogRecord.
type Operation struct {
	Key   []byte
	Value []byte
}

func (o *Operation) Marshal() ([]byte, error) {
	buf := make([]byte, 0, len(o.Key)+len(o.Value)+16)
	buf = putBytes(buf, 1, o.Key)
	buf = putBytes(buf, 2, o.Value)
	return buf, nil
}

func (o *Operation) Unmarshal(data []byte) error {
	it := fieldIter{data: data}
	for {
		field, _, raw, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch field {
		case 1:
			o.Key = append([]byte(nil), raw...)
		case 2:
			o.Value = append([]byte(nil), raw...)
		}
	}
}

// LogRecord is one entry of the replicated log: a timestamp and the batch
// of key/value writes a single client write assigned it.
type LogRecord struct {
	Ts         int64
	Operations []Operation
}

func (r *LogRecord) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = putZigzag(buf, 1, r.Ts)
	for i := range r.Operations {
		buf = putMessage(buf, 2, &r.Operations[i])
	}
	return buf, nil
}

func (r *LogRecord) Unmarshal(data []byte) error {
	*r = LogRecord{}
	it := fieldIter{data: data}
	for {
		field, _, raw, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch field {
		case 1:
			r.Ts = decodeZigzag(varintOf(raw))
		case 2:
			var op Operation
			if err := op.Unmarshal(raw); err != nil {
				return err
			}
			r.Operations = append(r.Operations, op)
		}
	}
}

// Equal reports whether r serializes identically to other; used by the
// AppendEntries handler's "does the buffered record match" check.
func (r *LogRecord) Equal(other *LogRecord) bool {
	a, _ := r.Marshal()
	b, _ := other.Marshal()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Vote is the durable record of "in term T, I voted for node V whose
// durable_ts was at least TS".
type Vote struct {
	Term     uint64
	Ts       int64
	VoteFor  uint64
}

func (v *Vote) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = putVarint(buf, 1, v.Term)
	buf = putZigzag(buf, 2, v.Ts)
	buf = putVarint(buf, 3, v.VoteFor)
	return buf, nil
}

func (v *Vote) Unmarshal(data []byte) error {
	*v = Vote{}
	it := fieldIter{data: data}
	for {
		field, _, raw, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch field {
		case 1:
			v.Term = varintOf(raw)
		case 2:
			v.Ts = decodeZigzag(varintOf(raw))
		case 3:
			v.VoteFor = varintOf(raw)
		}
	}
}

// VoteRequest is the candidate's solicitation for a term's vote.
type VoteRequest struct {
	Term    uint64
	Ts      int64
	VoteFor uint64
}

func (r *VoteRequest) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = putVarint(buf, 1, r.Term)
	buf = putZigzag(buf, 2, r.Ts)
	buf = putVarint(buf, 3, r.VoteFor)
	return buf, nil
}

func (r *VoteRequest) Unmarshal(data []byte) error {
	*r = VoteRequest{}
	it := fieldIter{data: data}
	for {
		field, _, raw, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch field {
		case 1:
			r.Term = varintOf(raw)
		case 2:
			r.Ts = decodeZigzag(varintOf(raw))
		case 3:
			r.VoteFor = varintOf(raw)
		}
	}
}

// Response is the common reply shape for Vote, AppendEntries and Recover.
type Response struct {
	Term      uint64
	DurableTs int64
	NextTs    int64
	Success   bool
}

func (r *Response) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = putVarint(buf, 1, r.Term)
	buf = putZigzag(buf, 2, r.DurableTs)
	buf = putZigzag(buf, 3, r.NextTs)
	if r.Success {
		buf = putVarint(buf, 4, 1)
	}
	return buf, nil
}

func (r *Response) Unmarshal(data []byte) error {
	*r = Response{}
	it := fieldIter{data: data}
	for {
		field, _, raw, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch field {
		case 1:
			r.Term = varintOf(raw)
		case 2:
			r.DurableTs = decodeZigzag(varintOf(raw))
		case 3:
			r.NextTs = decodeZigzag(varintOf(raw))
		case 4:
			r.Success = varintOf(raw) != 0
		}
	}
}

// AppendEntriesRequest carries a leader's replication batch (possibly empty,
// as a keepalive heartbeat).
type AppendEntriesRequest struct {
	Term      uint64
	AppliedTs int64
	Records   []LogRecord
}

func (r *AppendEntriesRequest) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 32+16*len(r.Records))
	buf = putVarint(buf, 1, r.Term)
	buf = putZigzag(buf, 2, r.AppliedTs)
	for i := range r.Records {
		buf = putMessage(buf, 3, &r.Records[i])
	}
	return buf, nil
}

func (r *AppendEntriesRequest) Unmarshal(data []byte) error {
	*r = AppendEntriesRequest{}
	it := fieldIter{data: data}
	for {
		field, _, raw, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch field {
		case 1:
			r.Term = varintOf(raw)
		case 2:
			r.AppliedTs = decodeZigzag(varintOf(raw))
		case 3:
			var rec LogRecord
			if err := rec.Unmarshal(raw); err != nil {
				return err
			}
			r.Records = append(r.Records, rec)
		}
	}
}

// RecoverySnapshotRequest is one chunk of a snapshot stream shipped to a
// stale follower. Chunks sharing (Term, AppliedTs) belong to the same
// reception.
type RecoverySnapshotRequest struct {
	Term       uint64
	AppliedTs  int64
	Size       uint64
	Start      bool
	End        bool
	Operations []Operation
}

func (r *RecoverySnapshotRequest) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 32+24*len(r.Operations))
	buf = putVarint(buf, 1, r.Term)
	buf = putZigzag(buf, 2, r.AppliedTs)
	buf = putVarint(buf, 3, r.Size)
	if r.Start {
		buf = putVarint(buf, 4, 1)
	}
	if r.End {
		buf = putVarint(buf, 5, 1)
	}
	for i := range r.Operations {
		buf = putMessage(buf, 6, &r.Operations[i])
	}
	return buf, nil
}

func (r *RecoverySnapshotRequest) Unmarshal(data []byte) error {
	*r = RecoverySnapshotRequest{}
	it := fieldIter{data: data}
	for {
		field, _, raw, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch field {
		case 1:
			r.Term = varintOf(raw)
		case 2:
			r.AppliedTs = decodeZigzag(varintOf(raw))
		case 3:
			r.Size = varintOf(raw)
		case 4:
			r.Start = varintOf(raw) != 0
		case 5:
			r.End = varintOf(raw) != 0
		case 6:
			var op Operation
			if err := op.Unmarshal(raw); err != nil {
				return err
			}
			r.Operations = append(r.Operations, op)
		}
	}
}

// ClientOp is either a READ or WRITE over a single key inside a client
// request batch.
type ClientOpType int32

const (
	ClientOpRead ClientOpType = iota
	ClientOpWrite
)

type ClientOp struct {
	Type  ClientOpType
	Key   []byte
	Value []byte
}

func (o *ClientOp) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = putVarint(buf, 1, uint64(o.Type))
	buf = putBytes(buf, 2, o.Key)
	buf = putBytes(buf, 3, o.Value)
	return buf, nil
}

func (o *ClientOp) Unmarshal(data []byte) error {
	*o = ClientOp{}
	it := fieldIter{data: data}
	for {
		field, _, raw, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch field {
		case 1:
			o.Type = ClientOpType(varintOf(raw))
		case 2:
			o.Key = append([]byte(nil), raw...)
		case 3:
			o.Value = append([]byte(nil), raw...)
		}
	}
}

// ClientRequest is either all-read or all-write over Ops; mixing the two is
// rejected by the handler.
type ClientRequest struct {
	Ops []ClientOp
}

func (r *ClientRequest) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 64)
	for i := range r.Ops {
		buf = putMessage(buf, 1, &r.Ops[i])
	}
	return buf, nil
}

func (r *ClientRequest) Unmarshal(data []byte) error {
	*r = ClientRequest{}
	it := fieldIter{data: data}
	for {
		field, _, raw, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch field {
		case 1:
			var op ClientOp
			if err := op.Unmarshal(raw); err != nil {
				return err
			}
			r.Ops = append(r.Ops, op)
		}
	}
}

// ClientEntry is one key/value pair returned by a read batch.
type ClientEntry struct {
	Key   []byte
	Value []byte
}

func (e *ClientEntry) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = putBytes(buf, 1, e.Key)
	buf = putBytes(buf, 2, e.Value)
	return buf, nil
}

func (e *ClientEntry) Unmarshal(data []byte) error {
	*e = ClientEntry{}
	it := fieldIter{data: data}
	for {
		field, _, raw, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch field {
		case 1:
			e.Key = append([]byte(nil), raw...)
		case 2:
			e.Value = append([]byte(nil), raw...)
		}
	}
}

type ClientResponse struct {
	Success     bool
	ShouldRetry bool
	RetryTo     uint64
	Entries     []ClientEntry
}

func (r *ClientResponse) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 64)
	if r.Success {
		buf = putVarint(buf, 1, 1)
	}
	if r.ShouldRetry {
		buf = putVarint(buf, 2, 1)
	}
	buf = putVarint(buf, 3, r.RetryTo)
	for i := range r.Entries {
		buf = putMessage(buf, 4, &r.Entries[i])
	}
	return buf, nil
}

func (r *ClientResponse) Unmarshal(data []byte) error {
	*r = ClientResponse{}
	it := fieldIter{data: data}
	for {
		field, _, raw, ok, err := it.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch field {
		case 1:
			r.Success = varintOf(raw) != 0
		case 2:
			r.ShouldRetry = varintOf(raw) != 0
		case 3:
			r.RetryTo = varintOf(raw)
		case 4:
			var e ClientEntry
			if err := e.Unmarshal(raw); err != nil {
				return err
			}
			r.Entries = append(r.Entries, e)
		}
	}
}

// SnapshotHeader is the fixed-size preamble of a snapshot file: {size,
// applied_ts} followed by exactly size single-operation LogRecords.
type SnapshotHeader struct {
	Size      uint64
	AppliedTs int64
}
