package raft

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"sync"
	"time"
)

// Transport carries the consensus RPCs and forwarded proposals
// between nodes. The HTTP implementation lives in transport.go; tests
// substitute an in-memory one.
type Transport interface {
	RequestVote(ctx context.Context, peer Peer, req *VoteRequest) (*VoteResponse, error)
	AppendEntries(ctx context.Context, peer Peer, req *AppendRequest) (*AppendResponse, error)
	InstallSnapshot(ctx context.Context, peer Peer, req *SnapshotRequest) (*SnapshotResponse, error)
	Propose(ctx context.Context, peer Peer, req *ProposeRequest) (*ProposeResponse, error)
}

// Node is one member of the consensus cluster. All fields below mu
// are guarded by it; the apply loop is the single goroutine that calls
// fsm.Apply, in strict index order.
type Node struct {
	cfg     Config
	fsm     FSM
	tr      Transport
	store   *Store
	archive *Archive

	// Events fires on leadership changes, peer reachability changes
	// and snapshots. Observers never block the node.
	Events *Events

	mu        sync.Mutex
	applyCond *sync.Cond

	role        Role
	term        uint64
	votedFor    string
	leaderID    string
	raftLog     *raftLog
	commitIndex uint64
	lastApplied uint64

	votes     map[string]bool
	nextIndex map[string]uint64
	match     map[string]uint64
	peerDown  map[string]bool
	peerFails map[string]int
	peers     []Peer // cluster members excluding self

	electionDeadline time.Time
	heartbeatDue     time.Time
	sinceSnapshot    uint64

	rng     *rand.Rand
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds a node from its persistent store and snapshot archive,
// restoring the newest snapshot and reloading the surviving log
// entries. The node does not participate until Start.
func New(cfg Config, fsm FSM, tr Transport, store *Store, archive *Archive) (*Node, error) {
	n := &Node{
		cfg:       cfg.withDefaults(),
		fsm:       fsm,
		tr:        tr,
		store:     store,
		archive:   archive,
		Events:    newEvents(),
		role:      Follower,
		raftLog:   newLog(),
		votes:     make(map[string]bool),
		nextIndex: make(map[string]uint64),
		match:     make(map[string]uint64),
		peerDown:  make(map[string]bool),
		peerFails: make(map[string]int),
		stopCh:    make(chan struct{}),
	}
	n.applyCond = sync.NewCond(&n.mu)

	for _, p := range n.cfg.Peers {
		if p.ID != n.cfg.ID {
			n.peers = append(n.peers, p)
		}
	}

	seed := fnv.New64a()
	seed.Write([]byte(cfg.ID))
	n.rng = rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(seed.Sum64())))

	term, votedFor, err := store.State()
	if err != nil {
		return nil, err
	}
	n.term = term
	n.votedFor = votedFor

	if archive != nil {
		rec, ok, err := archive.Latest()
		if err != nil {
			return nil, err
		}
		if ok {
			if err := fsm.Restore(rec.Index, rec.Data); err != nil {
				return nil, fmt.Errorf("raft: restore snapshot %d: %w", rec.Index, err)
			}
			n.raftLog.reset(rec.Index, rec.Term)
			n.commitIndex = rec.Index
			n.lastApplied = rec.Index
		}
	}
	if snapIndex, snapTerm, err := store.SnapshotBoundary(); err == nil && snapIndex > n.raftLog.offset {
		n.raftLog.reset(snapIndex, snapTerm)
		if snapIndex > n.lastApplied {
			// Snapshot boundary moved past the archived state; the
			// store was compacted after the archive write failed.
			// Recoverable only by a peer snapshot, so start there.
			n.commitIndex = snapIndex
			n.lastApplied = snapIndex
		}
	}

	entries, err := store.Entries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Index > n.raftLog.offset {
			n.raftLog.append(e)
		}
	}

	n.resetElectionDeadline()
	return n, nil
}

// Start launches the tick and apply loops.
func (n *Node) Start() {
	n.wg.Add(2)
	go n.tickLoop()
	go n.applyLoop()
	log.Printf("[raft %s] started: term=%d lastIndex=%d applied=%d peers=%d",
		n.cfg.ID, n.term, n.raftLog.lastIndex(), n.lastApplied, len(n.peers))
}

// Stop shuts the node down. In-flight RPCs finish or time out on
// their own.
func (n *Node) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	close(n.stopCh)
	n.applyCond.Broadcast()
	n.mu.Unlock()
	n.wg.Wait()
	log.Printf("[raft %s] stopped", n.cfg.ID)
}

func (n *Node) tickLoop() {
	defer n.wg.Done()
	tick := n.cfg.HeartbeatInterval / 2
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
		}

		n.mu.Lock()
		now := time.Now()
		switch n.role {
		case Leader:
			if now.After(n.heartbeatDue) {
				n.heartbeatDue = now.Add(n.cfg.HeartbeatInterval)
				n.mu.Unlock()
				n.broadcastAppend()
				continue
			}
		default:
			if now.After(n.electionDeadline) {
				n.startElectionLocked()
			}
		}
		n.mu.Unlock()
	}
}

// applyLoop feeds committed entries to the FSM one at a time, in
// index order. It is the only caller of fsm.Apply.
func (n *Node) applyLoop() {
	defer n.wg.Done()
	n.mu.Lock()
	for {
		for !n.stopped && n.lastApplied >= n.commitIndex {
			n.applyCond.Wait()
		}
		if n.stopped {
			n.mu.Unlock()
			return
		}
		idx := n.lastApplied + 1
		e, ok := n.raftLog.entry(idx)
		if !ok {
			// Compacted past us by a snapshot install; the install
			// already moved lastApplied.
			continue
		}
		n.mu.Unlock()
		if len(e.Data) > 0 {
			n.fsm.Apply(e.Index, e.Data)
		}
		n.mu.Lock()
		if n.lastApplied < idx {
			n.lastApplied = idx
			n.sinceSnapshot++
			metricAppliedIndex.WithLabelValues(n.cfg.ID).Set(float64(idx))
		}
		n.applyCond.Broadcast()
		if n.cfg.SnapshotInterval > 0 && n.sinceSnapshot >= n.cfg.SnapshotInterval {
			n.takeSnapshotLocked()
		}
	}
}

// Propose submits a state-changing operation to the replicated log.
// On the leader it appends locally; on a follower it forwards to the
// last known leader. A nil return means the entry is in the leader's
// log, not that it has committed: callers observe the commit through
// their own apply stream. ErrNoLeader and NotLeaderError are retryable.
func (n *Node) Propose(ctx context.Context, data []byte) error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return ErrShutdown
	}
	if n.role == Leader {
		n.appendLocalLocked(data, n.cfg.ID)
		n.heartbeatDue = time.Now()
		n.mu.Unlock()
		n.broadcastAppend()
		metricProposals.WithLabelValues(n.cfg.ID, "local").Inc()
		return nil
	}
	leaderID := n.leaderID
	n.mu.Unlock()

	peer, ok := n.peerByID(leaderID)
	if leaderID == "" || !ok {
		metricProposals.WithLabelValues(n.cfg.ID, "no_leader").Inc()
		return ErrNoLeader
	}
	resp, err := n.tr.Propose(ctx, peer, &ProposeRequest{Origin: n.cfg.ID, Data: data})
	if err != nil {
		metricProposals.WithLabelValues(n.cfg.ID, "forward_error").Inc()
		return fmt.Errorf("raft: forward to %s: %w", leaderID, err)
	}
	if !resp.Accepted {
		metricProposals.WithLabelValues(n.cfg.ID, "redirected").Inc()
		return &NotLeaderError{LeaderID: resp.LeaderID, LeaderURL: resp.LeaderURL}
	}
	metricProposals.WithLabelValues(n.cfg.ID, "forwarded").Inc()
	return nil
}

// HandlePropose accepts a proposal forwarded from a peer. Only the
// leader assigns indices; anyone else redirects.
func (n *Node) HandlePropose(req *ProposeRequest) *ProposeResponse {
	n.mu.Lock()
	if n.role != Leader {
		resp := &ProposeResponse{LeaderID: n.leaderID}
		if p, ok := n.peerByIDLocked(n.leaderID); ok {
			resp.LeaderURL = p.URL
		}
		n.mu.Unlock()
		return resp
	}
	e := n.appendLocalLocked(req.Data, req.Origin)
	n.heartbeatDue = time.Now()
	n.mu.Unlock()
	n.broadcastAppend()
	return &ProposeResponse{Accepted: true, Index: e.Index}
}

// appendLocalLocked assigns the next index and persists the entry.
// Single-node clusters commit immediately.
func (n *Node) appendLocalLocked(data []byte, origin string) Entry {
	e := Entry{
		Index:  n.raftLog.lastIndex() + 1,
		Term:   n.term,
		Origin: origin,
		Data:   data,
	}
	n.raftLog.append(e)
	if err := n.store.AppendEntries([]Entry{e}); err != nil {
		log.Printf("[raft %s] persist entry %d: %v", n.cfg.ID, e.Index, err)
	}
	n.advanceCommitLocked()
	return e
}

func (n *Node) peerByID(id string) (Peer, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peerByIDLocked(id)
}

func (n *Node) peerByIDLocked(id string) (Peer, bool) {
	for _, p := range n.peers {
		if p.ID == id {
			return p, true
		}
	}
	return Peer{}, false
}

func (n *Node) resetElectionDeadline() {
	base := n.cfg.ElectionTimeout
	jitter := time.Duration(n.rng.Int63n(int64(base)))
	n.electionDeadline = time.Now().Add(base + jitter)
}

// Status returns a consistent view of the node.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Status{
		ID:          n.cfg.ID,
		Role:        n.role,
		Term:        n.term,
		LeaderID:    n.leaderID,
		CommitIndex: n.commitIndex,
		LastApplied: n.lastApplied,
		LastIndex:   n.raftLog.lastIndex(),
	}
}

// Leader returns the leader this node last heard from.
func (n *Node) Leader() (id string, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaderID, n.leaderID != ""
}

// IsLeader reports whether this node believes it currently leads. The
// answer can be stale; correctness never depends on it.
func (n *Node) IsLeader() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role == Leader
}

// ID returns this node's server id.
func (n *Node) ID() string {
	return n.cfg.ID
}
