// Package raft implements the quorum-replicated operation log that
// keeps qircd's network state identical on every server. One node per
// term is elected leader and assigns log indices to proposed
// operations; an entry is committed once a majority of the cluster has
// replicated it, and only committed entries reach the state machine.
// A server cut off from the majority cannot commit, so a partition
// stalls writes instead of forking state; when the partition heals the
// minority discards its uncommitted suffix and streams the missing
// committed entries (or a full snapshot) from the leader.
package raft

import (
	"time"
)

// Role is a node's position in the current term.
type Role string

const (
	Follower  Role = "follower"
	Candidate Role = "candidate"
	Leader    Role = "leader"
)

// Peer identifies one member of the static cluster.
type Peer struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Config carries the tunables for one node. Cluster membership is
// static: Peers lists every member including this node.
type Config struct {
	// ID is this node's server id, unique in the cluster.
	ID string

	// AdvertiseURL is the base URL peers use to reach this node.
	AdvertiseURL string

	// Peers is the full cluster membership, this node included.
	Peers []Peer

	// ElectionTimeout is the base election timeout; the effective
	// timeout is randomized in [base, 2*base) so healed partitions
	// do not re-split votes forever.
	ElectionTimeout time.Duration

	// HeartbeatInterval is how often the leader sends AppendEntries,
	// empty or not.
	HeartbeatInterval time.Duration

	// SnapshotInterval is how many applied entries pass between
	// snapshots. Zero disables snapshotting.
	SnapshotInterval uint64

	Debug bool
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ElectionTimeout <= 0 {
		out.ElectionTimeout = 150 * time.Millisecond
	}
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = 50 * time.Millisecond
	}
	return out
}

// quorum is a strict majority of the cluster.
func (c *Config) quorum() int {
	return len(c.Peers)/2 + 1
}

// Entry is one slot in the replicated log. A nil Data payload is a
// leadership no-op appended when a new leader takes over, used to
// commit entries left over from earlier terms.
type Entry struct {
	Index  uint64 `json:"index"`
	Term   uint64 `json:"term"`
	Origin string `json:"origin,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

// FSM is the replicated state machine fed by committed entries. Apply
// is called from a single goroutine in strictly increasing index
// order, never concurrently.
type FSM interface {
	// Apply folds one committed entry into the state.
	Apply(index uint64, data []byte)

	// Snapshot serializes the full state for compaction and catch-up.
	Snapshot() ([]byte, error)

	// Restore replaces the state with a snapshot taken at lastIndex.
	Restore(lastIndex uint64, data []byte) error
}

// VoteRequest asks a peer for its vote in CandidateID's election.
type VoteRequest struct {
	Term         uint64 `json:"term"`
	CandidateID  string `json:"candidateId"`
	LastLogIndex uint64 `json:"lastLogIndex"`
	LastLogTerm  uint64 `json:"lastLogTerm"`
}

// VoteResponse is the peer's answer.
type VoteResponse struct {
	Term    uint64 `json:"term"`
	Granted bool   `json:"granted"`
}

// AppendRequest replicates log entries; with no entries it is the
// leader heartbeat.
type AppendRequest struct {
	Term         uint64  `json:"term"`
	LeaderID     string  `json:"leaderId"`
	PrevLogIndex uint64  `json:"prevLogIndex"`
	PrevLogTerm  uint64  `json:"prevLogTerm"`
	Entries      []Entry `json:"entries,omitempty"`
	LeaderCommit uint64  `json:"leaderCommit"`
}

// AppendResponse reports whether the follower's log matched at
// PrevLogIndex. LastIndex lets the leader skip ahead when walking
// nextIndex back for a lagging follower.
type AppendResponse struct {
	Term      uint64 `json:"term"`
	Success   bool   `json:"success"`
	LastIndex uint64 `json:"lastIndex"`
}

// SnapshotRequest ships a full state snapshot to a follower whose
// nextIndex the leader has already compacted away.
type SnapshotRequest struct {
	Term      uint64 `json:"term"`
	LeaderID  string `json:"leaderId"`
	LastIndex uint64 `json:"lastIndex"`
	LastTerm  uint64 `json:"lastTerm"`
	Data      []byte `json:"data"`
}

// SnapshotResponse acknowledges a snapshot install.
type SnapshotResponse struct {
	Term uint64 `json:"term"`
}

// ProposeRequest forwards a client proposal to the leader.
type ProposeRequest struct {
	Origin string `json:"origin"`
	Data   []byte `json:"data"`
}

// ProposeResponse reports acceptance, or redirects to the leader the
// receiving node last heard from.
type ProposeResponse struct {
	Accepted  bool   `json:"accepted"`
	Index     uint64 `json:"index,omitempty"`
	LeaderID  string `json:"leaderId,omitempty"`
	LeaderURL string `json:"leaderUrl,omitempty"`
}

// Status is a point-in-time view of a node, served on /raft/status.
type Status struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	Term        uint64 `json:"term"`
	LeaderID    string `json:"leaderId,omitempty"`
	CommitIndex uint64 `json:"commitIndex"`
	LastApplied uint64 `json:"lastApplied"`
	LastIndex   uint64 `json:"lastIndex"`
}
