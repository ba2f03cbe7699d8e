package raft

import (
	"github.com/presbrey/qircd/hooks"
)

// LeadershipEvent fires when the node observes a leader change,
// including itself winning or losing an election.
type LeadershipEvent struct {
	Term     uint64
	LeaderID string
	Self     bool
}

// PeerEvent fires on the leader when a follower stops answering
// (partition detected) or starts answering again (partition healed).
type PeerEvent struct {
	Peer      Peer
	Reachable bool
	Term      uint64
}

// SnapshotEvent fires after a snapshot is taken and the log prefix
// compacted.
type SnapshotEvent struct {
	Index uint64
	Term  uint64
	Size  int
}

// Events exposes the node's observable transitions. Hooks run on
// their own goroutine so a slow observer can never stall consensus.
type Events struct {
	Leadership *hooks.Registry[LeadershipEvent]
	PeerChange *hooks.Registry[PeerEvent]
	Snapshot   *hooks.Registry[SnapshotEvent]
}

func newEvents() *Events {
	return &Events{
		Leadership: hooks.NewRegistry[LeadershipEvent](),
		PeerChange: hooks.NewRegistry[PeerEvent](),
		Snapshot:   hooks.NewRegistry[SnapshotEvent](),
	}
}
