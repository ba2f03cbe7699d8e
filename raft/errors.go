package raft

import (
	"errors"
	"fmt"
)

// ErrShutdown is returned by operations on a stopped node.
var ErrShutdown = errors.New("raft: node is shut down")

// ErrNoLeader is returned by Propose when the node is a follower with
// no known leader, typically during an election or while partitioned
// from the majority. Callers retry with backoff and surface a timeout
// to the client only after their own bounded wait.
var ErrNoLeader = errors.New("raft: no leader known")

// NotLeaderError redirects a proposal to the leader this node last
// heard from.
type NotLeaderError struct {
	LeaderID  string
	LeaderURL string
}

func (e *NotLeaderError) Error() string {
	if e.LeaderID == "" {
		return "raft: not the leader"
	}
	return fmt.Sprintf("raft: not the leader, try %s", e.LeaderID)
}
