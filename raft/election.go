package raft

import (
	"context"
	"log"
	"time"
)

// startElectionLocked begins a new election: bump the term, vote for
// ourselves, and solicit the cluster. Caller holds n.mu.
func (n *Node) startElectionLocked() {
	n.role = Candidate
	n.term++
	n.votedFor = n.cfg.ID
	n.leaderID = ""
	n.votes = map[string]bool{n.cfg.ID: true}
	n.resetElectionDeadline()
	if err := n.store.SetState(n.term, n.votedFor); err != nil {
		log.Printf("[raft %s] persist vote: %v", n.cfg.ID, err)
	}
	metricTerm.WithLabelValues(n.cfg.ID).Set(float64(n.term))
	metricElections.WithLabelValues(n.cfg.ID).Inc()
	if n.cfg.Debug {
		log.Printf("[raft %s] starting election for term %d", n.cfg.ID, n.term)
	}

	if len(n.votes) >= n.cfg.quorum() {
		n.becomeLeaderLocked()
		return
	}

	req := &VoteRequest{
		Term:         n.term,
		CandidateID:  n.cfg.ID,
		LastLogIndex: n.raftLog.lastIndex(),
		LastLogTerm:  n.raftLog.lastTerm(),
	}
	for _, peer := range n.peers {
		go n.requestVote(peer, req)
	}
}

func (n *Node) requestVote(peer Peer, req *VoteRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.ElectionTimeout)
	defer cancel()
	resp, err := n.tr.RequestVote(ctx, peer, req)
	if err != nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if resp.Term > n.term {
		n.stepDownLocked(resp.Term)
		return
	}
	if n.role != Candidate || n.term != req.Term || !resp.Granted {
		return
	}
	n.votes[peer.ID] = true
	if len(n.votes) >= n.cfg.quorum() {
		n.becomeLeaderLocked()
	}
}

// becomeLeaderLocked takes over the current term. The no-op entry
// appended here is how entries surviving from earlier terms get
// committed: the commit rule only counts entries from the current
// term, and replicating the no-op drags the whole prefix with it.
func (n *Node) becomeLeaderLocked() {
	n.role = Leader
	n.leaderID = n.cfg.ID
	last := n.raftLog.lastIndex()
	n.nextIndex = make(map[string]uint64, len(n.peers))
	n.match = make(map[string]uint64, len(n.peers))
	n.peerFails = make(map[string]int, len(n.peers))
	n.peerDown = make(map[string]bool, len(n.peers))
	for _, p := range n.peers {
		n.nextIndex[p.ID] = last + 1
		n.match[p.ID] = 0
	}
	n.appendLocalLocked(nil, n.cfg.ID)
	n.heartbeatDue = time.Now().Add(n.cfg.HeartbeatInterval)
	metricLeader.WithLabelValues(n.cfg.ID).Set(1)
	log.Printf("[raft %s] won election, leading term %d at index %d", n.cfg.ID, n.term, n.raftLog.lastIndex())

	ev := LeadershipEvent{Term: n.term, LeaderID: n.cfg.ID, Self: true}
	go n.Events.Leadership.RunHooks(ev)
	n.mu.Unlock()
	n.broadcastAppend()
	n.mu.Lock()
}

// stepDownLocked returns to follower in a newer term. Caller holds
// n.mu.
func (n *Node) stepDownLocked(term uint64) {
	wasLeader := n.role == Leader
	n.role = Follower
	if term > n.term {
		n.term = term
		n.votedFor = ""
		n.leaderID = ""
		if err := n.store.SetState(n.term, n.votedFor); err != nil {
			log.Printf("[raft %s] persist term: %v", n.cfg.ID, err)
		}
	}
	n.resetElectionDeadline()
	metricTerm.WithLabelValues(n.cfg.ID).Set(float64(n.term))
	if wasLeader {
		metricLeader.WithLabelValues(n.cfg.ID).Set(0)
		log.Printf("[raft %s] stepping down, term %d", n.cfg.ID, n.term)
	}
}

// HandleRequestVote answers a candidate's vote solicitation. The vote
// goes to at most one candidate per term, and only when the
// candidate's log is at least as up to date as ours.
func (n *Node) HandleRequestVote(req *VoteRequest) *VoteResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term > n.term {
		n.stepDownLocked(req.Term)
	}
	resp := &VoteResponse{Term: n.term}
	if req.Term < n.term {
		return resp
	}

	logOK := req.LastLogTerm > n.raftLog.lastTerm() ||
		(req.LastLogTerm == n.raftLog.lastTerm() && req.LastLogIndex >= n.raftLog.lastIndex())
	if !logOK {
		return resp
	}
	if n.votedFor != "" && n.votedFor != req.CandidateID {
		return resp
	}

	n.votedFor = req.CandidateID
	if err := n.store.SetState(n.term, n.votedFor); err != nil {
		log.Printf("[raft %s] persist vote: %v", n.cfg.ID, err)
	}
	n.resetElectionDeadline()
	resp.Granted = true
	if n.cfg.Debug {
		log.Printf("[raft %s] voted for %s in term %d", n.cfg.ID, req.CandidateID, n.term)
	}
	return resp
}
