package raft

import (
	"context"
	"log"
	"sort"
	"time"
)

// maxEntriesPerAppend bounds how much log a single AppendEntries
// carries so a far-behind follower catches up in rounds instead of one
// giant request.
const maxEntriesPerAppend = 256

// consecutive transport failures before a peer is reported
// unreachable.
const peerFailThreshold = 3

// broadcastAppend sends AppendEntries to every peer. Heartbeats are
// the same call with an empty entry set.
func (n *Node) broadcastAppend() {
	n.mu.Lock()
	if n.role != Leader {
		n.mu.Unlock()
		return
	}
	term := n.term
	peers := append([]Peer(nil), n.peers...)
	n.mu.Unlock()

	for _, peer := range peers {
		go n.replicateTo(peer, term)
	}
}

// replicateTo sends one AppendEntries round to a peer, falling back to
// a snapshot when the entries it needs are already compacted.
func (n *Node) replicateTo(peer Peer, term uint64) {
	n.mu.Lock()
	if n.role != Leader || n.term != term {
		n.mu.Unlock()
		return
	}
	next := n.nextIndex[peer.ID]
	if next == 0 {
		next = 1
	}
	entries, ok := n.raftLog.slice(next, maxEntriesPerAppend)
	if !ok {
		n.mu.Unlock()
		n.sendSnapshot(peer, term)
		return
	}
	prevIndex := next - 1
	prevTerm, ok := n.raftLog.term(prevIndex)
	if !ok {
		n.mu.Unlock()
		n.sendSnapshot(peer, term)
		return
	}
	req := &AppendRequest{
		Term:         term,
		LeaderID:     n.cfg.ID,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: n.commitIndex,
	}
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*n.cfg.HeartbeatInterval)
	resp, err := n.tr.AppendEntries(ctx, peer, req)
	cancel()

	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		n.notePeerFailureLocked(peer)
		return
	}
	n.notePeerSuccessLocked(peer)

	if resp.Term > n.term {
		n.stepDownLocked(resp.Term)
		return
	}
	if n.role != Leader || n.term != term {
		return
	}

	if resp.Success {
		matched := req.PrevLogIndex + uint64(len(req.Entries))
		if matched > n.match[peer.ID] {
			n.match[peer.ID] = matched
		}
		n.nextIndex[peer.ID] = matched + 1
		n.advanceCommitLocked()
		if n.nextIndex[peer.ID] <= n.raftLog.lastIndex() {
			go n.replicateTo(peer, term)
		}
		return
	}

	// Log mismatch: walk nextIndex back, skipping straight to the
	// follower's tail when it is shorter than prevIndex.
	next = n.nextIndex[peer.ID]
	if next > 1 {
		next--
	}
	if resp.LastIndex+1 < next {
		next = resp.LastIndex + 1
	}
	if next < 1 {
		next = 1
	}
	n.nextIndex[peer.ID] = next
	go n.replicateTo(peer, term)
}

// advanceCommitLocked moves commitIndex to the highest index
// replicated on a quorum. Only entries from the current term count
// directly; older entries commit when a current-term entry above them
// does. Caller holds n.mu.
func (n *Node) advanceCommitLocked() {
	indices := make([]uint64, 0, len(n.peers)+1)
	indices = append(indices, n.raftLog.lastIndex())
	for _, p := range n.peers {
		indices = append(indices, n.match[p.ID])
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] > indices[j] })
	candidate := indices[n.cfg.quorum()-1]
	if candidate <= n.commitIndex {
		return
	}
	t, ok := n.raftLog.term(candidate)
	if !ok || t != n.term {
		return
	}
	n.commitIndex = candidate
	metricCommitIndex.WithLabelValues(n.cfg.ID).Set(float64(candidate))
	n.applyCond.Broadcast()
}

func (n *Node) notePeerFailureLocked(peer Peer) {
	n.peerFails[peer.ID]++
	if n.peerFails[peer.ID] == peerFailThreshold && !n.peerDown[peer.ID] {
		n.peerDown[peer.ID] = true
		log.Printf("[raft %s] peer %s unreachable", n.cfg.ID, peer.ID)
		go n.Events.PeerChange.RunHooks(PeerEvent{Peer: peer, Reachable: false, Term: n.term})
	}
}

func (n *Node) notePeerSuccessLocked(peer Peer) {
	n.peerFails[peer.ID] = 0
	if n.peerDown[peer.ID] {
		n.peerDown[peer.ID] = false
		log.Printf("[raft %s] peer %s reachable again", n.cfg.ID, peer.ID)
		go n.Events.PeerChange.RunHooks(PeerEvent{Peer: peer, Reachable: true, Term: n.term})
	}
}

// HandleAppendEntries applies the leader's replication round to the
// local log: verify the match point, cut any divergent suffix, append
// what is new, and advance the commit index.
func (n *Node) HandleAppendEntries(req *AppendRequest) *AppendResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	resp := &AppendResponse{Term: n.term, LastIndex: n.raftLog.lastIndex()}
	if req.Term < n.term {
		return resp
	}
	if req.Term > n.term || n.role != Follower {
		n.stepDownLocked(req.Term)
		resp.Term = n.term
	}
	n.resetElectionDeadline()
	if n.leaderID != req.LeaderID {
		n.leaderID = req.LeaderID
		ev := LeadershipEvent{Term: n.term, LeaderID: req.LeaderID, Self: false}
		go n.Events.Leadership.RunHooks(ev)
	}

	// Entries at or below the snapshot boundary are already part of
	// committed state; the match point only needs checking above it.
	if req.PrevLogIndex > n.raftLog.offset {
		t, ok := n.raftLog.term(req.PrevLogIndex)
		if !ok || t != req.PrevLogTerm {
			return resp
		}
	}

	for _, e := range req.Entries {
		if e.Index <= n.raftLog.offset {
			continue
		}
		if t, ok := n.raftLog.term(e.Index); ok {
			if t == e.Term {
				continue
			}
			// Divergence: this suffix was written by a deposed leader
			// and can never have committed. Drop it.
			removed := n.raftLog.truncateFrom(e.Index)
			log.Printf("[raft %s] truncating %d divergent entries from index %d", n.cfg.ID, len(removed), e.Index)
			if err := n.store.TruncateFrom(e.Index); err != nil {
				log.Printf("[raft %s] truncate store: %v", n.cfg.ID, err)
			}
		}
		n.raftLog.append(e)
		if err := n.store.AppendEntries([]Entry{e}); err != nil {
			log.Printf("[raft %s] persist entry %d: %v", n.cfg.ID, e.Index, err)
		}
	}

	if req.LeaderCommit > n.commitIndex {
		commit := req.LeaderCommit
		if last := n.raftLog.lastIndex(); commit > last {
			commit = last
		}
		if commit > n.commitIndex {
			n.commitIndex = commit
			metricCommitIndex.WithLabelValues(n.cfg.ID).Set(float64(commit))
			n.applyCond.Broadcast()
		}
	}

	resp.Success = true
	resp.LastIndex = n.raftLog.lastIndex()
	return resp
}

// waitApplied blocks until the apply loop has caught up to the commit
// index, bounded by the timeout. Used before a snapshot restore
// replaces the state out from under in-flight applies.
func (n *Node) waitAppliedLocked(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	wake := time.AfterFunc(timeout, n.applyCond.Broadcast)
	defer wake.Stop()
	for n.lastApplied < n.commitIndex && !n.stopped {
		if time.Now().After(deadline) {
			return false
		}
		n.applyCond.Wait()
	}
	return n.lastApplied >= n.commitIndex
}
