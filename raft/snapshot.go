package raft

import (
	"context"
	"log"
)

// takeSnapshotLocked folds the applied prefix into a snapshot and
// compacts the log. Runs on the apply goroutine with n.mu held, so the
// FSM is exactly at lastApplied and no apply is in flight.
func (n *Node) takeSnapshotLocked() {
	index := n.lastApplied
	term, ok := n.raftLog.term(index)
	if !ok {
		return
	}
	data, err := n.fsm.Snapshot()
	if err != nil {
		log.Printf("[raft %s] snapshot at %d: %v", n.cfg.ID, index, err)
		return
	}
	n.raftLog.compactTo(index, term)
	n.sinceSnapshot = 0

	n.mu.Unlock()
	if n.archive != nil {
		if err := n.archive.Save(index, term, data); err != nil {
			log.Printf("[raft %s] archive snapshot %d: %v", n.cfg.ID, index, err)
		}
	}
	if err := n.store.CompactTo(index, term); err != nil {
		log.Printf("[raft %s] compact store to %d: %v", n.cfg.ID, index, err)
	}
	metricSnapshots.WithLabelValues(n.cfg.ID).Inc()
	log.Printf("[raft %s] snapshot taken at index %d (%d bytes)", n.cfg.ID, index, len(data))
	go n.Events.Snapshot.RunHooks(SnapshotEvent{Index: index, Term: term, Size: len(data)})
	n.mu.Lock()
}

// sendSnapshot ships the newest snapshot to a follower whose nextIndex
// has been compacted away.
func (n *Node) sendSnapshot(peer Peer, term uint64) {
	if n.archive == nil {
		return
	}
	rec, ok, err := n.archive.Latest()
	if err != nil || !ok {
		if err != nil {
			log.Printf("[raft %s] load snapshot for %s: %v", n.cfg.ID, peer.ID, err)
		}
		return
	}

	n.mu.Lock()
	if n.role != Leader || n.term != term {
		n.mu.Unlock()
		return
	}
	req := &SnapshotRequest{
		Term:      term,
		LeaderID:  n.cfg.ID,
		LastIndex: rec.Index,
		LastTerm:  rec.Term,
		Data:      rec.Data,
	}
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*n.cfg.ElectionTimeout)
	resp, err := n.tr.InstallSnapshot(ctx, peer, req)
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
	if rec.Index > n.match[peer.ID] {
		n.match[peer.ID] = rec.Index
	}
	n.nextIndex[peer.ID] = rec.Index + 1
	log.Printf("[raft %s] snapshot at %d installed on %s", n.cfg.ID, rec.Index, peer.ID)
	go n.replicateTo(peer, term)
}

// HandleInstallSnapshot replaces local state with the leader's
// snapshot. Any applies already committed locally finish first so the
// restore never races the apply loop.
func (n *Node) HandleInstallSnapshot(req *SnapshotRequest) *SnapshotResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	resp := &SnapshotResponse{Term: n.term}
	if req.Term < n.term {
		return resp
	}
	if req.Term > n.term || n.role != Follower {
		n.stepDownLocked(req.Term)
		resp.Term = n.term
	}
	n.resetElectionDeadline()
	n.leaderID = req.LeaderID

	if req.LastIndex <= n.lastApplied {
		// Already past the snapshot point; nothing to install.
		return resp
	}
	if !n.waitAppliedLocked(10 * n.cfg.ElectionTimeout) {
		log.Printf("[raft %s] snapshot install aborted, apply loop lagging", n.cfg.ID)
		return resp
	}

	if err := n.fsm.Restore(req.LastIndex, req.Data); err != nil {
		log.Printf("[raft %s] restore snapshot %d: %v", n.cfg.ID, req.LastIndex, err)
		return resp
	}
	n.raftLog.reset(req.LastIndex, req.LastTerm)
	n.commitIndex = req.LastIndex
	n.lastApplied = req.LastIndex
	n.sinceSnapshot = 0
	if err := n.store.TruncateFrom(1); err != nil {
		log.Printf("[raft %s] clear log store: %v", n.cfg.ID, err)
	}
	if err := n.store.CompactTo(req.LastIndex, req.LastTerm); err != nil {
		log.Printf("[raft %s] record snapshot boundary: %v", n.cfg.ID, err)
	}

	n.mu.Unlock()
	if n.archive != nil {
		if err := n.archive.Save(req.LastIndex, req.LastTerm, req.Data); err != nil {
			log.Printf("[raft %s] archive installed snapshot: %v", n.cfg.ID, err)
		}
	}
	n.mu.Lock()

	metricCommitIndex.WithLabelValues(n.cfg.ID).Set(float64(req.LastIndex))
	metricAppliedIndex.WithLabelValues(n.cfg.ID).Set(float64(req.LastIndex))
	log.Printf("[raft %s] installed snapshot at index %d from %s", n.cfg.ID, req.LastIndex, req.LeaderID)
	return resp
}
