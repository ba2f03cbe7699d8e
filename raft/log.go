package raft

// raftLog is the in-memory log. The prefix up to and including offset
// has been compacted into a snapshot; entries[0], when present, is the
// entry at index offset+1. The persistent mirror lives in Store and is
// updated by the node alongside every mutation here.
type raftLog struct {
	offset     uint64 // index of the last compacted entry
	offsetTerm uint64 // its term
	entries    []Entry
}

func newLog() *raftLog {
	return &raftLog{}
}

func (l *raftLog) lastIndex() uint64 {
	if n := len(l.entries); n > 0 {
		return l.entries[n-1].Index
	}
	return l.offset
}

func (l *raftLog) lastTerm() uint64 {
	if n := len(l.entries); n > 0 {
		return l.entries[n-1].Term
	}
	return l.offsetTerm
}

// term returns the term of the entry at index, or false when the
// index has been compacted away (other than the snapshot boundary) or
// lies beyond the log.
func (l *raftLog) term(index uint64) (uint64, bool) {
	if index == l.offset {
		return l.offsetTerm, true
	}
	if index < l.offset || index > l.lastIndex() {
		return 0, false
	}
	return l.entries[index-l.offset-1].Term, true
}

// entry returns the entry at index.
func (l *raftLog) entry(index uint64) (Entry, bool) {
	if index <= l.offset || index > l.lastIndex() {
		return Entry{}, false
	}
	return l.entries[index-l.offset-1], true
}

// slice returns up to max entries starting at from. An empty result
// with ok=false means from has been compacted and the caller must fall
// back to a snapshot.
func (l *raftLog) slice(from uint64, max int) ([]Entry, bool) {
	if from <= l.offset {
		return nil, false
	}
	if from > l.lastIndex() {
		return nil, true
	}
	start := int(from - l.offset - 1)
	end := start + max
	if max <= 0 || end > len(l.entries) {
		end = len(l.entries)
	}
	out := make([]Entry, end-start)
	copy(out, l.entries[start:end])
	return out, true
}

// append adds entries after the current tail. Callers have already
// resolved conflicts via truncateFrom.
func (l *raftLog) append(entries ...Entry) {
	l.entries = append(l.entries, entries...)
}

// truncateFrom drops the suffix starting at index, resolving a
// replication divergence in the leader's favor. Returns the entries
// removed so the node can clear them from the persistent store.
func (l *raftLog) truncateFrom(index uint64) []Entry {
	if index <= l.offset || index > l.lastIndex() {
		return nil
	}
	cut := int(index - l.offset - 1)
	removed := make([]Entry, len(l.entries)-cut)
	copy(removed, l.entries[cut:])
	l.entries = l.entries[:cut]
	return removed
}

// compactTo discards the prefix through index after it has been folded
// into a snapshot.
func (l *raftLog) compactTo(index, term uint64) {
	if index <= l.offset {
		return
	}
	if index >= l.lastIndex() {
		l.entries = nil
	} else {
		keep := l.entries[index-l.offset:]
		l.entries = append([]Entry(nil), keep...)
	}
	l.offset = index
	l.offsetTerm = term
}

// reset replaces the whole log with a snapshot boundary, used when a
// follower installs a snapshot from the leader.
func (l *raftLog) reset(index, term uint64) {
	l.offset = index
	l.offsetTerm = term
	l.entries = nil
}
