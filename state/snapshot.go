package state

import (
	"encoding/json"
	"fmt"
)

// snapshotData is the serialized store. The session index is rebuilt
// from users on restore rather than carried separately.
type snapshotData struct {
	Applied  uint64                 `json:"applied"`
	Users    map[lcNick]*User       `json:"users"`
	Channels map[lcChan]*Channel    `json:"channels"`
	Servers  map[string]*ServerNode `json:"servers"`
}

// Snapshot serializes the full store. The encoding is deterministic
// for a given state (JSON map keys sort), so the same applied prefix
// yields the same bytes on every server.
func (n *Network) Snapshot() ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return json.Marshal(snapshotData{
		Applied:  n.applied,
		Users:    n.users,
		Channels: n.channels,
		Servers:  n.servers,
	})
}

// Restore replaces the store with a snapshot taken at lastIndex. Used
// when a server rejoins too far behind the log to catch up entry by
// entry.
func (n *Network) Restore(lastIndex uint64, data []byte) error {
	var snap snapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("state: decode snapshot: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = snap.Users
	n.channels = snap.Channels
	n.servers = snap.Servers
	if n.users == nil {
		n.users = make(map[lcNick]*User)
	}
	if n.channels == nil {
		n.channels = make(map[lcChan]*Channel)
	}
	if n.servers == nil {
		n.servers = make(map[string]*ServerNode)
	}

	n.sessions = make(map[string]lcNick, len(n.users))
	for lc, u := range n.users {
		n.sessions[u.Session] = lc
		if u.Channels == nil {
			u.Channels = make(map[lcChan]bool)
		}
	}
	for _, ch := range n.channels {
		if ch.Members == nil {
			ch.Members = make(map[lcNick]*MemberFlags)
		}
	}
	n.applied = lastIndex
	return nil
}
