package irc

import (
	"fmt"
	"net"

	"github.com/presbrey/qircd/state"
)

// Store exposes the replicated network state for read-only queries.
func (s *Server) Store() *state.Network {
	return s.store
}

// NodeStatus reports the consensus node's current view, matching what
// the /raft/status endpoint serves.
func (s *Server) NodeStatus() interface{} {
	return s.node.Status()
}

// TestingGetListener returns the plaintext listener, used by tests to
// discover the bound port.
func (s *Server) TestingGetListener() net.Listener {
	return s.listener
}

// GrantOperatorForTest replicates an operator grant for a nick without
// OPER credentials. Test helper only.
func (s *Server) GrantOperatorForTest(nick string) error {
	u, ok := s.store.UserByNick(nick)
	if !ok {
		return fmt.Errorf("no such nick: %s", nick)
	}
	_, err := s.processor.propose(state.Op{
		Kind:    state.OpSetMode,
		Session: u.Session,
		Nick:    u.Nick,
		User:    u.Username,
		Host:    u.Host,
		Target:  u.Nick,
		Mode:    "+o",
		Granted: true,
	})
	return err
}
