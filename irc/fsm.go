package irc

import (
	"encoding/json"
	"log"

	"github.com/presbrey/qircd/state"
)

// networkFSM feeds committed log entries into the network state store
// and hands each result to the command processor for fan-out.
type networkFSM struct {
	server *Server
}

func (f *networkFSM) Apply(index uint64, data []byte) {
	var op state.Op
	if err := json.Unmarshal(data, &op); err != nil {
		// A corrupt entry would diverge the cluster if only some
		// servers skipped it, but every server runs the same decode on
		// the same committed bytes, so all of them skip together.
		log.Printf("[%s] Dropping undecodable log entry %d: %v", f.server.node.ID(), index, err)
		return
	}
	res := f.server.store.Apply(index, op)
	f.server.processor.committed(res)
}

func (f *networkFSM) Snapshot() ([]byte, error) {
	return f.server.store.Snapshot()
}

func (f *networkFSM) Restore(lastIndex uint64, data []byte) error {
	return f.server.store.Restore(lastIndex, data)
}
