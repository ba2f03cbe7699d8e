package irc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/presbrey/qircd/raft"
	"github.com/presbrey/qircd/state"
)

// Processor turns client commands into replicated operations. Every
// state change is proposed to the consensus log; the proposing handler
// blocks until the local node applies the committed entry, and the
// resulting ApplyResult drives both the reply to the proposer and the
// fan-out to every other affected local session. Reads never go through
// the log; they are answered from the local store.
type Processor struct {
	server *Server

	mu      sync.Mutex
	pending map[string]chan state.ApplyResult
}

func newProcessor(s *Server) *Processor {
	return &Processor{
		server:  s,
		pending: make(map[string]chan state.ApplyResult),
	}
}

// propose submits an operation and blocks until this node applies the
// committed entry, or the proposal deadline passes. The deadline bounds
// the whole attempt: retries while the cluster elects a leader, the
// forward to the leader, and the wait for the commit to come back
// through the apply loop.
func (p *Processor) propose(op state.Op) (state.ApplyResult, error) {
	op.ID = uuid.NewString()
	op.Origin = p.server.node.ID()
	op.Ts = time.Now().Unix()

	data, err := json.Marshal(op)
	if err != nil {
		return state.ApplyResult{}, err
	}

	future := make(chan state.ApplyResult, 1)
	p.mu.Lock()
	p.pending[op.ID] = future
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, op.ID)
		p.mu.Unlock()
	}()

	deadline := time.Now().Add(p.server.proposalTimeout())
	backoff := 50 * time.Millisecond
	for {
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		err = p.server.node.Propose(ctx, data)
		cancel()
		if err == nil {
			break
		}
		if errors.Is(err, raft.ErrShutdown) {
			return state.ApplyResult{}, err
		}
		// No leader yet, or the leader changed under us. The op is not
		// in the log, so retrying cannot double-apply it.
		if time.Now().Add(backoff).After(deadline) {
			log.Printf("[%s] Proposal %s (%s) gave up: %v", p.server.node.ID(), op.ID, op.Kind, err)
			return state.ApplyResult{}, ErrProposalTimeout
		}
		time.Sleep(backoff)
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}

	select {
	case res := <-future:
		return res, nil
	case <-time.After(time.Until(deadline)):
		log.Printf("[%s] Proposal %s (%s) accepted but not committed in time", p.server.node.ID(), op.ID, op.Kind)
		return state.ApplyResult{}, ErrProposalTimeout
	}
}

// committed is called from the consensus apply loop, once per committed
// operation, in log order on every server. It resolves the proposer's
// pending future when the op originated here, then fans the change out
// to the local sessions it affects.
func (p *Processor) committed(res state.ApplyResult) {
	if res.Op.Origin == p.server.node.ID() && res.Op.ID != "" {
		p.mu.Lock()
		future, ok := p.pending[res.Op.ID]
		if ok {
			delete(p.pending, res.Op.ID)
		}
		p.mu.Unlock()
		if ok {
			future <- res
		}
	}
	p.fanOut(res)
}

// fanOut relays one committed change to the local sessions in its
// audience. The op itself carries the actor's nick/user/host, so the
// prefix never needs a store lookup; that matters for RetireUser, where
// the user is already gone from the store by the time we get here.
func (p *Processor) fanOut(res state.ApplyResult) {
	if res.Rejected || res.NoOp {
		return
	}

	op := res.Op
	prefix := FormatHostmask(op.Nick, op.User, op.Host)

	switch op.Kind {
	case state.OpNickChange:
		oldNick := res.OldNick
		if oldNick == "" {
			oldNick = op.Nick
		}
		line := fmt.Sprintf(":%s NICK :%s", FormatHostmask(oldNick, op.User, op.Host), res.NewNick)
		p.deliver(res.Audience, line, "")
		if c := p.server.sessionByID(op.Session); c != nil {
			c.setNickname(res.NewNick)
		}

	case state.OpJoinChannel:
		p.deliver(res.Audience, fmt.Sprintf(":%s JOIN %s", prefix, op.Channel), "")

	case state.OpPartChannel:
		line := fmt.Sprintf(":%s PART %s", prefix, op.Channel)
		if op.Text != "" {
			line += " :" + op.Text
		}
		p.deliver(res.Audience, line, "")

	case state.OpKickUser:
		reason := op.Text
		if reason == "" {
			reason = op.Nick
		}
		p.deliver(res.Audience, fmt.Sprintf(":%s KICK %s %s :%s", prefix, op.Channel, op.Target, reason), "")

	case state.OpSetTopic:
		p.deliver(res.Audience, fmt.Sprintf(":%s TOPIC %s :%s", prefix, op.Channel, op.Text), "")

	case state.OpSetMode, state.OpSetBan:
		// res.Mode is what actually applied, which can be a subset of
		// what was asked for.
		if res.Mode == "" {
			return
		}
		target := op.Channel
		if target == "" {
			target = op.Target
		}
		if target == "" {
			target = op.Nick
		}
		line := fmt.Sprintf(":%s MODE %s %s", prefix, target, res.Mode)
		if len(res.ModeArgs) > 0 {
			line += " " + strings.Join(res.ModeArgs, " ")
		}
		p.deliver(res.Audience, line, "")

	case state.OpInvite:
		if u, ok := p.server.store.UserByNick(op.Target); ok {
			if c := p.server.sessionByID(u.Session); c != nil {
				c.sendRaw(fmt.Sprintf(":%s INVITE %s %s", prefix, u.Nick, op.Channel))
			}
		}

	case state.OpSetAway:
		// Delivered only to sessions that negotiated away-notify.
		line := fmt.Sprintf(":%s AWAY", prefix)
		if op.Away {
			line = fmt.Sprintf(":%s AWAY :%s", prefix, op.Text)
		}
		for _, session := range res.Audience {
			if session == op.Session {
				continue
			}
			if c := p.server.sessionByID(session); c != nil && c.capabilities.HasCapability("away-notify") {
				c.sendRaw(line)
			}
		}

	case state.OpPrivmsg:
		verb := "PRIVMSG"
		if op.Notice {
			verb = "NOTICE"
		}
		target := op.Channel
		if target == "" {
			target = op.Target
		}
		p.deliver(res.Audience, fmt.Sprintf(":%s %s %s :%s", prefix, verb, target, op.Text), op.Session)

	case state.OpRetireUser:
		nick := res.OldNick
		if nick == "" {
			nick = op.Nick
		}
		reason := op.Text
		if reason == "" {
			reason = "Client quit"
		}
		line := fmt.Sprintf(":%s QUIT :%s", FormatHostmask(nick, op.User, op.Host), reason)
		p.deliver(res.Audience, line, op.Session)
		// KILL and remote disconnects retire sessions that may still be
		// connected here.
		if c := p.server.sessionByID(op.Session); c != nil {
			c.retire(reason)
		}

	case state.OpLinkServer:
		p.server.notifyOperators(fmt.Sprintf("Server %s has linked to the network", op.Target))

	case state.OpUnlinkServer:
		p.server.notifyOperators(fmt.Sprintf("Server %s has delinked from the network", op.Target))
	}
}

// deliver sends a line to every member of the audience with a session
// on this server, skipping one session id (usually the actor, whose
// handler sends its own reply).
func (p *Processor) deliver(audience []string, line, skip string) {
	for _, session := range audience {
		if session == skip {
			continue
		}
		if c := p.server.sessionByID(session); c != nil {
			c.sendRaw(line)
		}
	}
}
