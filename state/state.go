// Package state holds the replicated network state: every user,
// channel, membership, topic, ban and server link in the network,
// derived exclusively by folding committed log operations through
// Apply. The same committed log replayed on any server produces an
// identical store, which is the invariant the rest of the system
// leans on. Nothing here reads the clock or randomness; timestamps
// arrive as op fields.
package state

import (
	"sort"
	"strings"
	"sync"
)

// MemberFlags are the per-channel flags a member can hold.
type MemberFlags struct {
	Operator bool `json:"operator,omitempty"`
	Voice    bool `json:"voice,omitempty"`
}

// User is a registered user somewhere on the network.
type User struct {
	Session      string          `json:"session"`
	Nick         string          `json:"nick"`
	Username     string          `json:"username"`
	Realname     string          `json:"realname"`
	Host         string          `json:"host"`
	Server       string          `json:"server"`
	Modes        string          `json:"modes,omitempty"`
	AwayMessage  string          `json:"awayMessage,omitempty"`
	Away         bool            `json:"away,omitempty"`
	RegisteredAt int64           `json:"registeredAt"`
	Channels     map[lcChan]bool `json:"channels,omitempty"`
}

// Ban is one entry on a channel ban list.
type Ban struct {
	Mask  string `json:"mask"`
	SetBy string `json:"setBy"`
	SetAt int64  `json:"setAt"`
}

// Channel is a channel and its membership.
type Channel struct {
	Name      string                  `json:"name"`
	CreatedAt int64                   `json:"createdAt"`
	Topic     string                  `json:"topic,omitempty"`
	TopicBy   string                  `json:"topicBy,omitempty"`
	TopicAt   int64                   `json:"topicAt,omitempty"`
	Modes     string                  `json:"modes,omitempty"`
	Key       string                  `json:"key,omitempty"`
	Limit     int                     `json:"limit,omitempty"`
	Members   map[lcNick]*MemberFlags `json:"members"`
	Bans      []Ban                   `json:"bans,omitempty"`
	Invites   map[lcNick]bool         `json:"invites,omitempty"`
}

// HasMode reports whether a channel mode flag is set.
func (ch *Channel) HasMode(mode rune) bool {
	return strings.ContainsRune(ch.Modes, mode)
}

// Link states for ServerNode.
const (
	LinkConnected   = "connected"
	LinkPartitioned = "partitioned"
	LinkCatchingUp  = "catching-up"
)

// ServerNode is one entry in the network topology.
type ServerNode struct {
	ID         string `json:"id"`
	Addr       string `json:"addr,omitempty"`
	LinkState  string `json:"linkState"`
	AckedIndex uint64 `json:"ackedIndex,omitempty"`
	LinkedAt   int64  `json:"linkedAt,omitempty"`
}

// Network is the replicated state store. All mutation happens on the
// single apply path (the consensus apply loop); reads take the read
// lock through the accessor methods. AppliedIndex doubles as the
// version a reader observed.
type Network struct {
	mu sync.RWMutex

	users    map[lcNick]*User
	sessions map[string]lcNick
	channels map[lcChan]*Channel
	servers  map[string]*ServerNode

	applied uint64
}

// NewNetwork returns an empty store at index 0.
func NewNetwork() *Network {
	return &Network{
		users:    make(map[lcNick]*User),
		sessions: make(map[string]lcNick),
		channels: make(map[lcChan]*Channel),
		servers:  make(map[string]*ServerNode),
	}
}

func setMode(modes string, mode rune) string {
	if strings.ContainsRune(modes, mode) {
		return modes
	}
	runes := []rune(modes + string(mode))
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	return string(runes)
}

func clearMode(modes string, mode rune) string {
	return strings.ReplaceAll(modes, string(mode), "")
}

// userBySession resolves the user a session currently owns. Callers
// hold mu.
func (n *Network) userBySession(session string) *User {
	lc, ok := n.sessions[session]
	if !ok {
		return nil
	}
	return n.users[lc]
}

// audienceForChannel collects the session ids of a channel's members.
// Callers hold mu.
func (n *Network) audienceForChannel(ch *Channel) []string {
	out := make([]string, 0, len(ch.Members))
	for lc := range ch.Members {
		if u, ok := n.users[lc]; ok {
			out = append(out, u.Session)
		}
	}
	sort.Strings(out)
	return out
}

// audienceForUser collects the sessions of everyone sharing a channel
// with the user, plus the user. Callers hold mu.
func (n *Network) audienceForUser(u *User) []string {
	seen := map[string]bool{u.Session: true}
	for lcc := range u.Channels {
		ch, ok := n.channels[lcc]
		if !ok {
			continue
		}
		for lcm := range ch.Members {
			if m, ok := n.users[lcm]; ok {
				seen[m.Session] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// removeMembership deletes both sides of a membership and garbage
// collects the channel when it empties without the persistent mode.
// Returns true when the channel was deleted. Callers hold mu.
func (n *Network) removeMembership(u *User, lcc lcChan) bool {
	ch, ok := n.channels[lcc]
	if !ok {
		delete(u.Channels, lcc)
		return false
	}
	delete(ch.Members, NickToLower(u.Nick))
	delete(ch.Invites, NickToLower(u.Nick))
	delete(u.Channels, lcc)
	if len(ch.Members) == 0 && !ch.HasMode('P') {
		delete(n.channels, lcc)
		return true
	}
	return false
}

// retireUser removes a user and every membership it holds. Callers
// hold mu.
func (n *Network) retireUser(u *User) {
	lc := NickToLower(u.Nick)
	for lcc := range u.Channels {
		if ch, ok := n.channels[lcc]; ok {
			delete(ch.Members, lc)
			delete(ch.Invites, lc)
			if len(ch.Members) == 0 && !ch.HasMode('P') {
				delete(n.channels, lcc)
			}
		}
	}
	delete(n.users, lc)
	delete(n.sessions, u.Session)
}
