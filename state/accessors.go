package state

import (
	"sort"
	"strings"
)

// UserView is a copy of a user's state safe to use outside the lock.
type UserView struct {
	Session      string
	Nick         string
	Username     string
	Realname     string
	Host         string
	Server       string
	Modes        string
	Away         bool
	AwayMessage  string
	RegisteredAt int64
	Channels     []string
}

// MemberView is one channel member with per-channel flags.
type MemberView struct {
	Nick     string
	Username string
	Host     string
	Server   string
	Session  string
	Away     bool
	Operator bool
	Voice    bool
}

// ChannelView is a copy of a channel's metadata.
type ChannelView struct {
	Name       string
	CreatedAt  int64
	Topic      string
	TopicBy    string
	TopicAt    int64
	Modes      string
	Key        string
	Limit      int
	NumMembers int
}

// ChannelSummary is a LIST row.
type ChannelSummary struct {
	Name    string
	Visible int
	Topic   string
	Secret  bool
}

// NetworkCounts summarizes the network for LUSERS.
type NetworkCounts struct {
	Users     int
	Invisible int
	Operators int
	Channels  int
	Servers   int
}

func (n *Network) snapshotUser(u *User) UserView {
	chans := make([]string, 0, len(u.Channels))
	for lcc := range u.Channels {
		if ch, ok := n.channels[lcc]; ok {
			chans = append(chans, ch.Name)
		}
	}
	sort.Strings(chans)
	return UserView{
		Session:      u.Session,
		Nick:         u.Nick,
		Username:     u.Username,
		Realname:     u.Realname,
		Host:         u.Host,
		Server:       u.Server,
		Modes:        u.Modes,
		Away:         u.Away,
		AwayMessage:  u.AwayMessage,
		RegisteredAt: u.RegisteredAt,
		Channels:     chans,
	}
}

// AppliedIndex returns the store version: the index of the last
// committed operation folded in.
func (n *Network) AppliedIndex() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.applied
}

// UserByNick looks a user up by nickname.
func (n *Network) UserByNick(nick string) (UserView, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	u, ok := n.users[NickToLower(nick)]
	if !ok {
		return UserView{}, false
	}
	return n.snapshotUser(u), true
}

// UserBySession looks a user up by owning session id.
func (n *Network) UserBySession(session string) (UserView, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	u := n.userBySession(session)
	if u == nil {
		return UserView{}, false
	}
	return n.snapshotUser(u), true
}

// NickTaken reports whether a nickname is registered, and by which
// session.
func (n *Network) NickTaken(nick string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	u, ok := n.users[NickToLower(nick)]
	if !ok {
		return "", false
	}
	return u.Session, true
}

// Channel returns channel metadata.
func (n *Network) Channel(name string) (ChannelView, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ch, ok := n.channels[ChanToLower(name)]
	if !ok {
		return ChannelView{}, false
	}
	return ChannelView{
		Name:       ch.Name,
		CreatedAt:  ch.CreatedAt,
		Topic:      ch.Topic,
		TopicBy:    ch.TopicBy,
		TopicAt:    ch.TopicAt,
		Modes:      ch.Modes,
		Key:        ch.Key,
		Limit:      ch.Limit,
		NumMembers: len(ch.Members),
	}, true
}

// Members returns a channel's member list sorted by nick.
func (n *Network) Members(name string) []MemberView {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ch, ok := n.channels[ChanToLower(name)]
	if !ok {
		return nil
	}
	out := make([]MemberView, 0, len(ch.Members))
	for lc, flags := range ch.Members {
		u, ok := n.users[lc]
		if !ok {
			continue
		}
		out = append(out, MemberView{
			Nick:     u.Nick,
			Username: u.Username,
			Host:     u.Host,
			Server:   u.Server,
			Session:  u.Session,
			Away:     u.Away,
			Operator: flags.Operator,
			Voice:    flags.Voice,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nick < out[j].Nick })
	return out
}

// MemberFlagsFor returns the session's flags on a channel.
func (n *Network) MemberFlagsFor(session, channel string) (MemberFlags, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	u := n.userBySession(session)
	if u == nil {
		return MemberFlags{}, false
	}
	ch, ok := n.channels[ChanToLower(channel)]
	if !ok {
		return MemberFlags{}, false
	}
	flags, ok := ch.Members[NickToLower(u.Nick)]
	if !ok {
		return MemberFlags{}, false
	}
	return *flags, true
}

// ChannelBans returns a copy of a channel's ban list.
func (n *Network) ChannelBans(name string) []Ban {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ch, ok := n.channels[ChanToLower(name)]
	if !ok {
		return nil
	}
	return append([]Ban(nil), ch.Bans...)
}

// Channels returns LIST rows sorted by name. Secret channels are
// included with Secret set; the caller decides visibility.
func (n *Network) Channels() []ChannelSummary {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]ChannelSummary, 0, len(n.channels))
	for _, ch := range n.channels {
		out = append(out, ChannelSummary{
			Name:    ch.Name,
			Visible: len(ch.Members),
			Topic:   ch.Topic,
			Secret:  ch.HasMode('s'),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Servers returns the known topology sorted by id.
func (n *Network) Servers() []ServerNode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]ServerNode, 0, len(n.servers))
	for _, sn := range n.servers {
		out = append(out, *sn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts summarizes users/channels/servers for LUSERS.
func (n *Network) Counts() NetworkCounts {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c := NetworkCounts{
		Users:    len(n.users),
		Channels: len(n.channels),
		Servers:  len(n.servers),
	}
	for _, u := range n.users {
		if strings.ContainsRune(u.Modes, 'i') {
			c.Invisible++
		}
		if strings.ContainsRune(u.Modes, 'o') {
			c.Operators++
		}
	}
	return c
}
