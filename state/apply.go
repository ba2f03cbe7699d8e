package state

import (
	"strconv"
	"strings"
)

// Rejection reasons, mapped to numerics by the command processor.
const (
	ReasonNickInUse        = "nicknameinuse"
	ReasonNoSuchNick       = "nosuchnick"
	ReasonNoSuchChannel    = "nosuchchannel"
	ReasonNotOnChannel     = "notonchannel"
	ReasonUserNotInChannel = "usernotinchannel"
	ReasonChanOpNeeded     = "chanoprivsneeded"
	ReasonInviteOnly       = "inviteonlychan"
	ReasonBadKey           = "badchannelkey"
	ReasonChannelFull      = "channelisfull"
	ReasonBanned           = "bannedfromchan"
	ReasonCannotSend       = "cannotsendtochan"
	ReasonUserOnChannel    = "useronchannel"
	ReasonUsersDontMatch   = "usersdontmatch"
)

// Apply folds one committed operation into the store. It is total:
// every op produces a result, never an error, and an op that log
// ordering has arbitrated against comes back Rejected. Entries at or
// below the applied index are ignored, so re-applying a committed
// entry is a no-op. Apply is the only mutation path.
func (n *Network) Apply(index uint64, op Op) ApplyResult {
	n.mu.Lock()
	defer n.mu.Unlock()

	if index <= n.applied {
		return ApplyResult{Index: index, Op: op, NoOp: true}
	}
	n.applied = index

	res := n.applyLocked(op)
	res.Index = index
	res.Op = op
	return res
}

func (n *Network) applyLocked(op Op) ApplyResult {
	switch op.Kind {
	case OpRegisterUser:
		return n.applyRegisterUser(op)
	case OpRetireUser:
		return n.applyRetireUser(op)
	case OpNickChange:
		return n.applyNickChange(op)
	case OpJoinChannel:
		return n.applyJoinChannel(op)
	case OpPartChannel:
		return n.applyPartChannel(op)
	case OpKickUser:
		return n.applyKickUser(op)
	case OpSetTopic:
		return n.applySetTopic(op)
	case OpSetMode:
		return n.applySetMode(op)
	case OpSetBan:
		return n.applySetBan(op)
	case OpInvite:
		return n.applyInvite(op)
	case OpSetAway:
		return n.applySetAway(op)
	case OpPrivmsg:
		return n.applyPrivmsg(op)
	case OpLinkServer:
		return n.applyLinkServer(op)
	case OpUnlinkServer:
		return n.applyUnlinkServer(op)
	}
	return ApplyResult{NoOp: true}
}

func (n *Network) applyRegisterUser(op Op) ApplyResult {
	lc := NickToLower(op.Nick)
	if existing, ok := n.users[lc]; ok {
		if existing.Session == op.Session {
			return ApplyResult{NoOp: true, Audience: []string{op.Session}, NewNick: existing.Nick}
		}
		return ApplyResult{Rejected: true, Reason: ReasonNickInUse}
	}
	if _, ok := n.sessions[op.Session]; ok {
		// The session already registered under another nick; a
		// replayed or duplicated proposal changes nothing.
		return ApplyResult{NoOp: true, Audience: []string{op.Session}}
	}
	n.users[lc] = &User{
		Session:      op.Session,
		Nick:         op.Nick,
		Username:     op.User,
		Realname:     op.Real,
		Host:         op.Host,
		Server:       op.Origin,
		RegisteredAt: op.Ts,
		Channels:     make(map[lcChan]bool),
	}
	n.sessions[op.Session] = lc
	return ApplyResult{Audience: []string{op.Session}, NewNick: op.Nick}
}

func (n *Network) applyRetireUser(op Op) ApplyResult {
	u := n.userBySession(op.Session)
	if u == nil {
		return ApplyResult{NoOp: true}
	}
	audience := n.audienceForUser(u)
	old := u.Nick
	n.retireUser(u)
	return ApplyResult{Audience: audience, OldNick: old, UserGone: true}
}

func (n *Network) applyNickChange(op Op) ApplyResult {
	u := n.userBySession(op.Session)
	if u == nil {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	oldNick := u.Nick
	oldLc := NickToLower(oldNick)
	newLc := NickToLower(op.NewNick)
	if owner, ok := n.users[newLc]; ok && owner != u {
		return ApplyResult{Rejected: true, Reason: ReasonNickInUse}
	}
	audience := n.audienceForUser(u)
	if newLc != oldLc {
		delete(n.users, oldLc)
		n.users[newLc] = u
		n.sessions[op.Session] = newLc
		for lcc := range u.Channels {
			ch, ok := n.channels[lcc]
			if !ok {
				continue
			}
			if flags, ok := ch.Members[oldLc]; ok {
				delete(ch.Members, oldLc)
				ch.Members[newLc] = flags
			}
			if ch.Invites[oldLc] {
				delete(ch.Invites, oldLc)
				ch.Invites[newLc] = true
			}
		}
	}
	u.Nick = op.NewNick
	return ApplyResult{Audience: audience, OldNick: oldNick, NewNick: op.NewNick}
}

func (n *Network) applyJoinChannel(op Op) ApplyResult {
	u := n.userBySession(op.Session)
	if u == nil {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	lcc := ChanToLower(op.Channel)
	lc := NickToLower(u.Nick)

	ch, ok := n.channels[lcc]
	if !ok {
		ch = &Channel{
			Name:      op.Channel,
			CreatedAt: op.Ts,
			Modes:     "nt",
			Members:   make(map[lcNick]*MemberFlags),
			Invites:   make(map[lcNick]bool),
		}
		n.channels[lcc] = ch
		ch.Members[lc] = &MemberFlags{Operator: true}
		u.Channels[lcc] = true
		return ApplyResult{Audience: n.audienceForChannel(ch), ChannelCreated: true}
	}

	if _, member := ch.Members[lc]; member {
		return ApplyResult{NoOp: true, Audience: []string{op.Session}}
	}

	invited := ch.Invites[lc]
	if ch.HasMode('i') && !invited {
		return ApplyResult{Rejected: true, Reason: ReasonInviteOnly}
	}
	if ch.Key != "" {
		if len(op.Args) == 0 || op.Args[0] != ch.Key {
			return ApplyResult{Rejected: true, Reason: ReasonBadKey}
		}
	}
	if ch.Limit > 0 && len(ch.Members) >= ch.Limit {
		return ApplyResult{Rejected: true, Reason: ReasonChannelFull}
	}
	if !invited && n.masksMatchUser(ch.Bans, u) {
		return ApplyResult{Rejected: true, Reason: ReasonBanned}
	}

	ch.Members[lc] = &MemberFlags{}
	u.Channels[lcc] = true
	delete(ch.Invites, lc)
	return ApplyResult{Audience: n.audienceForChannel(ch)}
}

func (n *Network) applyPartChannel(op Op) ApplyResult {
	u := n.userBySession(op.Session)
	if u == nil {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	lcc := ChanToLower(op.Channel)
	ch, ok := n.channels[lcc]
	if !ok {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchChannel}
	}
	if _, member := ch.Members[NickToLower(u.Nick)]; !member {
		return ApplyResult{Rejected: true, Reason: ReasonNotOnChannel}
	}
	audience := n.audienceForChannel(ch)
	gone := n.removeMembership(u, lcc)
	return ApplyResult{Audience: audience, ChannelGone: gone}
}

func (n *Network) applyKickUser(op Op) ApplyResult {
	kicker := n.userBySession(op.Session)
	if kicker == nil {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	lcc := ChanToLower(op.Channel)
	ch, ok := n.channels[lcc]
	if !ok {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchChannel}
	}
	flags, member := ch.Members[NickToLower(kicker.Nick)]
	if !member {
		return ApplyResult{Rejected: true, Reason: ReasonNotOnChannel}
	}
	if !flags.Operator {
		return ApplyResult{Rejected: true, Reason: ReasonChanOpNeeded}
	}
	target, ok := n.users[NickToLower(op.Target)]
	if !ok {
		return ApplyResult{Rejected: true, Reason: ReasonUserNotInChannel}
	}
	if _, member := ch.Members[NickToLower(target.Nick)]; !member {
		return ApplyResult{Rejected: true, Reason: ReasonUserNotInChannel}
	}
	audience := n.audienceForChannel(ch)
	gone := n.removeMembership(target, lcc)
	return ApplyResult{Audience: audience, ChannelGone: gone, OldNick: target.Nick}
}

func (n *Network) applySetTopic(op Op) ApplyResult {
	u := n.userBySession(op.Session)
	if u == nil {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	lcc := ChanToLower(op.Channel)
	ch, ok := n.channels[lcc]
	if !ok {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchChannel}
	}
	flags, member := ch.Members[NickToLower(u.Nick)]
	if !member {
		return ApplyResult{Rejected: true, Reason: ReasonNotOnChannel}
	}
	if ch.HasMode('t') && !flags.Operator {
		return ApplyResult{Rejected: true, Reason: ReasonChanOpNeeded}
	}
	ch.Topic = op.Text
	ch.TopicBy = u.Nick
	ch.TopicAt = op.Ts
	return ApplyResult{Audience: n.audienceForChannel(ch)}
}

// applySetMode handles channel flag/member modes when op.Channel is
// set and the user's own modes otherwise. Submodes that cannot apply
// (unknown letter, missing argument, target not a member) are skipped;
// the result carries only what actually changed.
func (n *Network) applySetMode(op Op) ApplyResult {
	if op.Channel != "" {
		return n.applyChannelMode(op)
	}
	return n.applyUserMode(op)
}

func (n *Network) applyChannelMode(op Op) ApplyResult {
	u := n.userBySession(op.Session)
	if u == nil {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	lcc := ChanToLower(op.Channel)
	ch, ok := n.channels[lcc]
	if !ok {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchChannel}
	}
	flags, member := ch.Members[NickToLower(u.Nick)]
	if !member {
		return ApplyResult{Rejected: true, Reason: ReasonNotOnChannel}
	}
	if !flags.Operator {
		return ApplyResult{Rejected: true, Reason: ReasonChanOpNeeded}
	}

	adding := true
	argi := 0
	nextArg := func() (string, bool) {
		if argi < len(op.Args) {
			a := op.Args[argi]
			argi++
			return a, true
		}
		return "", false
	}

	var applied modeChanges
	for _, m := range op.Mode {
		switch m {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'i', 'm', 'n', 's', 't', 'p', 'P':
			if adding {
				if !ch.HasMode(m) {
					ch.Modes = setMode(ch.Modes, m)
					applied.add(adding, m, "")
				}
			} else if ch.HasMode(m) {
				ch.Modes = clearMode(ch.Modes, m)
				applied.add(adding, m, "")
			}
		case 'k':
			if adding {
				key, ok := nextArg()
				if !ok || key == "" {
					continue
				}
				ch.Key = key
				ch.Modes = setMode(ch.Modes, 'k')
				applied.add(adding, m, key)
			} else if ch.Key != "" {
				ch.Key = ""
				ch.Modes = clearMode(ch.Modes, 'k')
				applied.add(adding, m, "")
			}
		case 'l':
			if adding {
				arg, ok := nextArg()
				if !ok {
					continue
				}
				limit, err := strconv.Atoi(arg)
				if err != nil || limit <= 0 {
					continue
				}
				ch.Limit = limit
				ch.Modes = setMode(ch.Modes, 'l')
				applied.add(adding, m, arg)
			} else if ch.Limit > 0 {
				ch.Limit = 0
				ch.Modes = clearMode(ch.Modes, 'l')
				applied.add(adding, m, "")
			}
		case 'o', 'v':
			arg, ok := nextArg()
			if !ok {
				continue
			}
			mf, member := ch.Members[NickToLower(arg)]
			if !member {
				continue
			}
			target := n.users[NickToLower(arg)]
			if target == nil {
				continue
			}
			if m == 'o' {
				if mf.Operator == adding {
					continue
				}
				mf.Operator = adding
			} else {
				if mf.Voice == adding {
					continue
				}
				mf.Voice = adding
			}
			applied.add(adding, m, target.Nick)
		}
	}

	if applied.empty() {
		return ApplyResult{NoOp: true, Audience: []string{op.Session}}
	}
	mode, args := applied.render()
	return ApplyResult{Audience: n.audienceForChannel(ch), Mode: mode, ModeArgs: args}
}

func (n *Network) applyUserMode(op Op) ApplyResult {
	u := n.userBySession(op.Session)
	if u == nil {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	if op.Target != "" && NickToLower(op.Target) != NickToLower(u.Nick) {
		return ApplyResult{Rejected: true, Reason: ReasonUsersDontMatch}
	}

	adding := true
	var applied modeChanges
	for _, m := range op.Mode {
		switch m {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'i', 'w':
			if adding == strings.ContainsRune(u.Modes, m) {
				continue
			}
			if adding {
				u.Modes = setMode(u.Modes, m)
			} else {
				u.Modes = clearMode(u.Modes, m)
			}
			applied.add(adding, m, "")
		case 'o':
			// Operator status is granted only by the server after a
			// successful OPER; clients may always drop it.
			if adding && !op.Granted {
				continue
			}
			if adding == strings.ContainsRune(u.Modes, 'o') {
				continue
			}
			if adding {
				u.Modes = setMode(u.Modes, 'o')
			} else {
				u.Modes = clearMode(u.Modes, 'o')
			}
			applied.add(adding, m, "")
		}
	}

	if applied.empty() {
		return ApplyResult{NoOp: true, Audience: []string{op.Session}}
	}
	mode, args := applied.render()
	return ApplyResult{Audience: []string{op.Session}, Mode: mode, ModeArgs: args}
}

func (n *Network) applySetBan(op Op) ApplyResult {
	u := n.userBySession(op.Session)
	if u == nil {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	lcc := ChanToLower(op.Channel)
	ch, ok := n.channels[lcc]
	if !ok {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchChannel}
	}
	flags, member := ch.Members[NickToLower(u.Nick)]
	if !member {
		return ApplyResult{Rejected: true, Reason: ReasonNotOnChannel}
	}
	if !flags.Operator {
		return ApplyResult{Rejected: true, Reason: ReasonChanOpNeeded}
	}

	mask := normalizeMask(op.Text)
	adding := !strings.HasPrefix(op.Mode, "-")
	if adding {
		for _, b := range ch.Bans {
			if b.Mask == mask {
				return ApplyResult{NoOp: true, Audience: []string{op.Session}}
			}
		}
		ch.Bans = append(ch.Bans, Ban{Mask: mask, SetBy: u.Nick, SetAt: op.Ts})
		return ApplyResult{Audience: n.audienceForChannel(ch), Mode: "+b", ModeArgs: []string{mask}}
	}
	for i, b := range ch.Bans {
		if b.Mask == mask {
			ch.Bans = append(ch.Bans[:i], ch.Bans[i+1:]...)
			return ApplyResult{Audience: n.audienceForChannel(ch), Mode: "-b", ModeArgs: []string{mask}}
		}
	}
	return ApplyResult{NoOp: true, Audience: []string{op.Session}}
}

func (n *Network) applyInvite(op Op) ApplyResult {
	inviter := n.userBySession(op.Session)
	if inviter == nil {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	lcc := ChanToLower(op.Channel)
	ch, ok := n.channels[lcc]
	if !ok {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchChannel}
	}
	flags, member := ch.Members[NickToLower(inviter.Nick)]
	if !member {
		return ApplyResult{Rejected: true, Reason: ReasonNotOnChannel}
	}
	if ch.HasMode('i') && !flags.Operator {
		return ApplyResult{Rejected: true, Reason: ReasonChanOpNeeded}
	}
	target, ok := n.users[NickToLower(op.Target)]
	if !ok {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	if _, member := ch.Members[NickToLower(target.Nick)]; member {
		return ApplyResult{Rejected: true, Reason: ReasonUserOnChannel}
	}
	if ch.Invites == nil {
		ch.Invites = make(map[lcNick]bool)
	}
	ch.Invites[NickToLower(target.Nick)] = true
	audience := []string{inviter.Session, target.Session}
	if audience[0] > audience[1] {
		audience[0], audience[1] = audience[1], audience[0]
	}
	return ApplyResult{Audience: audience, NewNick: target.Nick}
}

func (n *Network) applySetAway(op Op) ApplyResult {
	u := n.userBySession(op.Session)
	if u == nil {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	u.Away = op.Away
	if op.Away {
		u.AwayMessage = op.Text
	} else {
		u.AwayMessage = ""
	}
	// Channel peers are in the audience so servers can notify clients
	// that asked for away changes.
	return ApplyResult{Audience: n.audienceForUser(u)}
}

func (n *Network) applyPrivmsg(op Op) ApplyResult {
	sender := n.userBySession(op.Session)
	if sender == nil {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	if op.Channel != "" {
		ch, ok := n.channels[ChanToLower(op.Channel)]
		if !ok {
			return ApplyResult{Rejected: true, Reason: ReasonNoSuchChannel}
		}
		flags, member := ch.Members[NickToLower(sender.Nick)]
		if ch.HasMode('n') && !member {
			return ApplyResult{Rejected: true, Reason: ReasonCannotSend}
		}
		if ch.HasMode('m') && (!member || (!flags.Operator && !flags.Voice)) {
			return ApplyResult{Rejected: true, Reason: ReasonCannotSend}
		}
		return ApplyResult{Audience: n.audienceForChannel(ch)}
	}
	target, ok := n.users[NickToLower(op.Target)]
	if !ok {
		return ApplyResult{Rejected: true, Reason: ReasonNoSuchNick}
	}
	return ApplyResult{Audience: []string{target.Session}, NewNick: target.Nick}
}

func (n *Network) applyLinkServer(op Op) ApplyResult {
	sn, ok := n.servers[op.Target]
	if !ok {
		sn = &ServerNode{ID: op.Target}
		n.servers[op.Target] = sn
	}
	if op.Addr != "" {
		sn.Addr = op.Addr
	}
	sn.LinkState = LinkConnected
	if op.Catching {
		sn.LinkState = LinkCatchingUp
	}
	sn.AckedIndex = op.Acked
	sn.LinkedAt = op.Ts
	return ApplyResult{}
}

func (n *Network) applyUnlinkServer(op Op) ApplyResult {
	sn, ok := n.servers[op.Target]
	if !ok {
		return ApplyResult{NoOp: true}
	}
	if sn.LinkState == LinkPartitioned {
		return ApplyResult{NoOp: true}
	}
	sn.LinkState = LinkPartitioned
	return ApplyResult{}
}

// modeChanges accumulates the submodes a SetMode actually applied so
// the broadcast matches reality rather than the request.
type modeChanges struct {
	parts []struct {
		adding bool
		mode   rune
		arg    string
	}
}

func (mc *modeChanges) add(adding bool, mode rune, arg string) {
	mc.parts = append(mc.parts, struct {
		adding bool
		mode   rune
		arg    string
	}{adding, mode, arg})
}

func (mc *modeChanges) empty() bool { return len(mc.parts) == 0 }

func (mc *modeChanges) render() (string, []string) {
	var sb strings.Builder
	var args []string
	last := ' '
	for _, p := range mc.parts {
		sign := byte('-')
		if p.adding {
			sign = '+'
		}
		if rune(sign) != last {
			sb.WriteByte(sign)
			last = rune(sign)
		}
		sb.WriteRune(p.mode)
		if p.arg != "" {
			args = append(args, p.arg)
		}
	}
	return sb.String(), args
}
