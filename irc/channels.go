package irc

import (
	"fmt"
	"strings"

	"github.com/presbrey/qircd/state"
)

// handleJoin handles a JOIN command. Each channel join is one
// replicated operation; membership exists only once the log commits
// it, so every server agrees on who was in the channel first.
func (c *Client) handleJoin(params []string) {
	if len(params) < 1 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "JOIN :Not enough parameters")
		return
	}

	channelNames := strings.Split(params[0], ",")
	var keys []string
	if len(params) > 1 {
		keys = strings.Split(params[1], ",")
	}

	nick, user, host := c.identity()

	for i, channelName := range channelNames {
		if !isValidChannelName(channelName) {
			c.sendNumeric(ERR_NOSUCHCHANNEL, fmt.Sprintf("%s :No such channel", channelName))
			continue
		}

		var args []string
		if i < len(keys) && keys[i] != "" {
			args = []string{keys[i]}
		}

		res, err := c.server.processor.propose(state.Op{
			Kind:    state.OpJoinChannel,
			Session: c.id,
			Nick:    nick,
			User:    user,
			Host:    host,
			Channel: channelName,
			Args:    args,
		})
		if err != nil {
			c.sendTryAgain("JOIN")
			continue
		}
		if res.Rejected {
			n, text := numericForReason(res.Reason)
			c.sendNumeric(n, fmt.Sprintf("%s :%s", channelName, text))
			continue
		}
		if res.NoOp {
			continue
		}

		// The JOIN line for everyone, this client included, comes from
		// fan-out; the joiner then gets topic and names.
		c.sendTopic(channelName)
		c.sendNames(channelName)
		c.sendNumeric(RPL_ENDOFNAMES, fmt.Sprintf("%s :End of NAMES list", channelName))
	}
}

// handlePart handles a PART command
func (c *Client) handlePart(params []string) {
	if len(params) < 1 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "PART :Not enough parameters")
		return
	}

	channelNames := strings.Split(params[0], ",")
	reason := ""
	if len(params) > 1 {
		reason = params[1]
	}

	nick, user, host := c.identity()

	for _, channelName := range channelNames {
		res, err := c.server.processor.propose(state.Op{
			Kind:    state.OpPartChannel,
			Session: c.id,
			Nick:    nick,
			User:    user,
			Host:    host,
			Channel: channelName,
			Text:    reason,
		})
		if err != nil {
			c.sendTryAgain("PART")
			continue
		}
		if res.Rejected {
			n, text := numericForReason(res.Reason)
			c.sendNumeric(n, fmt.Sprintf("%s :%s", channelName, text))
		}
	}
}

// handleKick handles a KICK command
func (c *Client) handleKick(params []string) {
	if len(params) < 2 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "KICK :Not enough parameters")
		return
	}

	channelName := params[0]
	targetNick := params[1]
	reason := ""
	if len(params) > 2 {
		reason = params[2]
	}

	nick, user, host := c.identity()
	res, err := c.server.processor.propose(state.Op{
		Kind:    state.OpKickUser,
		Session: c.id,
		Nick:    nick,
		User:    user,
		Host:    host,
		Channel: channelName,
		Target:  targetNick,
		Text:    reason,
	})
	if err != nil {
		c.sendTryAgain("KICK")
		return
	}
	if res.Rejected {
		n, text := numericForReason(res.Reason)
		if res.Reason == state.ReasonUserNotInChannel {
			c.sendNumeric(n, fmt.Sprintf("%s %s :%s", targetNick, channelName, text))
		} else {
			c.sendNumeric(n, fmt.Sprintf("%s :%s", channelName, text))
		}
	}
}

// handleTopic handles a TOPIC command. Reading the topic is a local
// query; setting it goes through the log.
func (c *Client) handleTopic(params []string) {
	if len(params) < 1 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "TOPIC :Not enough parameters")
		return
	}

	channelName := params[0]

	if len(params) == 1 {
		if _, ok := c.server.store.Channel(channelName); !ok {
			c.sendNumeric(ERR_NOSUCHCHANNEL, fmt.Sprintf("%s :No such channel", channelName))
			return
		}
		c.sendTopic(channelName)
		return
	}

	nick, user, host := c.identity()
	res, err := c.server.processor.propose(state.Op{
		Kind:    state.OpSetTopic,
		Session: c.id,
		Nick:    nick,
		User:    user,
		Host:    host,
		Channel: channelName,
		Text:    params[1],
	})
	if err != nil {
		c.sendTryAgain("TOPIC")
		return
	}
	if res.Rejected {
		n, text := numericForReason(res.Reason)
		c.sendNumeric(n, fmt.Sprintf("%s :%s", channelName, text))
	}
}

// handleMode handles MODE for channels and for the client's own user
// modes. Queries are answered locally; changes are replicated.
func (c *Client) handleMode(params []string) {
	if len(params) < 1 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "MODE :Not enough parameters")
		return
	}

	target := params[0]
	if target[0] == '#' || target[0] == '&' {
		c.handleChannelMode(target, params[1:])
		return
	}
	c.handleUserMode(target, params[1:])
}

func (c *Client) handleChannelMode(channelName string, params []string) {
	ch, ok := c.server.store.Channel(channelName)
	if !ok {
		c.sendNumeric(ERR_NOSUCHCHANNEL, fmt.Sprintf("%s :No such channel", channelName))
		return
	}

	if len(params) == 0 {
		var args []string
		if strings.ContainsRune(ch.Modes, 'k') {
			args = append(args, ch.Key)
		}
		if strings.ContainsRune(ch.Modes, 'l') {
			args = append(args, fmt.Sprintf("%d", ch.Limit))
		}
		reply := fmt.Sprintf("%s +%s", ch.Name, ch.Modes)
		if len(args) > 0 {
			reply += " " + strings.Join(args, " ")
		}
		c.sendNumeric(RPL_CHANNELMODEIS, reply)
		return
	}

	// A bare "b" query lists the bans without changing anything.
	if (params[0] == "b" || params[0] == "+b") && len(params) == 1 {
		for _, ban := range c.server.store.ChannelBans(channelName) {
			c.sendNumeric(RPL_BANLIST, fmt.Sprintf("%s %s %s %d", ch.Name, ban.Mask, ban.SetBy, ban.SetAt))
		}
		c.sendNumeric(RPL_ENDOFBANLIST, fmt.Sprintf("%s :End of channel ban list", ch.Name))
		return
	}

	nick, user, host := c.identity()
	op := state.Op{
		Session: c.id,
		Nick:    nick,
		User:    user,
		Host:    host,
		Channel: channelName,
		Mode:    params[0],
		Args:    params[1:],
	}

	// A lone ban change is its own operation so the ban list ordering
	// is explicit in the log.
	if (params[0] == "+b" || params[0] == "-b") && len(params) == 2 {
		op.Kind = state.OpSetBan
		op.Target = params[1]
		op.Args = nil
	} else {
		op.Kind = state.OpSetMode
	}

	res, err := c.server.processor.propose(op)
	if err != nil {
		c.sendTryAgain("MODE")
		return
	}
	if res.Rejected {
		n, text := numericForReason(res.Reason)
		c.sendNumeric(n, fmt.Sprintf("%s :%s", channelName, text))
	}
}

func (c *Client) handleUserMode(target string, params []string) {
	self, ok := c.server.store.UserBySession(c.id)
	if !ok {
		return
	}
	if state.NickToLower(target) != state.NickToLower(self.Nick) {
		c.sendNumeric(ERR_USERSDONTMATCH, ":Cannot change mode for other users")
		return
	}

	if len(params) == 0 {
		c.sendNumeric(RPL_UMODEIS, "+"+self.Modes)
		return
	}

	nick, user, host := c.identity()
	res, err := c.server.processor.propose(state.Op{
		Kind:    state.OpSetMode,
		Session: c.id,
		Nick:    nick,
		User:    user,
		Host:    host,
		Target:  target,
		Mode:    params[0],
	})
	if err != nil {
		c.sendTryAgain("MODE")
		return
	}
	if res.Rejected {
		n, text := numericForReason(res.Reason)
		c.sendNumeric(n, ":"+text)
	}
}

// handleInvite handles an INVITE command
func (c *Client) handleInvite(params []string) {
	if len(params) < 2 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "INVITE :Not enough parameters")
		return
	}

	targetNick := params[0]
	channelName := params[1]

	nick, user, host := c.identity()
	res, err := c.server.processor.propose(state.Op{
		Kind:    state.OpInvite,
		Session: c.id,
		Nick:    nick,
		User:    user,
		Host:    host,
		Channel: channelName,
		Target:  targetNick,
	})
	if err != nil {
		c.sendTryAgain("INVITE")
		return
	}
	if res.Rejected {
		n, text := numericForReason(res.Reason)
		switch res.Reason {
		case state.ReasonUserOnChannel:
			c.sendNumeric(n, fmt.Sprintf("%s %s :%s", targetNick, channelName, text))
		case state.ReasonNoSuchNick:
			c.sendNumeric(n, fmt.Sprintf("%s :%s", targetNick, text))
		default:
			c.sendNumeric(n, fmt.Sprintf("%s :%s", channelName, text))
		}
		return
	}

	c.sendNumeric(RPL_INVITING, fmt.Sprintf("%s %s", res.NewNick, channelName))
}

// handleList handles a LIST command
func (c *Client) handleList(params []string) {
	var filter map[string]bool
	if len(params) > 0 && params[0] != "" {
		filter = make(map[string]bool)
		for _, name := range strings.Split(params[0], ",") {
			filter[string(state.ChanToLower(name))] = true
		}
	}

	c.sendNumeric(RPL_LISTSTART, "Channel :Users  Name")

	for _, ch := range c.server.store.Channels() {
		if filter != nil && !filter[string(state.ChanToLower(ch.Name))] {
			continue
		}
		// Secret channels stay hidden from non-members.
		if ch.Secret {
			if _, member := c.server.store.MemberFlagsFor(c.id, ch.Name); !member {
				continue
			}
		}
		c.sendNumeric(RPL_LIST, fmt.Sprintf("%s %d :%s", ch.Name, ch.Visible, ch.Topic))
	}

	c.sendNumeric(RPL_LISTEND, ":End of LIST")
}

// handleNames handles a NAMES command
func (c *Client) handleNames(params []string) {
	if len(params) < 1 {
		for _, ch := range c.server.store.Channels() {
			if ch.Secret {
				if _, member := c.server.store.MemberFlagsFor(c.id, ch.Name); !member {
					continue
				}
			}
			c.sendNames(ch.Name)
		}
		c.sendNumeric(RPL_ENDOFNAMES, "* :End of NAMES list")
		return
	}

	channelNames := strings.Split(params[0], ",")
	for _, channelName := range channelNames {
		c.sendNames(channelName)
		c.sendNumeric(RPL_ENDOFNAMES, fmt.Sprintf("%s :End of NAMES list", channelName))
	}
}

// sendTopic sends the channel topic reply to this client.
func (c *Client) sendTopic(channelName string) {
	ch, ok := c.server.store.Channel(channelName)
	if !ok {
		return
	}
	if ch.Topic == "" {
		c.sendNumeric(RPL_NOTOPIC, fmt.Sprintf("%s :No topic is set", ch.Name))
		return
	}
	c.sendNumeric(RPL_TOPIC, fmt.Sprintf("%s :%s", ch.Name, ch.Topic))
	c.sendNumeric(RPL_TOPICWHOTIME, fmt.Sprintf("%s %s %d", ch.Name, ch.TopicBy, ch.TopicAt))
}

// sendNames sends the NAMES list for a channel
func (c *Client) sendNames(channelName string) {
	ch, ok := c.server.store.Channel(channelName)
	if !ok {
		return
	}

	var namesList strings.Builder
	for _, m := range c.server.store.Members(channelName) {
		if namesList.Len() > 0 {
			namesList.WriteString(" ")
		}

		if c.capabilities.HasCapability("multi-prefix") {
			if m.Operator {
				namesList.WriteString("@")
			}
			if m.Voice {
				namesList.WriteString("+")
			}
		} else if m.Operator {
			namesList.WriteString("@")
		} else if m.Voice {
			namesList.WriteString("+")
		}

		if c.capabilities.HasCapability("userhost-in-names") {
			namesList.WriteString(FormatHostmask(m.Nick, m.Username, m.Host))
		} else {
			namesList.WriteString(m.Nick)
		}
	}

	symbol := "="
	if strings.ContainsRune(ch.Modes, 's') {
		symbol = "@"
	}
	c.sendNumeric(RPL_NAMREPLY, fmt.Sprintf("%s %s :%s", symbol, ch.Name, namesList.String()))
}
