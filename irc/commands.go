package irc

import (
	"fmt"
	"strings"
	"time"

	"github.com/presbrey/qircd/state"
)

// handlePrivmsg handles a PRIVMSG command. The message rides the
// replicated log like everything else, which is what gives two
// messages sent from different servers the same order on every
// server.
func (c *Client) handlePrivmsg(params []string) {
	if len(params) < 2 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "PRIVMSG :Not enough parameters")
		return
	}

	c.relayMessage(params[0], params[1], false)
}

// handleNotice handles a NOTICE command
func (c *Client) handleNotice(params []string) {
	if len(params) < 2 {
		return // Notices should not generate errors
	}

	c.relayMessage(params[0], params[1], true)
}

func (c *Client) relayMessage(target, text string, notice bool) {
	nick, user, host := c.identity()
	op := state.Op{
		Kind:    state.OpPrivmsg,
		Session: c.id,
		Nick:    nick,
		User:    user,
		Host:    host,
		Text:    text,
		Notice:  notice,
	}
	if target[0] == '#' || target[0] == '&' {
		op.Channel = target
	} else {
		op.Target = target
	}

	res, err := c.server.processor.propose(op)
	if err != nil {
		if !notice {
			c.sendTryAgain("PRIVMSG")
		}
		return
	}
	if res.Rejected {
		if notice {
			return // Notices should not generate errors
		}
		n, text := numericForReason(res.Reason)
		c.sendNumeric(n, fmt.Sprintf("%s :%s", target, text))
		return
	}

	// Away users answer private messages automatically.
	if op.Target != "" && !notice {
		if u, ok := c.server.store.UserByNick(op.Target); ok && u.Away {
			c.sendNumeric(RPL_AWAY, fmt.Sprintf("%s :%s", u.Nick, u.AwayMessage))
		}
	}
}

// handleAway handles an AWAY command
func (c *Client) handleAway(params []string) {
	nick, user, host := c.identity()
	op := state.Op{
		Kind:    state.OpSetAway,
		Session: c.id,
		Nick:    nick,
		User:    user,
		Host:    host,
	}
	if len(params) > 0 && params[0] != "" {
		op.Away = true
		op.Text = params[0]
	}

	if _, err := c.server.processor.propose(op); err != nil {
		c.sendTryAgain("AWAY")
		return
	}

	if op.Away {
		c.sendNumeric(RPL_NOWAWAY, ":You have been marked as being away")
	} else {
		c.sendNumeric(RPL_UNAWAY, ":You are no longer marked as being away")
	}
}

// handleWho handles a WHO command
func (c *Client) handleWho(params []string) {
	mask := "*"
	if len(params) > 0 {
		mask = params[0]
	}

	if mask[0] == '#' || mask[0] == '&' {
		for _, m := range c.server.store.Members(mask) {
			flags := "H"
			if m.Away {
				flags = "G"
			}
			if m.Operator {
				flags += "@"
			} else if m.Voice {
				flags += "+"
			}
			u, ok := c.server.store.UserByNick(m.Nick)
			if !ok {
				continue
			}
			c.sendNumeric(RPL_WHOREPLY, fmt.Sprintf("%s %s %s %s %s %s :0 %s",
				mask, m.Username, m.Host, u.Server, m.Nick, flags, u.Realname))
		}
		c.sendNumeric(RPL_ENDOFWHO, fmt.Sprintf("%s :End of WHO list", mask))
		return
	}

	if u, ok := c.server.store.UserByNick(mask); ok {
		flags := "H"
		if u.Away {
			flags = "G"
		}
		if strings.ContainsRune(u.Modes, 'o') {
			flags += "*"
		}
		channel := "*"
		if len(u.Channels) > 0 {
			channel = u.Channels[0]
		}
		c.sendNumeric(RPL_WHOREPLY, fmt.Sprintf("%s %s %s %s %s %s :0 %s",
			channel, u.Username, u.Host, u.Server, u.Nick, flags, u.Realname))
	}

	c.sendNumeric(RPL_ENDOFWHO, fmt.Sprintf("%s :End of WHO list", mask))
}

// handleWhois handles a WHOIS command
func (c *Client) handleWhois(params []string) {
	if len(params) < 1 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "WHOIS :Not enough parameters")
		return
	}

	target := params[0]

	u, ok := c.server.store.UserByNick(target)
	if !ok {
		c.sendNumeric(ERR_NOSUCHNICK, fmt.Sprintf("%s :No such nick/channel", target))
		c.sendNumeric(RPL_ENDOFWHOIS, fmt.Sprintf("%s :End of WHOIS list", target))
		return
	}

	c.sendNumeric(RPL_WHOISUSER, fmt.Sprintf("%s %s %s * :%s", u.Nick, u.Username, u.Host, u.Realname))

	if len(u.Channels) > 0 {
		var channels strings.Builder
		for _, name := range u.Channels {
			if channels.Len() > 0 {
				channels.WriteString(" ")
			}
			if flags, ok := c.server.store.MemberFlagsFor(u.Session, name); ok {
				if flags.Operator {
					channels.WriteString("@")
				} else if flags.Voice {
					channels.WriteString("+")
				}
			}
			channels.WriteString(name)
		}
		c.sendNumeric(RPL_WHOISCHANNELS, fmt.Sprintf("%s :%s", u.Nick, channels.String()))
	}

	c.sendNumeric(RPL_WHOISSERVER, fmt.Sprintf("%s %s :%s", u.Nick, u.Server, c.server.config.Server.Description))

	if strings.ContainsRune(u.Modes, 'o') {
		c.sendNumeric(RPL_WHOISOPERATOR, fmt.Sprintf("%s :is an IRC operator", u.Nick))
	}

	if u.Away {
		c.sendNumeric(RPL_AWAY, fmt.Sprintf("%s :%s", u.Nick, u.AwayMessage))
	}

	c.sendNumeric(RPL_WHOISIDLE, fmt.Sprintf("%s 0 %d :seconds idle, signon time", u.Nick, u.RegisteredAt))
	c.sendNumeric(RPL_ENDOFWHOIS, fmt.Sprintf("%s :End of WHOIS list", u.Nick))
}

// handleIson handles an ISON command
func (c *Client) handleIson(params []string) {
	if len(params) < 1 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "ISON :Not enough parameters")
		return
	}

	var online []string
	for _, nick := range params {
		for _, n := range strings.Fields(nick) {
			if u, ok := c.server.store.UserByNick(n); ok {
				online = append(online, u.Nick)
			}
		}
	}

	c.sendNumeric(RPL_ISON, ":"+strings.Join(online, " "))
}

// handleUserhost handles a USERHOST command
func (c *Client) handleUserhost(params []string) {
	if len(params) < 1 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "USERHOST :Not enough parameters")
		return
	}

	var replies []string
	for _, nick := range params {
		for _, n := range strings.Fields(nick) {
			u, ok := c.server.store.UserByNick(n)
			if !ok {
				continue
			}
			marker := "+"
			if u.Away {
				marker = "-"
			}
			oper := ""
			if strings.ContainsRune(u.Modes, 'o') {
				oper = "*"
			}
			replies = append(replies, fmt.Sprintf("%s%s=%s%s@%s", u.Nick, oper, marker, u.Username, u.Host))
		}
	}

	c.sendNumeric(RPL_USERHOST, ":"+strings.Join(replies, " "))
}

// handleVersion handles a VERSION command
func (c *Client) handleVersion(_ []string) {
	c.sendNumeric(RPL_VERSION, fmt.Sprintf("qircd-1.0 %s :%s",
		c.server.config.Server.Name, c.server.config.Server.Description))
}

// handleTime handles a TIME command
func (c *Client) handleTime(_ []string) {
	c.sendNumeric(RPL_TIME, fmt.Sprintf("%s :%s",
		c.server.config.Server.Name, time.Now().Format(time.RFC1123)))
}

// handleInfo handles an INFO command
func (c *Client) handleInfo(_ []string) {
	c.sendNumeric(RPL_INFO, ":qircd, a quorum-replicated IRC daemon")
	c.sendNumeric(RPL_INFO, fmt.Sprintf(":Up since %s",
		c.server.stats.StartTime.Format(time.RFC1123)))
	c.sendNumeric(RPL_ENDOFINFO, ":End of INFO list")
}

// handleMotd handles a MOTD command
func (c *Client) handleMotd(_ []string) {
	c.sendMotd()
}

func (c *Client) sendMotd() {
	cfg := c.server.config
	if len(cfg.Server.MOTD) == 0 {
		c.sendNumeric(ERR_NOMOTD, ":MOTD File is missing")
		return
	}

	c.sendNumeric(RPL_MOTDSTART, fmt.Sprintf(":- %s Message of the Day -", cfg.Server.Name))
	for _, line := range cfg.Server.MOTD {
		c.sendNumeric(RPL_MOTD, ":- "+line)
	}
	c.sendNumeric(RPL_ENDOFMOTD, ":End of MOTD command")
}

// handleLusers handles a LUSERS command
func (c *Client) handleLusers(_ []string) {
	c.sendLusers()
}

func (c *Client) sendLusers() {
	counts := c.server.store.Counts()

	c.sendNumeric(RPL_LUSERCLIENT, fmt.Sprintf(":There are %d users and %d invisible on %d servers",
		counts.Users-counts.Invisible, counts.Invisible, counts.Servers))
	if counts.Operators > 0 {
		c.sendNumeric(RPL_LUSEROP, fmt.Sprintf("%d :operator(s) online", counts.Operators))
	}
	if counts.Channels > 0 {
		c.sendNumeric(RPL_LUSERCHANNELS, fmt.Sprintf("%d :channels formed", counts.Channels))
	}

	c.server.mu.RLock()
	local := len(c.server.sessions)
	c.server.mu.RUnlock()
	c.sendNumeric(RPL_LUSERME, fmt.Sprintf(":I have %d clients and %d servers", local, counts.Servers))
}

// handleLinks handles a LINKS command, answered from the replicated
// server topology.
func (c *Client) handleLinks(_ []string) {
	for _, sn := range c.server.store.Servers() {
		c.sendNumeric(RPL_LINKS, fmt.Sprintf("%s %s :0 %s", sn.ID, sn.Addr, sn.LinkState))
	}
	c.sendNumeric(RPL_ENDOFLINKS, "* :End of LINKS list")
}
