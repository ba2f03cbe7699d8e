package irc

import (
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/presbrey/qircd/state"
)

// handleOper handles an OPER command. Credentials are checked locally
// against the configured bcrypt hashes; the grant itself is a
// replicated mode change so every server sees the operator bit.
func (c *Client) handleOper(params []string) {
	if len(params) < 2 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "OPER :Not enough parameters")
		return
	}

	username := params[0]
	password := params[1]
	nick, user, host := c.identity()

	var matched bool
	for _, oper := range c.server.config.Operators {
		if oper.Username != username {
			continue
		}
		if oper.Mask != "" && !state.MatchMask(oper.Mask, FormatHostmask(nick, user, host)) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(oper.Password), []byte(password)) == nil {
			matched = true
		}
		break
	}

	if !matched {
		log.Printf("[%s] Failed OPER attempt for %s by %s", c.hostname, username, nick)
		c.sendNumeric(ERR_PASSWDMISMATCH, ":Password incorrect")
		return
	}

	res, err := c.server.processor.propose(state.Op{
		Kind:    state.OpSetMode,
		Session: c.id,
		Nick:    nick,
		User:    user,
		Host:    host,
		Target:  nick,
		Mode:    "+o",
		Granted: true,
	})
	if err != nil {
		c.sendTryAgain("OPER")
		return
	}
	if res.Rejected {
		n, text := numericForReason(res.Reason)
		c.sendNumeric(n, ":"+text)
		return
	}

	log.Printf("User %s authenticated as operator %s", nick, username)
	c.sendNumeric(RPL_YOUREOPER, ":You are now an IRC operator")
}

// handleKill handles a KILL command (operator only). The kill is a
// RetireUser in the log; the server hosting the target's connection
// closes it when the entry applies there.
func (c *Client) handleKill(params []string) {
	if !c.isOperator() {
		c.sendNumeric(ERR_NOPRIVILEGES, ":Permission Denied - You're not an IRC operator")
		return
	}

	if len(params) < 1 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "KILL :Not enough parameters")
		return
	}

	targetNick := params[0]
	reason := "No reason"
	if len(params) > 1 {
		reason = params[1]
	}

	target, ok := c.server.store.UserByNick(targetNick)
	if !ok {
		c.sendNumeric(ERR_NOSUCHNICK, fmt.Sprintf("%s :No such nick/channel", targetNick))
		return
	}

	nick, _, _ := c.identity()
	res, err := c.server.processor.propose(state.Op{
		Kind:    state.OpRetireUser,
		Session: target.Session,
		Nick:    target.Nick,
		User:    target.Username,
		Host:    target.Host,
		Text:    fmt.Sprintf("Killed by %s: %s", nick, reason),
	})
	if err != nil {
		c.sendTryAgain("KILL")
		return
	}
	if res.Rejected || res.NoOp {
		c.sendNumeric(ERR_NOSUCHNICK, fmt.Sprintf("%s :No such nick/channel", targetNick))
		return
	}

	c.server.notifyOperators(fmt.Sprintf("Client %s disconnected by operator %s: %s",
		target.Nick, nick, reason))
}

// handleWallops handles a WALLOPS command (operator only), delivered to
// every local operator session.
func (c *Client) handleWallops(params []string) {
	if !c.isOperator() {
		c.sendNumeric(ERR_NOPRIVILEGES, ":Permission Denied - You're not an IRC operator")
		return
	}

	if len(params) < 1 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "WALLOPS :Not enough parameters")
		return
	}

	nick, user, host := c.identity()
	line := fmt.Sprintf(":%s WALLOPS :%s", FormatHostmask(nick, user, host), params[0])
	for _, other := range c.server.localSessions() {
		u, ok := c.server.store.UserBySession(other.id)
		if !ok || !strings.ContainsRune(u.Modes, 'o') {
			continue
		}
		other.sendRaw(line)
	}
}

// handleRehash handles a REHASH command (operator only)
func (c *Client) handleRehash(_ []string) {
	if !c.isOperator() {
		c.sendNumeric(ERR_NOPRIVILEGES, ":Permission Denied - You're not an IRC operator")
		return
	}

	if err := c.server.config.Reload(""); err != nil {
		log.Printf("Rehash failed: %v", err)
		c.sendNumeric(RPL_REHASHING, fmt.Sprintf("%s :Rehash failed: %v", c.server.config.Source, err))
		return
	}

	log.Printf("Configuration rehashed from %s", c.server.config.Source)
	c.sendNumeric(RPL_REHASHING, fmt.Sprintf("%s :Rehashing", c.server.config.Source))
}
