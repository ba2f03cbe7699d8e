package irc

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/presbrey/qircd/state"
)

// Client represents one local connection. A client owns a session id
// for its lifetime; the session is what the replicated state tracks,
// so a nick change never touches the session and a session never moves
// between servers.
type Client struct {
	sync.RWMutex
	id         string // session id, unique across the network
	conn       net.Conn
	server     *Server
	nickname   string
	username   string
	realname   string
	hostname   string
	password   string // Connection password from PASS command
	registered bool
	closing    bool
	retired    bool
	secure     bool // connected via the TLS listener
	lastPong   time.Time
	writer     *bufio.Writer
	writeLock  sync.Mutex

	capabilities *ClientCapabilities // Tracks client capability negotiation and enabled capabilities
}

func newClient(s *Server, conn net.Conn, host string, secure bool) *Client {
	c := &Client{
		id:           uuid.NewString(),
		conn:         conn,
		server:       s,
		hostname:     host,
		secure:       secure,
		lastPong:     time.Now(),
		writer:       bufio.NewWriter(conn),
		capabilities: NewClientCapabilities(),
	}
	s.addSession(c)
	return c
}

// handleConnection handles a client connection
func (c *Client) handleConnection() {
	defer func() {
		c.quit("Connection closed")
	}()

	log.Printf("[%s] *** New client connected", c.hostname)

	// Use textproto for reliable line-oriented protocol handling
	textReader := textproto.NewReader(bufio.NewReader(c.conn))

	// Set a read deadline for client registration
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	for {
		line, err := textReader.ReadLine()
		if err != nil {
			if err != io.EOF {
				log.Printf("[%s] Error reading from client: %v", c.hostname, err)
			} else {
				log.Printf("[%s] Client disconnected", c.hostname)
			}
			break
		}

		msg, err := ParseMessage(line)
		switch err {
		case nil:
		case ErrLineTooLong:
			c.sendNumeric(ERR_INPUTTOOLONG, ":Input line was too long")
			continue
		default:
			continue
		}

		c.handleCommand(msg)

		c.RLock()
		done := c.closing
		c.RUnlock()
		if done {
			break
		}
	}
}

// handleCommand dispatches one parsed IRC command
func (c *Client) handleCommand(msg *Message) {
	if c.server.config.Debug {
		log.Printf("[%s] <= %#v", c.hostname, msg.String())
	}

	command := msg.Command
	params := msg.Params

	// Before registration only the registration handshake is allowed.
	if !c.isRegistered() {
		switch command {
		case "PASS", "NICK", "USER", "CAP", "PING", "PONG", "QUIT":
		default:
			c.sendNumeric(ERR_NOTREGISTERED, ":You have not registered")
			return
		}
	}

	switch command {
	case "PASS":
		c.handlePass(params)
	case "PING":
		c.handlePing(params)
	case "PONG":
		c.handlePong(params)
	case "NICK":
		c.handleNick(params)
	case "USER":
		c.handleUser(params)
	case "CAP":
		c.handleCAP(params)
	case "JOIN":
		c.handleJoin(params)
	case "PART":
		c.handlePart(params)
	case "PRIVMSG":
		c.handlePrivmsg(params)
	case "NOTICE":
		c.handleNotice(params)
	case "QUIT":
		var reason string
		if len(params) > 0 {
			reason = params[0]
		} else {
			reason = "Client quit"
		}
		c.quit(reason)
	case "MODE":
		c.handleMode(params)
	case "TOPIC":
		c.handleTopic(params)
	case "LIST":
		c.handleList(params)
	case "NAMES":
		c.handleNames(params)
	case "WHO":
		c.handleWho(params)
	case "WHOIS":
		c.handleWhois(params)
	case "ISON":
		c.handleIson(params)
	case "USERHOST":
		c.handleUserhost(params)
	case "OPER":
		c.handleOper(params)
	case "AWAY":
		c.handleAway(params)
	case "INVITE":
		c.handleInvite(params)
	case "KICK":
		c.handleKick(params)
	case "KILL":
		c.handleKill(params)
	case "WALLOPS":
		c.handleWallops(params)
	case "REHASH":
		c.handleRehash(params)
	case "VERSION":
		c.handleVersion(params)
	case "INFO":
		c.handleInfo(params)
	case "TIME":
		c.handleTime(params)
	case "MOTD":
		c.handleMotd(params)
	case "LUSERS":
		c.handleLusers(params)
	case "LINKS":
		c.handleLinks(params)
	default:
		c.sendNumeric(ERR_UNKNOWNCOMMAND, fmt.Sprintf("%s :Unknown command", command))
	}

	// Update statistics
	c.server.stats.Lock()
	c.server.stats.MessagesReceived++
	c.server.stats.Unlock()
}

const (
	pingInterval = 90 * time.Second
	pingTimeout  = 2 * pingInterval
)

// pingLoop runs for a registered connection: periodic PINGs, and a
// disconnect when the client stops answering them.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.RLock()
		done := c.closing
		c.RUnlock()
		if done {
			return
		}
		if c.pingExpired(pingTimeout) {
			c.quit("Ping timeout")
			return
		}
		c.sendRaw("PING :" + c.server.config.Server.Name)
	}
}

// pingExpired reports whether the client has gone too long without a
// PONG.
func (c *Client) pingExpired(timeout time.Duration) bool {
	c.RLock()
	defer c.RUnlock()
	return time.Since(c.lastPong) > timeout
}

// handlePing handles a PING command
func (c *Client) handlePing(params []string) {
	if len(params) < 1 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "PING :Not enough parameters")
		return
	}

	c.sendMessage("PONG", c.server.config.Server.Name, params[0])
}

// handlePong handles a PONG command
func (c *Client) handlePong(_ []string) {
	c.Lock()
	c.lastPong = time.Now()
	c.Unlock()
}

// handlePass handles a PASS command
func (c *Client) handlePass(params []string) {
	if c.isRegistered() {
		c.sendNumeric(ERR_ALREADYREGISTRED, ":You may not reregister")
		return
	}

	if len(params) < 1 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "PASS :Not enough parameters")
		return
	}

	c.Lock()
	c.password = params[0]
	c.Unlock()
}

// handleNick handles a NICK command. Before registration the nick is
// only remembered locally; nothing is reserved until the RegisterUser
// operation commits. After registration the change goes through the
// log, and the log's ordering decides collisions between servers.
func (c *Client) handleNick(params []string) {
	if len(params) < 1 {
		c.sendNumeric(ERR_NONICKNAMEGIVEN, ":No nickname given")
		return
	}

	newNick := params[0]

	if !isValidNickname(newNick) {
		c.sendNumeric(ERR_ERRONEUSNICKNAME, fmt.Sprintf("%s :Erroneous nickname", newNick))
		return
	}

	if !c.isRegistered() {
		c.Lock()
		c.nickname = newNick
		haveUser := c.username != ""
		c.Unlock()

		if haveUser {
			c.tryCompleteRegistration()
		}
		return
	}

	nick, user, host := c.identity()
	res, err := c.server.processor.propose(state.Op{
		Kind:    state.OpNickChange,
		Session: c.id,
		Nick:    nick,
		User:    user,
		Host:    host,
		NewNick: newNick,
	})
	if err != nil {
		c.sendTryAgain("NICK")
		return
	}
	if res.Rejected {
		n, text := numericForReason(res.Reason)
		c.sendNumeric(n, fmt.Sprintf("%s :%s", newNick, text))
		return
	}
	if res.NoOp {
		return
	}

	// Fan-out delivers the NICK line to everyone sharing a channel,
	// this client included, and updates the cached nickname.
}

// setNickname updates the locally cached nick after a committed change.
func (c *Client) setNickname(nick string) {
	c.Lock()
	c.nickname = nick
	c.Unlock()
}

// handleUser handles a USER command
func (c *Client) handleUser(params []string) {
	if c.isRegistered() {
		c.sendNumeric(ERR_ALREADYREGISTRED, ":You may not reregister")
		return
	}

	if len(params) < 4 {
		c.sendNumeric(ERR_NEEDMOREPARAMS, "USER :Not enough parameters")
		return
	}

	c.Lock()
	c.username = params[0]
	c.realname = params[3]
	haveNick := c.nickname != ""
	c.Unlock()

	if haveNick {
		c.tryCompleteRegistration()
	}
}

// tryCompleteRegistration attempts to complete the registration process
// This is called after NICK/USER commands and after CAP END
func (c *Client) tryCompleteRegistration() {
	if c.isRegistered() {
		return
	}

	c.completeRegistration()
}

// completeRegistration proposes the RegisterUser operation and, once it
// commits, sends the welcome burst. The client does not exist on the
// network until the commit: two clients racing for one nick on
// different servers are ordered by the log, and exactly one of them
// gets the 001.
func (c *Client) completeRegistration() {
	c.RLock()
	nick, user, real, host := c.nickname, c.username, c.realname, c.hostname
	pass := c.password
	c.RUnlock()

	if nick == "" || user == "" {
		return
	}

	if required := c.server.config.Server.Password; required != "" {
		if pass != required {
			c.sendNumeric(ERR_PASSWDMISMATCH, ":Password incorrect")
			return
		}
	}

	// If client is in CAP negotiation, wait for CAP END
	if c.capabilities.Negotiating {
		return
	}

	res, err := c.server.processor.propose(state.Op{
		Kind:    state.OpRegisterUser,
		Session: c.id,
		Nick:    nick,
		User:    user,
		Real:    real,
		Host:    host,
	})
	if err != nil {
		c.sendTryAgain("NICK")
		return
	}
	if res.Rejected {
		n, text := numericForReason(res.Reason)
		c.sendNumeric(n, fmt.Sprintf("%s :%s", nick, text))
		return
	}

	c.Lock()
	c.nickname = res.NewNick
	c.registered = true
	gone := c.closing
	c.Unlock()

	if gone {
		// The connection dropped while the registration was in flight.
		// The user exists in the replicated state now; retire it.
		nick, user, host := c.identity()
		go c.server.processor.propose(state.Op{
			Kind:    state.OpRetireUser,
			Session: c.id,
			Nick:    nick,
			User:    user,
			Host:    host,
			Text:    "Connection closed",
		})
		return
	}

	// Clear the registration deadline
	c.conn.SetReadDeadline(time.Time{})

	log.Printf("[%s] Client registered: %s!%s@%s", c.hostname, res.NewNick, user, host)
	c.sendWelcome()
	go c.pingLoop()
}

// sendWelcome sends the 001-004 burst, LUSERS summary, and MOTD.
func (c *Client) sendWelcome() {
	cfg := c.server.config
	nick, user, host := c.identity()

	c.sendNumeric(RPL_WELCOME, fmt.Sprintf(":Welcome to the %s IRC Network %s!%s@%s",
		cfg.Server.Network, nick, user, host))
	c.sendNumeric(RPL_YOURHOST, fmt.Sprintf(":Your host is %s, running version qircd-1.0",
		cfg.Server.Name))
	c.sendNumeric(RPL_CREATED, fmt.Sprintf(":This server was created %s",
		c.server.stats.StartTime.Format(time.RFC1123)))
	c.sendNumeric(RPL_MYINFO, fmt.Sprintf("%s qircd-1.0 aiow obiklmnpstv", cfg.Server.Name))

	c.sendLusers()
	c.sendMotd()
}

// quit handles client disconnection. Safe to call more than once; only
// the first call wins.
func (c *Client) quit(reason string) {
	c.Lock()
	if c.closing {
		c.Unlock()
		return
	}
	c.closing = true
	wasRegistered := c.registered
	alreadyRetired := c.retired
	nick, user, host := c.nickname, c.username, c.hostname
	c.Unlock()

	c.server.removeSession(c)

	if wasRegistered && !alreadyRetired {
		// The QUIT must still reach the network even though this
		// connection is gone, so the proposal runs on its own.
		go func() {
			_, err := c.server.processor.propose(state.Op{
				Kind:    state.OpRetireUser,
				Session: c.id,
				Nick:    nick,
				User:    user,
				Host:    host,
				Text:    reason,
			})
			if err != nil {
				log.Printf("[%s] Failed to retire session for %s: %v", c.hostname, nick, err)
			}
		}()
	}

	c.conn.Close()
}

// retire force-closes the connection after the session's RetireUser
// committed elsewhere, which is how KILL reaches its target.
func (c *Client) retire(reason string) {
	c.Lock()
	if c.retired {
		c.Unlock()
		return
	}
	c.retired = true
	c.closing = true
	c.Unlock()

	c.sendRaw(fmt.Sprintf("ERROR :Closing Link: %s (%s)", c.hostname, reason))
	c.server.removeSession(c)
	c.conn.Close()
}

func (c *Client) isRegistered() bool {
	c.RLock()
	defer c.RUnlock()
	return c.registered
}

// identity returns the cached nick/user/host triple for op prefixes.
func (c *Client) identity() (nick, user, host string) {
	c.RLock()
	defer c.RUnlock()
	return c.nickname, c.username, c.hostname
}

// isOperator reports whether this session holds the network operator
// mode in the replicated state.
func (c *Client) isOperator() bool {
	u, ok := c.server.store.UserBySession(c.id)
	return ok && strings.ContainsRune(u.Modes, 'o')
}

// sendTryAgain tells the client to retry a command that could not be
// committed, usually because the cluster is electing a leader or this
// server is partitioned from the majority.
func (c *Client) sendTryAgain(command string) {
	c.sendNumeric(RPL_TRYAGAIN, fmt.Sprintf("%s :Please wait a while and try again", command))
}

// sendRaw sends a raw message to the client
func (c *Client) sendRaw(message string) {
	if c.server.config.Debug {
		log.Printf("[%s] => %s", c.hostname, message)
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	_, err := c.writer.WriteString(message + "\r\n")
	if err == nil {
		c.writer.Flush()
	}

	c.server.stats.Lock()
	c.server.stats.MessagesSent++
	c.server.stats.Unlock()
}

// sendMessage sends an IRC message to the client
func (c *Client) sendMessage(command string, params ...string) {
	var sb strings.Builder

	sb.WriteString(":")
	sb.WriteString(c.server.config.Server.Name)
	sb.WriteString(" ")
	sb.WriteString(command)

	for i, param := range params {
		sb.WriteString(" ")

		// Last parameter gets a colon if it contains spaces
		if i == len(params)-1 && (strings.Contains(param, " ") || param == "") {
			sb.WriteString(":")
		}

		sb.WriteString(param)
	}

	c.sendRaw(sb.String())
}

// sendNumeric sends a numeric reply to the client
func (c *Client) sendNumeric(numeric int, message string) {
	var sb strings.Builder

	sb.WriteString(":")
	sb.WriteString(c.server.config.Server.Name)
	sb.WriteString(" ")
	sb.WriteString(fmt.Sprintf("%03d", numeric))
	sb.WriteString(" ")

	c.RLock()
	nick := c.nickname
	c.RUnlock()
	if nick != "" {
		sb.WriteString(nick)
		sb.WriteString(" ")
	} else {
		sb.WriteString("* ")
	}

	sb.WriteString(message)

	c.sendRaw(sb.String())
}

// Helper functions

// isValidNickname checks if a nickname is valid
func isValidNickname(nick string) bool {
	if len(nick) < 1 || len(nick) > 30 {
		return false
	}

	for i, ch := range nick {
		// First character can't be a number
		if i == 0 && ch >= '0' && ch <= '9' {
			return false
		}

		// Valid characters: A-Z, a-z, 0-9, and special chars like -_[]{}|\
		if !((ch >= 'A' && ch <= 'Z') ||
			(ch >= 'a' && ch <= 'z') ||
			(ch >= '0' && ch <= '9') ||
			strings.ContainsRune("-_[]{}|\\`^", ch)) {
			return false
		}
	}

	return true
}

// isValidChannelName checks if a channel name is valid
func isValidChannelName(name string) bool {
	if len(name) < 2 || len(name) > 50 {
		return false
	}

	// Must start with # or &
	if name[0] != '#' && name[0] != '&' {
		return false
	}

	// Can't contain spaces, ASCII 7 (bell), commas, colons, or NULL bytes
	if strings.ContainsAny(name, " ,:\x00\x07") {
		return false
	}

	return true
}
