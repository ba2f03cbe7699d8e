package irc

import (
	"errors"
	"fmt"
	"strings"
)

// MaxLineLength is the protocol line cap, CRLF included.
const MaxLineLength = 512

// ErrLineTooLong is returned for lines over MaxLineLength. The line is
// rejected whole rather than truncated.
var ErrLineTooLong = errors.New("irc: line exceeds 512 bytes")

// ErrEmptyMessage is returned for empty or whitespace-only lines;
// callers skip these silently.
var ErrEmptyMessage = errors.New("irc: empty message")

var errMalformed = errors.New("irc: malformed message")

// Message is one parsed IRC line.
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

// ParseMessage parses a raw IRC line (CRLF already stripped). The
// command is upper-cased; an unknown command is not a parse error. A
// trailing parameter introduced by " :" may contain spaces and colons.
func ParseMessage(line string) (*Message, error) {
	if len(line) > MaxLineLength {
		return nil, ErrLineTooLong
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyMessage
	}

	msg := &Message{Params: make([]string, 0, 4)}

	if line[0] == ':' {
		parts := strings.SplitN(line[1:], " ", 2)
		if len(parts) < 2 {
			return nil, errMalformed
		}
		msg.Prefix = parts[0]
		line = strings.TrimLeft(parts[1], " ")
		if line == "" {
			return nil, errMalformed
		}
	}

	parts := strings.SplitN(line, " ", 2)
	msg.Command = strings.ToUpper(parts[0])

	if len(parts) > 1 {
		rest := parts[1]
		for rest != "" {
			if rest[0] == ':' {
				msg.Params = append(msg.Params, rest[1:])
				break
			}
			next := strings.SplitN(rest, " ", 2)
			if next[0] != "" {
				msg.Params = append(msg.Params, next[0])
			}
			if len(next) < 2 {
				break
			}
			rest = next[1]
		}
	}

	return msg, nil
}

// String serializes the message. The last parameter gets the trailing
// colon when it contains a space, starts with a colon, or is empty, so
// that decode(encode(m)) round-trips.
func (m *Message) String() string {
	var sb strings.Builder

	if m.Prefix != "" {
		sb.WriteString(":")
		sb.WriteString(m.Prefix)
		sb.WriteString(" ")
	}
	sb.WriteString(m.Command)

	for i, param := range m.Params {
		sb.WriteString(" ")
		if i == len(m.Params)-1 && (param == "" || strings.Contains(param, " ") || strings.HasPrefix(param, ":")) {
			sb.WriteString(":")
		}
		sb.WriteString(param)
	}

	return sb.String()
}

// ParseHostmask splits nick!user@host; missing parts come back empty.
func ParseHostmask(hostmask string) (nick, user, host string) {
	nickParts := strings.SplitN(hostmask, "!", 2)
	if len(nickParts) < 2 {
		nick = hostmask
		return
	}
	nick = nickParts[0]

	userHostParts := strings.SplitN(nickParts[1], "@", 2)
	if len(userHostParts) < 2 {
		user = nickParts[1]
		return
	}
	user = userHostParts[0]
	host = userHostParts[1]
	return
}

// FormatHostmask formats a hostmask.
func FormatHostmask(nick, user, host string) string {
	return fmt.Sprintf("%s!%s@%s", nick, user, host)
}
