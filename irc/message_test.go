package irc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		prefix  string
		command string
		params  []string
	}{
		{
			name:    "bare command",
			line:    "LIST",
			command: "LIST",
			params:  []string{},
		},
		{
			name:    "command with params",
			line:    "MODE #test +v Cardinal",
			command: "MODE",
			params:  []string{"#test", "+v", "Cardinal"},
		},
		{
			name:    "lowercase command is normalized",
			line:    "privmsg #test :hi",
			command: "PRIVMSG",
			params:  []string{"#test", "hi"},
		},
		{
			name:    "trailing keeps spaces and colons",
			line:    "PRIVMSG #test :Hello there: how are you?",
			command: "PRIVMSG",
			params:  []string{"#test", "Hello there: how are you?"},
		},
		{
			name:    "trailing only",
			line:    "PONG :irc.example.org",
			command: "PONG",
			params:  []string{"irc.example.org"},
		},
		{
			name:    "prefixed message",
			line:    ":nick!user@host PRIVMSG #chan :hello",
			prefix:  "nick!user@host",
			command: "PRIVMSG",
			params:  []string{"#chan", "hello"},
		},
		{
			name:    "server prefix numeric",
			line:    ":irc.example.org 001 nick :Welcome",
			prefix:  "irc.example.org",
			command: "001",
			params:  []string{"nick", "Welcome"},
		},
		{
			name:    "empty trailing",
			line:    "TOPIC #chan :",
			command: "TOPIC",
			params:  []string{"#chan", ""},
		},
		{
			name:    "extra spaces between params",
			line:    "JOIN   #a  #b",
			command: "JOIN",
			params:  []string{"#a", "#b"},
		},
		{
			name:    "crlf is stripped",
			line:    "PING :token\r\n",
			command: "PING",
			params:  []string{"token"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, msg.Prefix)
			assert.Equal(t, tt.command, msg.Command)
			assert.Equal(t, tt.params, msg.Params)
		})
	}
}

func TestParseMessageErrors(t *testing.T) {
	_, err := ParseMessage("")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = ParseMessage("   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = ParseMessage("PRIVMSG #test :" + strings.Repeat("x", MaxLineLength))
	assert.ErrorIs(t, err, ErrLineTooLong)

	_, err = ParseMessage(":prefixonly")
	assert.Error(t, err)

	_, err = ParseMessage(":prefix ")
	assert.Error(t, err)
}

func TestMessageString(t *testing.T) {
	lines := []string{
		"LIST",
		"MODE #test +v Cardinal",
		"PRIVMSG #test :Hello there: how are you?",
		":nick!user@host KICK #chan victim :no reason given",
		"TOPIC #chan :",
	}

	for _, line := range lines {
		msg, err := ParseMessage(line)
		require.NoError(t, err, line)

		out, err := ParseMessage(msg.String())
		require.NoError(t, err, line)
		assert.Equal(t, msg, out, line)
	}
}

func TestHostmasks(t *testing.T) {
	nick, user, host := ParseHostmask("dan!d@localhost")
	assert.Equal(t, "dan", nick)
	assert.Equal(t, "d", user)
	assert.Equal(t, "localhost", host)

	nick, user, host = ParseHostmask("dan")
	assert.Equal(t, "dan", nick)
	assert.Empty(t, user)
	assert.Empty(t, host)

	nick, user, host = ParseHostmask("dan!d")
	assert.Equal(t, "dan", nick)
	assert.Equal(t, "d", user)
	assert.Empty(t, host)

	assert.Equal(t, "dan!d@localhost", FormatHostmask("dan", "d", "localhost"))
}
