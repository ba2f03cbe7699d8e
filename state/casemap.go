package state

// lcNick and lcChan are casemapped lookup keys. All map access goes
// through NickToLower/ChanToLower so that "Nick", "nick" and "NICK"
// address the same user, per the rfc1459 casemapping rule where
// {}|^ are the lowercase equivalents of []\~.
type (
	lcNick string
	lcChan string
)

func rfc1459Lower(s string) string {
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		switch c := b[i]; {
		case c >= 'A' && c <= 'Z':
			b[i] = c + ('a' - 'A')
		case c == '[':
			b[i] = '{'
		case c == ']':
			b[i] = '}'
		case c == '\\':
			b[i] = '|'
		case c == '~':
			b[i] = '^'
		}
	}
	return string(b)
}

// NickToLower returns the casemapped form of a nickname.
func NickToLower(nick string) lcNick {
	return lcNick(rfc1459Lower(nick))
}

// ChanToLower returns the casemapped form of a channel name.
func ChanToLower(name string) lcChan {
	return lcChan(rfc1459Lower(name))
}
