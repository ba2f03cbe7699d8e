package state

import "strings"

// normalizeMask expands a bare nick or partial mask into full
// nick!user@host form, so "troll" becomes "troll!*@*".
func normalizeMask(mask string) string {
	if mask == "" {
		return "*!*@*"
	}
	if !strings.Contains(mask, "!") {
		if strings.Contains(mask, "@") {
			mask = "*!" + mask
		} else {
			mask = mask + "!*@*"
		}
	}
	if !strings.Contains(mask, "@") {
		mask = mask + "@*"
	}
	return mask
}

// MatchMask matches s against an IRC wildcard pattern where '*'
// matches any run and '?' any single character. Matching is
// case-insensitive under the rfc1459 casemapping.
func MatchMask(pattern, s string) bool {
	return wildcardMatch(rfc1459Lower(pattern), rfc1459Lower(s))
}

func wildcardMatch(pattern, s string) bool {
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// masksMatchUser reports whether any ban entry matches the user's
// nick!user@host. Callers hold mu.
func (n *Network) masksMatchUser(bans []Ban, u *User) bool {
	hostmask := u.Nick + "!" + u.Username + "@" + u.Host
	for _, b := range bans {
		if MatchMask(b.Mask, hostmask) {
			return true
		}
	}
	return false
}
