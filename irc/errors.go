package irc

import (
	"errors"

	"github.com/presbrey/qircd/state"
)

// ErrProposalTimeout is returned when an operation could not be
// committed before the configured proposal deadline, typically because
// the cluster has no leader or this server is cut off from the
// majority. The client is told to try again; nothing was changed.
var ErrProposalTimeout = errors.New("irc: proposal timed out waiting for commit")

// reasonNumerics maps a rejection reason from the state store to the
// numeric reply the client expects.
var reasonNumerics = map[string]int{
	state.ReasonNickInUse:        ERR_NICKNAMEINUSE,
	state.ReasonNoSuchNick:       ERR_NOSUCHNICK,
	state.ReasonNoSuchChannel:    ERR_NOSUCHCHANNEL,
	state.ReasonNotOnChannel:     ERR_NOTONCHANNEL,
	state.ReasonUserNotInChannel: ERR_USERNOTINCHANNEL,
	state.ReasonChanOpNeeded:     ERR_CHANOPRIVSNEEDED,
	state.ReasonInviteOnly:       ERR_INVITEONLYCHAN,
	state.ReasonBadKey:           ERR_BADCHANNELKEY,
	state.ReasonChannelFull:      ERR_CHANNELISFULL,
	state.ReasonBanned:           ERR_BANNEDFROMCHAN,
	state.ReasonCannotSend:       ERR_CANNOTSENDTOCHAN,
	state.ReasonUserOnChannel:    ERR_USERONCHANNEL,
	state.ReasonUsersDontMatch:   ERR_USERSDONTMATCH,
}

var reasonTexts = map[string]string{
	state.ReasonNickInUse:        "Nickname is already in use",
	state.ReasonNoSuchNick:       "No such nick/channel",
	state.ReasonNoSuchChannel:    "No such channel",
	state.ReasonNotOnChannel:     "You're not on that channel",
	state.ReasonUserNotInChannel: "They aren't on that channel",
	state.ReasonChanOpNeeded:     "You're not channel operator",
	state.ReasonInviteOnly:       "Cannot join channel (+i)",
	state.ReasonBadKey:           "Cannot join channel (+k)",
	state.ReasonChannelFull:      "Cannot join channel (+l)",
	state.ReasonBanned:           "Cannot join channel (+b)",
	state.ReasonCannotSend:       "Cannot send to channel",
	state.ReasonUserOnChannel:    "is already on channel",
	state.ReasonUsersDontMatch:   "Cannot change mode for other users",
}

// numericForReason translates a rejection into (numeric, text). Unknown
// reasons fall back to a generic 400.
func numericForReason(reason string) (int, string) {
	n, ok := reasonNumerics[reason]
	if !ok {
		return 400, reason
	}
	return n, reasonTexts[reason]
}
