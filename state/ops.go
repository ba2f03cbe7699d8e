package state

// OpKind identifies an operation variant in the replicated log.
type OpKind uint8

const (
	OpRegisterUser OpKind = iota + 1
	OpRetireUser
	OpNickChange
	OpJoinChannel
	OpPartChannel
	OpKickUser
	OpSetTopic
	OpSetMode
	OpSetBan
	OpInvite
	OpSetAway
	OpPrivmsg
	OpLinkServer
	OpUnlinkServer
)

var opKindNames = map[OpKind]string{
	OpRegisterUser: "RegisterUser",
	OpRetireUser:   "RetireUser",
	OpNickChange:   "NickChange",
	OpJoinChannel:  "JoinChannel",
	OpPartChannel:  "PartChannel",
	OpKickUser:     "KickUser",
	OpSetTopic:     "SetTopic",
	OpSetMode:      "SetMode",
	OpSetBan:       "SetBan",
	OpInvite:       "Invite",
	OpSetAway:      "SetAway",
	OpPrivmsg:      "Privmsg",
	OpLinkServer:   "LinkServer",
	OpUnlinkServer: "UnlinkServer",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Op is a single state-changing operation. Ops are proposed by servers,
// ordered by the consensus log, and folded into the Network store by
// Apply. Every field an op needs to apply is carried in the op itself;
// in particular Ts is stamped at proposal time so that applying the
// same committed log always produces the same state.
type Op struct {
	// ID is the proposal id, unique per op, used to resolve the
	// proposer's pending future after commit.
	ID string `json:"id"`

	Kind OpKind `json:"kind"`

	// Origin is the id of the proposing server.
	Origin string `json:"origin"`

	// Session identifies the connection the op acts for. Empty for
	// server-level ops (LinkServer, UnlinkServer).
	Session string `json:"session,omitempty"`

	// Ts is the proposal wall-clock time, unix seconds.
	Ts int64 `json:"ts,omitempty"`

	Nick    string `json:"nick,omitempty"`
	NewNick string `json:"newNick,omitempty"`
	User    string `json:"user,omitempty"`
	Real    string `json:"real,omitempty"`
	Host    string `json:"host,omitempty"`

	Channel string `json:"channel,omitempty"`

	// Target is the object nick for KICK/INVITE/PRIVMSG-to-user and
	// the mode target for SetMode on a user.
	Target string `json:"target,omitempty"`

	// Text carries topic text, part/quit/kick reasons and message
	// bodies.
	Text string `json:"text,omitempty"`

	// Mode is a mode change string ("+ik"/"-o"), with arguments in
	// Args, exactly as accepted on the wire.
	Mode string   `json:"mode,omitempty"`
	Args []string `json:"args,omitempty"`

	// Notice distinguishes NOTICE from PRIVMSG relay.
	Notice bool `json:"notice,omitempty"`

	// Away toggles away status; Text holds the away message.
	Away bool `json:"away,omitempty"`

	// Granted marks a user-mode change issued by the server itself
	// (operator grant after OPER, KILL cleanup). Client MODE commands
	// never set it.
	Granted bool `json:"granted,omitempty"`

	// Addr is the address hint for LinkServer; Acked is the log index
	// the linking server reported as applied, and Catching marks a
	// link that is still replaying missed entries.
	Addr     string `json:"addr,omitempty"`
	Acked    uint64 `json:"acked,omitempty"`
	Catching bool   `json:"catching,omitempty"`
}

// ApplyResult reports the effect of one committed op. Audience holds
// the session ids of every user the change is visible to, captured
// against the state the op applied to, so the command processor can
// fan out replies without re-deriving membership after the fact.
type ApplyResult struct {
	Index uint64
	Op    Op

	// Rejected is set when the op had no effect because log ordering
	// arbitrated against it (nick already owned by another session,
	// kick of a non-member, and so on). Reason is the operator-facing
	// explanation.
	Rejected bool
	Reason   string

	// NoOp is set when the op was legal but changed nothing, which is
	// how re-applying an already applied entry stays idempotent.
	NoOp bool

	Audience []string

	// NewNick is the canonical-case nick after a RegisterUser or
	// NickChange.
	NewNick string
	// OldNick is the previous nick for NickChange and the nick a
	// retired user held.
	OldNick string

	// Mode and ModeArgs are the changes SetMode actually applied,
	// which can be a subset of what the op asked for.
	Mode     string
	ModeArgs []string

	ChannelCreated bool
	ChannelGone    bool
	UserGone       bool
}
