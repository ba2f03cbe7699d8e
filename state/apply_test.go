package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerOp(session, nick string) Op {
	return Op{
		ID:      "op-" + session + "-" + nick,
		Kind:    OpRegisterUser,
		Origin:  "server1",
		Session: session,
		Ts:      1700000000,
		Nick:    nick,
		User:    "u" + session,
		Real:    "Real Name",
		Host:    "host.example",
	}
}

func joinOp(session, channel string) Op {
	return Op{Kind: OpJoinChannel, Origin: "server1", Session: session, Ts: 1700000100, Channel: channel}
}

func TestRegisterAndNickCollision(t *testing.T) {
	n := NewNetwork()

	res := n.Apply(1, registerOp("s1", "Alice"))
	assert.False(t, res.Rejected)
	assert.Equal(t, "Alice", res.NewNick)

	// Same nick from a different session loses by log order.
	res = n.Apply(2, registerOp("s2", "alice"))
	assert.True(t, res.Rejected)
	assert.Equal(t, ReasonNickInUse, res.Reason)

	// The winner is untouched.
	u, ok := n.UserByNick("ALICE")
	require.True(t, ok)
	assert.Equal(t, "s1", u.Session)
	assert.Equal(t, "Alice", u.Nick)

	// Re-applying the winning entry is a no-op, not a rejection.
	res = n.Apply(1, registerOp("s1", "Alice"))
	assert.True(t, res.NoOp)
	assert.False(t, res.Rejected)
}

func TestCasemappingTreatsBracketsEqual(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "nick[a]"))

	// rfc1459: {}| are the lowercase forms of []\.
	res := n.Apply(2, registerOp("s2", "NICK{A}"))
	assert.True(t, res.Rejected)
	assert.Equal(t, ReasonNickInUse, res.Reason)

	_, taken := n.NickTaken("Nick{a}")
	assert.True(t, taken)
}

func TestJoinCreatesChannelWithFounderOp(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Alice"))

	res := n.Apply(2, joinOp("s1", "#go"))
	assert.False(t, res.Rejected)
	assert.True(t, res.ChannelCreated)

	ch, ok := n.Channel("#go")
	require.True(t, ok)
	assert.Equal(t, "#go", ch.Name)
	assert.Equal(t, "nt", ch.Modes)

	flags, ok := n.MemberFlagsFor("s1", "#go")
	require.True(t, ok)
	assert.True(t, flags.Operator)
}

func TestPartGarbageCollectsEmptyChannel(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Alice"))
	n.Apply(2, joinOp("s1", "#go"))

	res := n.Apply(3, Op{Kind: OpPartChannel, Session: "s1", Channel: "#go"})
	assert.False(t, res.Rejected)
	assert.True(t, res.ChannelGone)

	_, ok := n.Channel("#go")
	assert.False(t, ok)
}

func TestPersistentChannelSurvivesLastPart(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Alice"))
	n.Apply(2, joinOp("s1", "#keep"))
	res := n.Apply(3, Op{Kind: OpSetMode, Session: "s1", Channel: "#keep", Mode: "+P"})
	assert.Equal(t, "+P", res.Mode)

	res = n.Apply(4, Op{Kind: OpPartChannel, Session: "s1", Channel: "#keep"})
	assert.False(t, res.ChannelGone)

	ch, ok := n.Channel("#keep")
	require.True(t, ok)
	assert.Equal(t, 0, ch.NumMembers)
}

func TestInviteOnlyAndKey(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Op"))
	n.Apply(2, registerOp("s2", "Guest"))
	n.Apply(3, joinOp("s1", "#priv"))
	n.Apply(4, Op{Kind: OpSetMode, Session: "s1", Channel: "#priv", Mode: "+i"})

	res := n.Apply(5, joinOp("s2", "#priv"))
	assert.True(t, res.Rejected)
	assert.Equal(t, ReasonInviteOnly, res.Reason)

	res = n.Apply(6, Op{Kind: OpInvite, Session: "s1", Channel: "#priv", Target: "Guest"})
	assert.False(t, res.Rejected)
	assert.Equal(t, "Guest", res.NewNick)

	res = n.Apply(7, joinOp("s2", "#priv"))
	assert.False(t, res.Rejected)

	// The invite is consumed.
	n.Apply(8, Op{Kind: OpPartChannel, Session: "s2", Channel: "#priv"})
	res = n.Apply(9, joinOp("s2", "#priv"))
	assert.True(t, res.Rejected)
}

func TestChannelKey(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Op"))
	n.Apply(2, registerOp("s2", "Guest"))
	n.Apply(3, joinOp("s1", "#sekrit"))
	res := n.Apply(4, Op{Kind: OpSetMode, Session: "s1", Channel: "#sekrit", Mode: "+k", Args: []string{"hunter2"}})
	assert.Equal(t, "+k", res.Mode)
	assert.Equal(t, []string{"hunter2"}, res.ModeArgs)

	res = n.Apply(5, joinOp("s2", "#sekrit"))
	assert.True(t, res.Rejected)
	assert.Equal(t, ReasonBadKey, res.Reason)

	withKey := joinOp("s2", "#sekrit")
	withKey.Args = []string{"hunter2"}
	res = n.Apply(6, withKey)
	assert.False(t, res.Rejected)
}

func TestBanBlocksJoin(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Op"))
	n.Apply(2, registerOp("s2", "Troll"))
	n.Apply(3, joinOp("s1", "#calm"))
	res := n.Apply(4, Op{Kind: OpSetBan, Session: "s1", Channel: "#calm", Mode: "+b", Text: "Troll"})
	assert.Equal(t, "+b", res.Mode)
	assert.Equal(t, []string{"Troll!*@*"}, res.ModeArgs)

	res = n.Apply(5, joinOp("s2", "#calm"))
	assert.True(t, res.Rejected)
	assert.Equal(t, ReasonBanned, res.Reason)

	res = n.Apply(6, Op{Kind: OpSetBan, Session: "s1", Channel: "#calm", Mode: "-b", Text: "Troll"})
	assert.Equal(t, "-b", res.Mode)

	res = n.Apply(7, joinOp("s2", "#calm"))
	assert.False(t, res.Rejected)
}

func TestKickRequiresChanop(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Op"))
	n.Apply(2, registerOp("s2", "Member"))
	n.Apply(3, joinOp("s1", "#m"))
	n.Apply(4, joinOp("s2", "#m"))

	res := n.Apply(5, Op{Kind: OpKickUser, Session: "s2", Channel: "#m", Target: "Op"})
	assert.True(t, res.Rejected)
	assert.Equal(t, ReasonChanOpNeeded, res.Reason)

	res = n.Apply(6, Op{Kind: OpKickUser, Session: "s1", Channel: "#m", Target: "Member"})
	assert.False(t, res.Rejected)
	assert.Equal(t, "Member", res.OldNick)

	_, ok := n.MemberFlagsFor("s2", "#m")
	assert.False(t, ok)
}

func TestTopicLockedBehindMode(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Op"))
	n.Apply(2, registerOp("s2", "Member"))
	n.Apply(3, joinOp("s1", "#t"))
	n.Apply(4, joinOp("s2", "#t"))

	// +t is a default mode; only operators may set the topic.
	res := n.Apply(5, Op{Kind: OpSetTopic, Session: "s2", Channel: "#t", Text: "nope"})
	assert.True(t, res.Rejected)
	assert.Equal(t, ReasonChanOpNeeded, res.Reason)

	res = n.Apply(6, Op{Kind: OpSetTopic, Session: "s1", Channel: "#t", Text: "welcome", Ts: 1700000500})
	assert.False(t, res.Rejected)

	ch, _ := n.Channel("#t")
	assert.Equal(t, "welcome", ch.Topic)
	assert.Equal(t, "Op", ch.TopicBy)
	assert.EqualValues(t, 1700000500, ch.TopicAt)
}

func TestNickChangeMovesMemberships(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Alice"))
	n.Apply(2, joinOp("s1", "#go"))

	res := n.Apply(3, Op{Kind: OpNickChange, Session: "s1", NewNick: "Alicia"})
	assert.Equal(t, "Alice", res.OldNick)
	assert.Equal(t, "Alicia", res.NewNick)

	_, ok := n.UserByNick("Alice")
	assert.False(t, ok)
	flags, ok := n.MemberFlagsFor("s1", "#go")
	require.True(t, ok)
	assert.True(t, flags.Operator)

	members := n.Members("#go")
	require.Len(t, members, 1)
	assert.Equal(t, "Alicia", members[0].Nick)
}

func TestNickChangeCollision(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Alice"))
	n.Apply(2, registerOp("s2", "Bob"))

	res := n.Apply(3, Op{Kind: OpNickChange, Session: "s2", NewNick: "ALICE"})
	assert.True(t, res.Rejected)
	assert.Equal(t, ReasonNickInUse, res.Reason)

	// Case-only change of your own nick is allowed.
	res = n.Apply(4, Op{Kind: OpNickChange, Session: "s1", NewNick: "ALICE"})
	assert.False(t, res.Rejected)
	u, _ := n.UserBySession("s1")
	assert.Equal(t, "ALICE", u.Nick)
}

func TestPrivmsgModeration(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Op"))
	n.Apply(2, registerOp("s2", "Lurker"))
	n.Apply(3, joinOp("s1", "#mod"))

	// +n (default): no external messages.
	res := n.Apply(4, Op{Kind: OpPrivmsg, Session: "s2", Channel: "#mod", Text: "hi"})
	assert.True(t, res.Rejected)
	assert.Equal(t, ReasonCannotSend, res.Reason)

	n.Apply(5, joinOp("s2", "#mod"))
	n.Apply(6, Op{Kind: OpSetMode, Session: "s1", Channel: "#mod", Mode: "+m"})

	res = n.Apply(7, Op{Kind: OpPrivmsg, Session: "s2", Channel: "#mod", Text: "hi"})
	assert.True(t, res.Rejected)

	n.Apply(8, Op{Kind: OpSetMode, Session: "s1", Channel: "#mod", Mode: "+v", Args: []string{"Lurker"}})
	res = n.Apply(9, Op{Kind: OpPrivmsg, Session: "s2", Channel: "#mod", Text: "hi"})
	assert.False(t, res.Rejected)
	assert.Len(t, res.Audience, 2)
}

func TestSetAwayAudienceCoversChannelPeers(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Alice"))
	n.Apply(2, registerOp("s2", "Bob"))
	n.Apply(3, joinOp("s1", "#here"))
	n.Apply(4, joinOp("s2", "#here"))

	res := n.Apply(5, Op{Kind: OpSetAway, Session: "s2", Away: true, Text: "lunch"})
	require.False(t, res.Rejected)
	assert.Equal(t, []string{"s1", "s2"}, res.Audience, "channel peers hear the away change")

	u, ok := n.UserByNick("Bob")
	require.True(t, ok)
	assert.True(t, u.Away)
	assert.Equal(t, "lunch", u.AwayMessage)

	res = n.Apply(6, Op{Kind: OpSetAway, Session: "s2"})
	assert.Equal(t, []string{"s1", "s2"}, res.Audience)
	u, _ = n.UserByNick("Bob")
	assert.False(t, u.Away)
	assert.Empty(t, u.AwayMessage)
}

func TestUserModeOperatorOnlyByGrant(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Wannabe"))

	res := n.Apply(2, Op{Kind: OpSetMode, Session: "s1", Mode: "+o"})
	assert.True(t, res.NoOp)

	res = n.Apply(3, Op{Kind: OpSetMode, Session: "s1", Mode: "+o", Granted: true})
	assert.Equal(t, "+o", res.Mode)

	u, _ := n.UserBySession("s1")
	assert.Contains(t, u.Modes, "o")

	// Dropping it needs no grant.
	res = n.Apply(4, Op{Kind: OpSetMode, Session: "s1", Mode: "-o"})
	assert.Equal(t, "-o", res.Mode)
}

func TestRetireUserCleansUp(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Alice"))
	n.Apply(2, registerOp("s2", "Bob"))
	n.Apply(3, joinOp("s1", "#go"))
	n.Apply(4, joinOp("s2", "#go"))

	res := n.Apply(5, Op{Kind: OpRetireUser, Session: "s1", Text: "bye"})
	assert.True(t, res.UserGone)
	assert.Equal(t, "Alice", res.OldNick)
	assert.Contains(t, res.Audience, "s2")

	_, ok := n.UserByNick("Alice")
	assert.False(t, ok)

	// The nick is immediately free again.
	res = n.Apply(6, registerOp("s3", "Alice"))
	assert.False(t, res.Rejected)
}

func TestServerLinkLifecycle(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, Op{Kind: OpLinkServer, Target: "server2", Addr: "10.0.0.2:6667", Acked: 1, Ts: 1700000000})

	servers := n.Servers()
	require.Len(t, servers, 1)
	assert.Equal(t, LinkConnected, servers[0].LinkState)

	n.Apply(2, Op{Kind: OpUnlinkServer, Target: "server2"})
	servers = n.Servers()
	assert.Equal(t, LinkPartitioned, servers[0].LinkState)

	// Repeated unlink changes nothing.
	res := n.Apply(3, Op{Kind: OpUnlinkServer, Target: "server2"})
	assert.True(t, res.NoOp)

	n.Apply(4, Op{Kind: OpLinkServer, Target: "server2", Acked: 3, Catching: true})
	servers = n.Servers()
	assert.Equal(t, LinkCatchingUp, servers[0].LinkState)
}

// Two stores fed the same committed sequence must be identical, down
// to the serialized bytes. This is the property everything else rests
// on.
func TestDeterministicReplay(t *testing.T) {
	ops := []Op{
		registerOp("s1", "Alice"),
		registerOp("s2", "Bob"),
		joinOp("s1", "#go"),
		joinOp("s2", "#go"),
		{Kind: OpSetMode, Session: "s1", Channel: "#go", Mode: "+ik", Args: []string{"key"}},
		{Kind: OpSetTopic, Session: "s1", Channel: "#go", Text: "topic", Ts: 42},
		{Kind: OpSetBan, Session: "s1", Channel: "#go", Mode: "+b", Text: "evil!*@*", Ts: 43},
		{Kind: OpNickChange, Session: "s2", NewNick: "Robert"},
		{Kind: OpPrivmsg, Session: "s1", Channel: "#go", Text: "hello"},
		{Kind: OpSetAway, Session: "s2", Away: true, Text: "lunch"},
	}

	a, b := NewNetwork(), NewNetwork()
	for i, op := range ops {
		ra := a.Apply(uint64(i+1), op)
		rb := b.Apply(uint64(i+1), op)
		assert.Equal(t, ra, rb)
	}

	snapA, err := a.Snapshot()
	require.NoError(t, err)
	snapB, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snapA, snapB)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	n := NewNetwork()
	n.Apply(1, registerOp("s1", "Alice"))
	n.Apply(2, joinOp("s1", "#go"))
	n.Apply(3, Op{Kind: OpSetTopic, Session: "s1", Channel: "#go", Text: "hi", Ts: 9})

	data, err := n.Snapshot()
	require.NoError(t, err)

	restored := NewNetwork()
	require.NoError(t, restored.Restore(3, data))

	assert.EqualValues(t, 3, restored.AppliedIndex())
	u, ok := restored.UserByNick("alice")
	require.True(t, ok)
	assert.Equal(t, []string{"#go"}, u.Channels)
	ch, ok := restored.Channel("#go")
	require.True(t, ok)
	assert.Equal(t, "hi", ch.Topic)

	// The rebuilt session index still routes ops.
	res := restored.Apply(4, Op{Kind: OpPrivmsg, Session: "s1", Channel: "#go", Text: "after restore"})
	assert.False(t, res.Rejected)
}

func TestMatchMask(t *testing.T) {
	assert.True(t, MatchMask("*!*@*", "nick!user@host"))
	assert.True(t, MatchMask("troll!*@*", "Troll!u@example.com"))
	assert.True(t, MatchMask("*!*@*.example.com", "a!b@irc.example.com"))
	assert.False(t, MatchMask("*!*@*.example.com", "a!b@example.org"))
	assert.True(t, MatchMask("n?ck!*@*", "nick!x@y"))
	assert.False(t, MatchMask("n?ck!*@*", "naack!x@y"))
}
