/*
Package irc implements the client-facing half of qircd: a multi-server
Internet Relay Chat daemon whose shared state is replicated through a
quorum-consensus log instead of classic server-to-server linking.

Every state change a client asks for (registering a nick, joining a
channel, sending a message, changing a mode) becomes one operation in
the replicated log. The handler blocks until the local node applies
the committed entry, then answers from the result; other affected
local sessions hear about the change through the same apply stream.
Two clients racing for the same nick on different servers are ordered
by the log, so exactly one of them wins on every server. Read-only
queries (WHOIS, LIST, NAMES, TOPIC reads) never touch the log; they
are answered from the local copy of the replicated store.

A server partitioned from the cluster majority cannot commit, so
client commands that would change state come back with RPL_TRYAGAIN
instead of silently forking the network.

# Connection handling

  - Full registration sequence (PASS, NICK, USER) with CAP negotiation
  - Registration completes only after the RegisterUser op commits
  - Plaintext and TLS listeners, with self-signed cert generation
  - PROXY protocol support for real IP preservation
  - Shared banlist fetched from a URL and checked at accept time

# Channel operations

  - JOIN/PART/KICK/TOPIC/INVITE/NAMES/LIST
  - Channel modes i, k, l, m, n, p, s, t, P and member modes o, v
  - Ban masks (+b) with nick!user@host wildcard matching

# Messaging and queries

  - PRIVMSG and NOTICE to channels and users, totally ordered
  - AWAY, WHO, WHOIS, ISON, USERHOST, LUSERS, LINKS, MOTD

# Administration

  - OPER with bcrypt-hashed credentials and optional hostmask checks
  - KILL replicated through the log so it reaches any server
  - WALLOPS to local operators, REHASH for config reload

The replicated log itself lives in the raft package; the state it
folds into lives in the state package.
*/
package irc
