package irc_test

import (
	"fmt"
	"log"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/presbrey/qircd/irc"
	"github.com/presbrey/qircd/irc/config"
)

func init() {
	log.SetFlags(log.Lshortfile | log.Lmicroseconds)
}

// startTestServer runs a standalone single-node cluster server on a
// random port. Registration still goes through the log, so the 001
// only arrives after the single node elects itself and commits.
func startTestServer(t *testing.T) *irc.Server {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("opersecret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash operator password: %v", err)
	}

	cfg := &config.Config{}
	cfg.Server.Name = "test.irc.server"
	cfg.Server.Network = "TestNet"
	cfg.Server.Description = "Test IRC Server"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.MOTD = []string{"Welcome to TestNet"}
	cfg.Cluster.NodeID = "hub"
	cfg.Cluster.Listen = "127.0.0.1:0"
	cfg.Cluster.DataDir = t.TempDir()
	cfg.Cluster.ElectionTimeoutMS = 50
	cfg.Cluster.HeartbeatMS = 15
	cfg.Cluster.ProposalTimeoutMS = 5000
	cfg.Operators = []config.Operator{{Username: "admin", Password: string(hash)}}

	server := irc.NewServer(cfg)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	setTestingAddress(server.TestingGetListener().Addr().String())
	return server
}

// TestIRCServerIntegration tests the IRC server with two client connections
func TestIRCServerIntegration(t *testing.T) {
	server := startTestServer(t)

	// STEP 1: Connect and register client1
	log.Printf("<STEP 1> Connecting client1")
	client1 := &TestClient{
		t:        t,
		nickname: "client1",
	}
	if err := client1.Connect(); err != nil {
		t.Fatalf("Failed to connect client1: %v", err)
	}
	defer client1.Close()

	client1.SendCommand("NICK client1")
	client1.SendCommand("USER client1 0 * :Client One")
	client1.WaitForRegistration(3 * time.Second)

	// STEP 2: Connect and register client2
	log.Printf("<STEP 2> Connecting client2")
	client2 := &TestClient{
		t:        t,
		nickname: "client2",
	}
	if err := client2.Connect(); err != nil {
		t.Fatalf("Failed to connect client2: %v", err)
	}
	defer client2.Close()

	client2.SendCommand("NICK client2")
	client2.SendCommand("USER client2 0 * :Client Two")
	client2.WaitForRegistration(3 * time.Second)

	// STEP 3: A third connection racing for client2's nick loses
	log.Printf("<STEP 3> Nick collision gets 433")
	dup := &TestClient{t: t, nickname: "dup"}
	if err := dup.Connect(); err != nil {
		t.Fatalf("Failed to connect dup: %v", err)
	}
	defer dup.Close()
	dup.SendCommand("NICK client2")
	dup.SendCommand("USER dup 0 * :Duplicate")
	if !dup.WaitForMessage(" 433 ", 3*time.Second) {
		t.Errorf("Duplicate nick registration did not get 433")
	}

	// STEP 4: Client2 joins a testing channel, client1 follows
	log.Printf("<STEP 4> Both clients join #testing")
	client2.SendCommand("JOIN #testing")
	client2.WaitForMessage("JOIN #testing", 3*time.Second)

	client1.SendCommand("JOIN #testing")
	client1.WaitForMessage("JOIN #testing", 3*time.Second)

	// Client2 sees client1 arrive
	if !client2.WaitForMessage("client1", 3*time.Second) {
		t.Errorf("Client2 didn't see client1 join")
	}

	// STEP 5: Both clients message the channel
	log.Printf("<STEP 5> Both clients message the channel")
	client1.DrainMessages()
	client2.DrainMessages()

	client1.SendCommand("PRIVMSG #testing :Hello from client1")
	if !client2.WaitForMessage("PRIVMSG #testing :Hello from client1", 3*time.Second) {
		t.Errorf("Client2 didn't receive client1's channel message")
	}

	client2.SendCommand("PRIVMSG #testing :Hello from client2")
	if !client1.WaitForMessage("PRIVMSG #testing :Hello from client2", 3*time.Second) {
		t.Errorf("Client1 didn't receive client2's channel message")
	}

	// STEP 6: Client2 has channel ops as first joiner and kicks client1
	log.Printf("<STEP 6> Client2 kicks client1")
	client1.DrainMessages()
	client2.DrainMessages()

	client2.SendCommand("KICK #testing client1 :Testing kick command")
	if !client1.WaitForMessage("KICK #testing client1", 3*time.Second) {
		t.Errorf("Client1 didn't receive the kick")
	}

	// STEP 7: Client1 authenticates as operator and kills client2
	log.Printf("<STEP 7> Client1 opers up and kills client2")
	client1.DrainMessages()
	client1.SendCommand("OPER admin opersecret")
	if !client1.WaitForMessage(" 381 ", 3*time.Second) {
		t.Fatalf("Client1 did not become an operator")
	}

	client1.SendCommand("KILL client2 :Testing kill command")

	if !checkClientDisconnected(client2, 3*time.Second) {
		t.Errorf("KILL command failed - client2 was still connected")
	}

	// The killed user is gone from the replicated state too.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := server.Store().UserByNick("client2"); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("client2 still present in the network state after KILL")
}

// TestNickChangePropagates covers a rename seen by a channel peer.
func TestNickChangePropagates(t *testing.T) {
	startTestServer(t)

	alice := &TestClient{t: t, nickname: "alice"}
	if err := alice.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer alice.Close()
	alice.SendCommand("NICK alice")
	alice.SendCommand("USER alice 0 * :Alice")
	alice.WaitForRegistration(3 * time.Second)

	bob := &TestClient{t: t, nickname: "bob"}
	if err := bob.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer bob.Close()
	bob.SendCommand("NICK bob")
	bob.SendCommand("USER bob 0 * :Bob")
	bob.WaitForRegistration(3 * time.Second)

	alice.SendCommand("JOIN #ops")
	alice.WaitForMessage("JOIN #ops", 3*time.Second)
	bob.SendCommand("JOIN #ops")
	bob.WaitForMessage("JOIN #ops", 3*time.Second)

	alice.DrainMessages()
	bob.DrainMessages()

	alice.SendCommand("NICK alicia")
	if !bob.WaitForMessage("NICK :alicia", 3*time.Second) {
		t.Errorf("Bob didn't see alice's nick change")
	}
	if !alice.WaitForMessage("NICK :alicia", 3*time.Second) {
		t.Errorf("Alice didn't get her own nick change echoed")
	}

	// The new nick answers, the old one is free.
	alice.SendCommand("TOPIC #ops :run by alicia")
	if !bob.WaitForMessage("TOPIC #ops :run by alicia", 3*time.Second) {
		t.Errorf("Topic change after rename not delivered")
	}
}

// TestAwayNotifyAndMultiPrefix covers the negotiated capabilities: an
// away-notify client hears channel peers change away state, and
// multi-prefix NAMES stacks @+ for a member holding both.
func TestAwayNotifyAndMultiPrefix(t *testing.T) {
	startTestServer(t)

	watcher := &TestClient{t: t, nickname: "watcher"}
	if err := watcher.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer watcher.Close()
	watcher.SendCommand("CAP REQ :away-notify multi-prefix")
	if !watcher.WaitForMessage("ACK", 3*time.Second) {
		t.Fatalf("CAP REQ not acknowledged")
	}
	watcher.SendCommand("NICK watcher")
	watcher.SendCommand("USER watcher 0 * :Watcher")
	watcher.WaitForRegistration(3 * time.Second)
	watcher.SendCommand("JOIN #caps")
	watcher.WaitForMessage("JOIN #caps", 3*time.Second)

	plain := &TestClient{t: t, nickname: "plain"}
	if err := plain.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer plain.Close()
	plain.SendCommand("NICK plain")
	plain.SendCommand("USER plain 0 * :Plain")
	plain.WaitForRegistration(3 * time.Second)
	plain.SendCommand("JOIN #caps")
	plain.WaitForMessage("JOIN #caps", 3*time.Second)

	if !watcher.WaitForMessage("plain", 3*time.Second) {
		t.Fatalf("watcher didn't see plain join")
	}

	plain.SendCommand("AWAY :gone fishing")
	if !plain.WaitForMessage(" 306 ", 3*time.Second) {
		t.Errorf("plain didn't get RPL_NOWAWAY")
	}
	if !watcher.WaitForMessage("AWAY :gone fishing", 3*time.Second) {
		t.Errorf("watcher didn't get the away notification")
	}

	plain.SendCommand("AWAY")
	if !plain.WaitForMessage(" 305 ", 3*time.Second) {
		t.Errorf("plain didn't get RPL_UNAWAY")
	}
	if !watcher.WaitForMessage("AWAY", 3*time.Second) {
		t.Errorf("watcher didn't get the back notification")
	}

	// watcher opped #caps as first joiner; voice it too and check the
	// stacked prefix in its NAMES view.
	watcher.SendCommand("MODE #caps +v watcher")
	if !watcher.WaitForMessage("MODE #caps +v watcher", 3*time.Second) {
		t.Fatalf("voice mode change not delivered")
	}
	watcher.SendCommand("NAMES #caps")
	if !watcher.WaitForMessage("@+watcher", 3*time.Second) {
		t.Errorf("multi-prefix NAMES did not stack prefixes")
	}
}

// Helper function to check if a client has been disconnected. Drains
// any buffered lines (the ERROR notice, in-flight broadcasts) until
// the read fails with something other than a deadline.
func checkClientDisconnected(client *TestClient, timeout time.Duration) bool {
	client.mux.Lock()
	defer client.mux.Unlock()

	client.conn.SetReadDeadline(time.Now().Add(timeout))
	defer client.conn.SetReadDeadline(time.Time{})

	for {
		_, err := client.tpConn.ReadLine()
		if err == nil {
			continue
		}
		if strings.Contains(err.Error(), "timeout") {
			return false
		}
		log.Printf("DEBUG: Detected disconnect for %s: %v", client.nickname, err)
		return true
	}
}

// TestClient represents a test IRC client
type TestClient struct {
	t        *testing.T
	conn     net.Conn
	tpConn   *textproto.Conn
	nickname string
	mux      sync.Mutex // Protects concurrent read/write operations
}

// Connect establishes a connection to the IRC server
func (c *TestClient) Connect() error {
	conn, err := net.Dial("tcp", testingAddress)
	if err != nil {
		return err
	}
	c.conn = conn
	c.tpConn = textproto.NewConn(conn)
	return nil
}

// Close closes the client connection
func (c *TestClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// DrainMessages reads and discards all pending messages
// Returns a map of numeric response codes with their counts
func (c *TestClient) DrainMessages() map[int]int {
	c.mux.Lock()
	defer c.mux.Unlock()

	numerics := make(map[int]int)

	c.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	defer c.conn.SetReadDeadline(time.Time{})

	drained := 0
	for {
		msg, err := c.tpConn.ReadLine()
		if err != nil {
			break
		}

		parts := strings.Split(msg, " ")
		if len(parts) >= 3 {
			if num, err := strconv.Atoi(parts[1]); err == nil {
				numerics[num]++
			}
		}

		drained++
	}
	if drained > 0 {
		log.Printf("[%s] Drained %d messages", c.nickname, drained)
	}

	return numerics
}

// ReadMessages reads up to maxMessages messages from the server with a timeout
func (c *TestClient) ReadMessages(maxMessages int) []string {
	c.mux.Lock()
	defer c.mux.Unlock()

	var messages []string

	c.conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	defer c.conn.SetReadDeadline(time.Time{})

	for i := 0; i < maxMessages; i++ {
		msg, err := c.tpConn.ReadLine()
		if err != nil {
			break
		}

		if msg != "" {
			messages = append(messages, msg)
		}
	}

	return messages
}

// SendCommand sends an IRC command to the server
func (c *TestClient) SendCommand(command string) {
	command = strings.TrimSuffix(strings.TrimSuffix(command, "\r\n"), "\n")

	log.Printf("    [%s] => %#v", c.nickname, command)

	c.mux.Lock()
	err := c.tpConn.PrintfLine("%s", command)
	c.mux.Unlock()

	if err != nil {
		c.t.Errorf("Failed to send command '%s': %v", command, err)
	}
}

// ExpectNumeric checks if the next line from the server is a numeric reply with the expected code
func (c *TestClient) ExpectNumeric(numeric int) {
	msg := c.ReadMessages(1)
	expectedCode := fmt.Sprintf(" %03d ", numeric)
	if len(msg) == 0 || !strings.Contains(msg[0], expectedCode) {
		c.t.Errorf("Expected numeric %d, got %v", numeric, msg)
	}
}

func setTestingAddress(address string) {
	log.Printf("Setting testing address to %s", address)
	testingAddress = address
}

var testingAddress string

// WaitForMessage waits for a specific message and returns true if found within timeout
func (c *TestClient) WaitForMessage(expectedMessage string, timeout time.Duration) bool {
	c.mux.Lock()
	defer c.mux.Unlock()

	start := time.Now()
	for time.Since(start) < timeout {
		c.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		msg, err := c.tpConn.ReadLine()
		if err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if strings.Contains(msg, expectedMessage) {
			c.conn.SetReadDeadline(time.Time{})
			return true
		}
	}

	c.conn.SetReadDeadline(time.Time{})
	return false
}

// WaitForRegistration waits until the client is fully registered on the server
func (c *TestClient) WaitForRegistration(timeout time.Duration) {
	start := time.Now()
	registered := false

	for time.Since(start) < timeout {
		messages := c.ReadMessages(5)
		for _, msg := range messages {
			if strings.Contains(msg, " 001 ") {
				registered = true
				break
			}
		}

		if registered {
			break
		}

		time.Sleep(50 * time.Millisecond)
	}

	if !registered {
		c.t.Fatalf("[%s] never received 001", c.nickname)
	}

	welcomeNumerics := c.DrainMessages()
	if len(welcomeNumerics) > 0 {
		log.Printf("[%s] Registration: Numeric responses: %v", c.nickname, welcomeNumerics)
	}
}
