package irc

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/presbrey/qircd/booltmemo"
	"github.com/presbrey/qircd/irc/config"
	"github.com/presbrey/qircd/raft"
	"github.com/presbrey/qircd/state"
	"github.com/presbrey/qircd/syncmap"
)

// Server is one qircd node: the client-facing IRC listeners plus this
// server's member of the consensus cluster. All network state lives in
// the replicated store; the Server itself only tracks which sessions
// are connected locally.
type Server struct {
	config *config.Config

	store     *state.Network
	node      *raft.Node
	transport *raft.HTTPTransport
	processor *Processor

	mu       sync.RWMutex
	sessions map[string]*Client // session id -> client

	listener    net.Listener
	tlsListener net.Listener
	tlsConfig   *tls.Config

	banlist *syncmap.RemoteMap
	banned  *booltmemo.Memoizer[string]

	shutdown chan struct{}
	stats    *ServerStats
}

// ServerStats holds real-time server statistics
type ServerStats struct {
	sync.RWMutex
	StartTime        time.Time
	ConnectionCount  int
	MaxConnections   int
	MessagesSent     int64
	MessagesReceived int64
}

// NewServer creates a new IRC server from a validated configuration
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		config:   cfg,
		store:    state.NewNetwork(),
		sessions: make(map[string]*Client),
		shutdown: make(chan struct{}),
		stats:    &ServerStats{StartTime: time.Now()},
	}
	s.processor = newProcessor(s)

	if cfg.Banlist.URL != "" {
		s.banlist = syncmap.NewRemoteMap(cfg.Banlist.URL, &syncmap.Options{
			RefreshPeriod: time.Duration(cfg.Banlist.RefreshSeconds) * time.Second,
			ErrorHandler: func(err error) {
				log.Printf("Banlist refresh failed: %v", err)
			},
		})
	}
	// Ban decisions are memoized per host so a reconnect flood does not
	// rescan the mask list on every accept.
	s.banned = booltmemo.New(s.hostIsBanned, 5*time.Minute, 30*time.Second)

	return s
}

// Start starts all components of the IRC server. If any component
// fails to start, everything already running is stopped again.
func (s *Server) Start() error {
	if err := s.startCluster(); err != nil {
		return err
	}

	if err := s.StartIRCServer(); err != nil {
		s.stopCluster()
		return err
	}

	if err := s.StartTLSServer(); err != nil {
		s.StopIRCServer()
		s.stopCluster()
		return err
	}

	if s.banlist != nil {
		s.banlist.Start()
	}

	return nil
}

// startCluster opens the log store and snapshot archive, builds the
// consensus node, and starts serving the peer endpoints.
func (s *Server) startCluster() error {
	cc := s.config.Cluster

	if err := os.MkdirAll(cc.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := raft.OpenStore(filepath.Join(cc.DataDir, "log.db"))
	if err != nil {
		return fmt.Errorf("failed to open log store: %w", err)
	}

	archive, err := raft.OpenArchive(filepath.Join(cc.DataDir, "snapshots.db"))
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to open snapshot archive: %w", err)
	}

	peers := make([]raft.Peer, 0, len(cc.Peers))
	for _, p := range cc.Peers {
		peers = append(peers, raft.Peer{ID: p.ID, URL: p.URL})
	}
	if len(peers) == 0 {
		// Standalone server: a cluster of one, quorum of one.
		peers = []raft.Peer{{ID: cc.NodeID, URL: "http://" + cc.Listen}}
	}

	s.transport = raft.NewHTTPTransport(cc.Secret)

	node, err := raft.New(raft.Config{
		ID:                cc.NodeID,
		AdvertiseURL:      cc.Advertise,
		Peers:             peers,
		ElectionTimeout:   time.Duration(cc.ElectionTimeoutMS) * time.Millisecond,
		HeartbeatInterval: time.Duration(cc.HeartbeatMS) * time.Millisecond,
		SnapshotInterval:  cc.SnapshotInterval,
		Debug:             s.config.Debug,
	}, &networkFSM{server: s}, s.transport, store, archive)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to start consensus node: %w", err)
	}
	s.node = node

	s.registerClusterHooks()

	go func() {
		if err := s.transport.Serve(node, cc.Listen); err != nil {
			select {
			case <-s.shutdown:
			default:
				log.Printf("Cluster listener exited: %v", err)
			}
		}
	}()

	node.Start()
	log.Printf("Cluster node %s started on %s", cc.NodeID, cc.Listen)
	return nil
}

// registerClusterHooks wires consensus transitions into the IRC plane:
// topology changes become replicated LinkServer/UnlinkServer entries,
// proposed by the leader so they appear exactly once in the log.
func (s *Server) registerClusterHooks() {
	s.node.Events.Leadership.Register(func(e raft.LeadershipEvent) error {
		if e.Self {
			log.Printf("[%s] Elected leader for term %d", s.node.ID(), e.Term)
			go s.proposeServerLink(s.node.ID(), s.config.Cluster.Advertise)
		}
		s.notifyOperators(fmt.Sprintf("Consensus leader for term %d is %s", e.Term, e.LeaderID))
		return nil
	})

	s.node.Events.PeerChange.Register(func(e raft.PeerEvent) error {
		op := state.Op{Kind: state.OpUnlinkServer, Target: e.Peer.ID}
		if e.Reachable {
			op = state.Op{Kind: state.OpLinkServer, Target: e.Peer.ID, Addr: e.Peer.URL}
		}
		go func() {
			if _, err := s.processor.propose(op); err != nil {
				log.Printf("[%s] Failed to record link change for %s: %v", s.node.ID(), e.Peer.ID, err)
			}
		}()
		return nil
	})

	s.node.Events.Snapshot.Register(func(e raft.SnapshotEvent) error {
		log.Printf("[%s] Snapshot taken at index %d (%d bytes)", s.node.ID(), e.Index, e.Size)
		return nil
	})
}

func (s *Server) proposeServerLink(id, addr string) {
	st := s.node.Status()
	op := state.Op{Kind: state.OpLinkServer, Target: id, Addr: addr, Acked: st.LastApplied}
	if _, err := s.processor.propose(op); err != nil {
		log.Printf("[%s] Failed to record server link: %v", s.node.ID(), err)
	}
}

func (s *Server) stopCluster() {
	if s.node != nil {
		s.node.Stop()
	}
	if s.transport != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.transport.Shutdown(ctx)
		cancel()
	}
}

// StartIRCServer starts only the plaintext IRC listener component
func (s *Server) StartIRCServer() error {
	var err error

	if s.listener != nil {
		return nil
	}

	s.listener, err = net.Listen("tcp", s.config.GetListenAddress())
	if err != nil {
		return fmt.Errorf("failed to start IRC listener: %w", err)
	}
	log.Printf("IRC Server started on %s", s.listener.Addr().String())

	go s.acceptConnections(s.listener, false)

	return nil
}

// StopIRCServer stops only the IRC listener component
func (s *Server) StopIRCServer() error {
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			return fmt.Errorf("error closing IRC listener: %w", err)
		}
		s.listener = nil
		log.Printf("IRC Server stopped")
	}
	return nil
}

// proxyConn wraps a net.Conn and a bufio.Reader to handle PROXY protocol
// It ensures that data read into the buffer by the reader isn't lost.
type proxyConn struct {
	net.Conn
	reader *bufio.Reader
}

// Read reads data from the connection, prioritizing the bufio.Reader's buffer.
func (pc *proxyConn) Read(b []byte) (int, error) {
	n, err := pc.reader.Read(b)
	if err != nil && err != io.EOF {
		return n, err
	}
	if n < len(b) {
		n2, err2 := pc.Conn.Read(b[n:])
		return n + n2, err2
	}
	return n, err
}

// acceptConnections accepts incoming client connections on a listener
func (s *Server) acceptConnections(ln net.Listener, viaTLS bool) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Printf("Error accepting connection: %v", err)
				continue
			}
		}

		s.stats.Lock()
		s.stats.ConnectionCount++
		if s.stats.ConnectionCount > s.stats.MaxConnections {
			s.stats.MaxConnections = s.stats.ConnectionCount
		}
		s.stats.Unlock()

		remoteAddr := conn.RemoteAddr().String()
		if s.config.Server.Proxy {
			conn, remoteAddr = s.handleProxyProtocol(conn)
		}

		host := remoteAddr
		if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
			host = h
		}

		if s.banned.Get(host) {
			writer := bufio.NewWriter(conn)
			fmt.Fprintf(writer, "ERROR :Closing Link: %s [banned]\r\n", host)
			writer.Flush()
			conn.Close()
			log.Printf("Rejected connection from %s (banned)", remoteAddr)
			continue
		}

		client := newClient(s, conn, host, viaTLS)
		go client.handleConnection()
	}
}

// handleProxyProtocol processes the PROXY protocol header if present
// Returns a net.Conn (potentially wrapped) and the client's real address string.
func (s *Server) handleProxyProtocol(conn net.Conn) (net.Conn, string) {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	reader := bufio.NewReader(conn)

	header, err := reader.Peek(5)
	if err != nil {
		return conn, conn.RemoteAddr().String()
	}

	if string(header) == "PROXY" {
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("Error reading PROXY line from %s: %v", conn.RemoteAddr(), err)
			return conn, conn.RemoteAddr().String()
		}

		// Format: PROXY TCP4/TCP6 client_ip proxy_ip client_port proxy_port
		parts := strings.Split(strings.TrimSpace(line), " ")
		if len(parts) >= 6 && parts[0] == "PROXY" {
			proto := parts[1]
			srcIP := parts[2]
			srcPort := parts[4]

			if proto == "TCP4" || proto == "TCP6" {
				clientAddr := fmt.Sprintf("%s:%s", srcIP, srcPort)
				log.Printf("PROXY protocol detected from %s -> %s", conn.RemoteAddr(), clientAddr)
				return &proxyConn{Conn: conn, reader: reader}, clientAddr
			}
		}
		log.Printf("Invalid PROXY line received from %s: %s", conn.RemoteAddr(), line)
	}

	return conn, conn.RemoteAddr().String()
}

// hostIsBanned scans the shared banlist for a mask matching the host.
// Called through the memoizer, never directly.
func (s *Server) hostIsBanned(host string) bool {
	if s.banlist == nil {
		return false
	}
	checkMask := fmt.Sprintf("*!*@%s", host)
	banned := false
	s.banlist.Range(func(key, _ any) bool {
		mask, ok := key.(string)
		if !ok {
			return true
		}
		if state.MatchMask(mask, checkMask) || state.MatchMask(mask, host) {
			banned = true
			return false
		}
		return true
	})
	return banned
}

// addSession registers a connected client under its session id.
func (s *Server) addSession(c *Client) {
	s.mu.Lock()
	s.sessions[c.id] = c
	s.mu.Unlock()
}

// removeSession drops a client from the local session table.
func (s *Server) removeSession(c *Client) {
	s.mu.Lock()
	delete(s.sessions, c.id)
	s.mu.Unlock()
}

// sessionByID returns the local client owning a session id, or nil if
// the session lives on another server (or is gone).
func (s *Server) sessionByID(id string) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// localSessions returns a snapshot of the connected clients.
func (s *Server) localSessions() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Client, 0, len(s.sessions))
	for _, c := range s.sessions {
		out = append(out, c)
	}
	return out
}

// notifyOperators sends a server notice to every local session whose
// user holds the operator mode.
func (s *Server) notifyOperators(text string) {
	for _, c := range s.localSessions() {
		u, ok := s.store.UserBySession(c.id)
		if !ok || !strings.ContainsRune(u.Modes, 'o') {
			continue
		}
		c.sendMessage("NOTICE", u.Nick, "*** "+text)
	}
}

func (s *Server) proposalTimeout() time.Duration {
	ms := s.config.Cluster.ProposalTimeoutMS
	if ms <= 0 {
		ms = 10000
	}
	return time.Duration(ms) * time.Millisecond
}

// Stop stops the IRC server
func (s *Server) Stop() error {
	log.Printf("Stopping IRC server...")

	close(s.shutdown)

	for _, client := range s.localSessions() {
		client.sendMessage("ERROR", "Server shutting down")
		client.conn.Close()
	}
	s.mu.Lock()
	s.sessions = make(map[string]*Client)
	s.mu.Unlock()

	if s.banlist != nil {
		s.banlist.Stop()
	}
	s.banned.Stop()

	var errMsgs []string

	if err := s.StopIRCServer(); err != nil {
		errMsgs = append(errMsgs, fmt.Sprintf("error stopping IRC server: %v", err))
	}

	if err := s.StopTLSServer(); err != nil {
		errMsgs = append(errMsgs, fmt.Sprintf("error stopping TLS server: %v", err))
	}

	s.stopCluster()

	if len(errMsgs) > 0 {
		return fmt.Errorf("errors during shutdown: %s", strings.Join(errMsgs, "; "))
	}

	log.Printf("IRC server completely stopped")
	return nil
}

// generateSelfSignedCert generates a self-signed certificate and key
func (s *Server) generateSelfSignedCert() (*tls.Certificate, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(365 * 24 * time.Hour)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{s.config.Server.Network},
			CommonName:   s.config.Server.Name,
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{s.config.Server.Name},
	}

	if ip := net.ParseIP(s.config.Server.Host); ip != nil {
		template.IPAddresses = append(template.IPAddresses, ip)
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert := &tls.Certificate{
		Certificate: [][]byte{derBytes},
		PrivateKey:  privateKey,
	}

	return cert, nil
}

// StartTLSServer starts the TLS IRC listener component
func (s *Server) StartTLSServer() error {
	var err error

	if s.tlsListener != nil {
		return nil
	}

	if !s.config.TLS.Enabled {
		log.Println("TLS IRC Server not started (disabled)")
		return nil
	}

	var tlsConfig *tls.Config

	if s.config.TLS.Cert != "" && s.config.TLS.Key != "" {
		cert, err := tls.LoadX509KeyPair(s.config.TLS.Cert, s.config.TLS.Key)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		log.Printf("Using TLS certificate from %s and key from %s", s.config.TLS.Cert, s.config.TLS.Key)
	} else {
		log.Println("No TLS certificate provided, generating a self-signed certificate")
		cert, err := s.generateSelfSignedCert()
		if err != nil {
			return fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{*cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	s.tlsConfig = tlsConfig

	s.tlsListener, err = tls.Listen("tcp", s.config.GetTLSListenAddress(), tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to start TLS IRC listener: %w", err)
	}
	log.Printf("TLS IRC Server started on %s", s.tlsListener.Addr().String())

	go s.acceptConnections(s.tlsListener, true)

	return nil
}

// StopTLSServer stops the TLS IRC listener component
func (s *Server) StopTLSServer() error {
	if s.tlsListener != nil {
		err := s.tlsListener.Close()
		s.tlsListener = nil
		if err != nil {
			return fmt.Errorf("failed to stop TLS IRC listener: %w", err)
		}
		log.Println("TLS IRC Server stopped")
	}
	return nil
}
