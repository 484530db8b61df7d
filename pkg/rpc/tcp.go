package rpc

import (
	"net"
	"os"
	"strings"
	"time"

	"github.com/khanh101/paxoskv/pkg/crypt"
	"github.com/khanh101/paxoskv/pkg/paxos"
)

const (
	TCP_TIMEOUT    = 10 * time.Second
	RETRY_INTERVAL = 100 * time.Millisecond
	RPC_KEY_ENV    = "PAXOSKV_RPC_KEY"
)

func getKey() crypt.Key {
	return crypt.NewKey(os.Getenv(RPC_KEY_ENV))
}

// HostOf - peer addresses are routable: "role:host:port[/tag]" dials
// host:port. The tag part distinguishes multiple clients on one host.
func HostOf(addr paxos.Addr) string {
	_, rest, ok := strings.Cut(string(addr), ":")
	if !ok {
		return ""
	}
	host, _, _ := strings.Cut(rest, "/")
	return host
}

// Send - one-way delivery of a single encrypted frame; the actor contract
// tolerates loss, so a failed dial is logged and dropped
func Send(from, to paxos.Addr, msg paxos.Rpc) {
	key := getKey()
	b, err := Marshal(from, to, msg)
	if err != nil {
		log.Errorw("marshal", "to", to, "err", err)
		return
	}
	conn, err := net.Dial("tcp", HostOf(to))
	if err != nil {
		log.Debugw("dial", "to", to, "err", err)
		return
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(TCP_TIMEOUT)); err != nil {
		return
	}
	if err := key.EncryptToWriter(b, conn); err != nil {
		log.Debugw("send", "to", to, "err", err)
	}
}

type TCPServer interface {
	ListenAndServe() error
	Close() error
}

func NewTCPServer(bindAddr string, node *Node) (TCPServer, error) {
	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &tcpServer{
		node:     node,
		listener: listener,
		key:      getKey(),
	}, nil
}

type tcpServer struct {
	node     *Node
	listener net.Listener
	key      crypt.Key
}

func (s *tcpServer) Close() error {
	return s.listener.Close()
}

func (s *tcpServer) handleConn(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(TCP_TIMEOUT)); err != nil {
		return
	}
	b, err := s.key.DecryptFromReader(conn)
	if err != nil {
		log.Debugw("recv", "err", err)
		return
	}
	from, to, msg, err := Unmarshal(b)
	if err != nil {
		log.Errorw("decode", "err", err)
		return
	}
	s.node.Deliver(from, to, msg)
}

func (s *tcpServer) ListenAndServe() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}
