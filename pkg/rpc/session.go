package rpc

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khanh101/paxoskv/pkg/paxos"
)

// Session - a blocking facade over one Client reactor: Do submits an
// operation and waits for its final response. Each session gets a
// uuid-tagged client address so any number of sessions can share a host.
type Session struct {
	submitMu sync.Mutex // serializes submissions; never held across notify
	mu       sync.Mutex // guards waiters
	node     *Node
	addr     paxos.Addr
	client   *paxos.Client
	waiters  map[uint64]chan paxos.ClientResponse
	timeout  time.Duration
}

func NewSession(node *Node, hostport string, proposers []paxos.Addr, timeout time.Duration) *Session {
	addr := paxos.Addr(fmt.Sprintf("client:%s/%s", hostport, uuid.NewString()))
	s := &Session{
		node:    node,
		addr:    addr,
		client:  paxos.NewClient(addr, proposers),
		waiters: make(map[uint64]chan paxos.ClientResponse),
		timeout: timeout,
	}
	s.client.Notify = s.notify
	node.Register(addr, s.client)
	return s
}

func (s *Session) notify(res paxos.ClientResponse) {
	s.mu.Lock()
	ch, ok := s.waiters[res.Id.Seq]
	delete(s.waiters, res.Id.Seq)
	s.mu.Unlock()
	if ok {
		ch <- res
	}
}

// Do - run one operation through consensus and return its decided response
func (s *Session) Do(op paxos.Op, expected, value *string) (paxos.ClientResponse, error) {
	ch := make(chan paxos.ClientResponse, 1)
	s.submitMu.Lock()
	seq := s.client.NextSeq()
	s.mu.Lock()
	s.waiters[seq] = ch
	s.mu.Unlock()
	s.node.Deliver(s.addr, s.addr, &paxos.Submit{Op: op, Expected: expected, Value: value})
	s.submitMu.Unlock()

	select {
	case res := <-ch:
		return res, nil
	case <-time.After(s.timeout):
		s.mu.Lock()
		delete(s.waiters, seq)
		s.mu.Unlock()
		return paxos.ClientResponse{}, fmt.Errorf("request %d timed out", seq)
	}
}
