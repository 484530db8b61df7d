package simnet

import (
	"container/heap"
	"fmt"
	"strings"
	"time"

	"github.com/khanh101/paxoskv/pkg/paxos"
)

const (
	// LINK_DELAY - virtual time for one network hop
	LINK_DELAY = 1 * time.Nanosecond
	// TICK_INTERVAL - virtual delivery delay for self-addressed timer
	// messages; long enough that an undisturbed round trip beats the timer
	TICK_INTERVAL = 500 * time.Nanosecond
)

// Epoch - base of virtual time
var Epoch = time.Unix(0, 0).UTC()

// ScheduledMessage - one in-flight message, ordered by virtual delivery time
type ScheduledMessage struct {
	At   time.Time
	From paxos.Addr
	To   paxos.Addr
	Msg  paxos.Rpc

	seq uint64 // deterministic tie-break within one run
}

type messageQueue []*ScheduledMessage

func (q messageQueue) Len() int { return len(q) }

func (q messageQueue) Less(i, j int) bool {
	if !q[i].At.Equal(q[j].At) {
		return q[i].At.Before(q[j].At)
	}
	return q[i].seq < q[j].seq
}

func (q messageQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *messageQueue) Push(x any) { *q = append(*q, x.(*ScheduledMessage)) }

func (q *messageQueue) Pop() any {
	old := *q
	n := len(old)
	sm := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return sm
}

// Invocation - a client operation entering the system, with the command's
// request identifier already assigned
type Invocation struct {
	At  time.Time
	Cmd paxos.Command
}

// Response - a client-observed response
type Response struct {
	At  time.Time
	Res paxos.ClientResponse
}

// Cluster - deterministic discrete-event network. One message is processed
// to completion before the next is dequeued; no two roles ever run
// concurrently within a run, so a run is reproducible from its seed.
type Cluster struct {
	peers     map[paxos.Addr]paxos.Reactor
	proposers map[paxos.Addr]*paxos.Proposer
	acceptors map[paxos.Addr]*paxos.Acceptor

	inFlight messageQueue
	now      time.Time
	seq      uint64

	Invocations []Invocation
	Responses   []Response
}

func NewCluster() *Cluster {
	return &Cluster{
		peers:     make(map[paxos.Addr]paxos.Reactor),
		proposers: make(map[paxos.Addr]*paxos.Proposer),
		acceptors: make(map[paxos.Addr]*paxos.Acceptor),
		now:       Epoch,
	}
}

func (c *Cluster) AddClient(addr paxos.Addr, client *paxos.Client) {
	c.peers[addr] = client
}

func (c *Cluster) AddProposer(addr paxos.Addr, proposer *paxos.Proposer) {
	c.peers[addr] = proposer
	c.proposers[addr] = proposer
}

func (c *Cluster) AddAcceptor(addr paxos.Addr, acceptor *paxos.Acceptor) {
	c.peers[addr] = acceptor
	c.acceptors[addr] = acceptor
}

// Proposers - typed view for post-run agreement checks
func (c *Cluster) Proposers() map[paxos.Addr]*paxos.Proposer {
	return c.proposers
}

// Schedule - place a message into the virtual network
func (c *Cluster) Schedule(at time.Time, from, to paxos.Addr, msg paxos.Rpc) {
	heap.Push(&c.inFlight, &ScheduledMessage{At: at, From: from, To: to, Msg: msg, seq: c.seq})
	c.seq++
}

func isClientAddr(addr paxos.Addr) bool {
	return strings.HasPrefix(string(addr), "client:")
}

// Step - deliver the earliest scheduled message and re-schedule its effects.
// Responses reaching a client address are recorded as history; timer effects
// are delayed by TICK_INTERVAL, everything else by one LINK_DELAY.
func (c *Cluster) Step() bool {
	if c.inFlight.Len() == 0 {
		return false
	}
	sm := heap.Pop(&c.inFlight).(*ScheduledMessage)
	c.now = sm.At

	if res, ok := sm.Msg.(*paxos.ClientResponse); ok && isClientAddr(sm.To) {
		c.Responses = append(c.Responses, Response{At: sm.At, Res: *res})
	}

	node, ok := c.peers[sm.To]
	if !ok {
		return true
	}
	effects := node.Receive(sm.At, sm.From, sm.Msg)
	if _, ok := sm.Msg.(*paxos.Submit); ok {
		// the client assigned the request identifier just now; record the
		// invocation off the outgoing request
		for _, e := range effects {
			if req, ok := e.Msg.(*paxos.ClientRequest); ok {
				c.Invocations = append(c.Invocations, Invocation{At: sm.At, Cmd: req.Cmd})
				break
			}
		}
	}
	for _, e := range effects {
		delay := LINK_DELAY
		if paxos.IsTimer(e.Msg) {
			delay = TICK_INTERVAL
		}
		c.Schedule(sm.At.Add(delay), sm.To, e.To, e.Msg)
	}
	return true
}

// Run - drive the simulation until the event queue drains. Retries are
// timer-driven and bounded, so every generated run quiesces; exceeding
// maxSteps is treated as a bug, not a slow run.
func (c *Cluster) Run(maxSteps int) error {
	for steps := 0; c.Step(); steps++ {
		if steps > maxSteps {
			return fmt.Errorf("simulation did not quiesce within %d steps", maxSteps)
		}
	}
	return nil
}

// Now - current virtual time
func (c *Cluster) Now() time.Time {
	return c.now
}

// CheckAgreement - at most one command is ever decided per slot. A conflict
// here is a Paxos safety violation and fails the harness loudly.
func (c *Cluster) CheckAgreement() error {
	decided := make(map[paxos.Slot]paxos.Command)
	for addr, p := range c.proposers {
		for slot, cmd := range p.Log() {
			prev, ok := decided[slot]
			if !ok {
				decided[slot] = cmd
				continue
			}
			if !prev.Equal(cmd) {
				return fmt.Errorf("slot %d decided twice: %+v vs %+v (proposer %s)", slot, prev, cmd, addr)
			}
		}
	}
	return nil
}
