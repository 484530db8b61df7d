package rpc

import (
	"sync"
	"time"

	logging "github.com/ipfs/go-log"

	"github.com/khanh101/paxoskv/pkg/paxos"
)

var log = logging.Logger("paxoskv/rpc")

type delivery struct {
	from paxos.Addr
	to   paxos.Addr
	msg  paxos.Rpc
}

// Node - the real-transport counterpart of the simulated cluster. It owns
// the reactors hosted on this process, delivers inbound messages under one
// lock (one message processed to completion before the next), and executes
// effects: local destinations are delivered inline, timer messages are armed
// on real timers, everything else is handed to send.
type Node struct {
	mu    sync.Mutex
	local map[paxos.Addr]paxos.Reactor
	send  func(from, to paxos.Addr, msg paxos.Rpc)
	retry time.Duration
}

func NewNode(retry time.Duration, send func(from, to paxos.Addr, msg paxos.Rpc)) *Node {
	return &Node{
		local: make(map[paxos.Addr]paxos.Reactor),
		send:  send,
		retry: retry,
	}
}

func (n *Node) Register(addr paxos.Addr, r paxos.Reactor) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.local[addr] = r
}

// Deliver - hand one inbound message to its reactor and run the resulting
// effect chain
func (n *Node) Deliver(from, to paxos.Addr, msg paxos.Rpc) {
	var outbound []delivery
	n.mu.Lock()
	pending := []delivery{{from: from, to: to, msg: msg}}
	for len(pending) > 0 {
		d := pending[0]
		pending = pending[1:]
		r, ok := n.local[d.to]
		if !ok {
			outbound = append(outbound, d)
			continue
		}
		at := time.Now()
		for _, e := range r.Receive(at, d.from, d.msg) {
			if paxos.IsTimer(e.Msg) {
				n.armTimer(d.to, e.To, e.Msg)
				continue
			}
			pending = append(pending, delivery{from: d.to, to: e.To, msg: e.Msg})
		}
	}
	n.mu.Unlock()

	for _, d := range outbound {
		go n.send(d.from, d.to, d.msg)
	}
}

func (n *Node) armTimer(from, to paxos.Addr, msg paxos.Rpc) {
	time.AfterFunc(n.retry, func() {
		n.Deliver(from, to, msg)
	})
}
