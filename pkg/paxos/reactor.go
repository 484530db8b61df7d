package paxos

import "time"

// Envelope - one outbound effect of a Receive call
type Envelope struct {
	To  Addr
	Msg Rpc
}

// Reactor - uniform entry point of every role. A reactor mutates only its
// own state and performs no I/O; all communication is the returned effects.
// This is what lets the same role run over a real transport or inside the
// simulated clock.
type Reactor interface {
	Receive(at time.Time, from Addr, msg Rpc) []Envelope
}
