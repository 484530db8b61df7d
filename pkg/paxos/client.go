package paxos

import (
	"time"
)

// CLIENT_MAX_SENDS bounds how many times one request is (re)sent before the
// client surfaces "unavailable".
const CLIENT_MAX_SENDS = 4

type outstanding struct {
	cmd   Command
	sends int
	next  int // proposer to try on the next resend
}

// Client - submits operations to the proposer set. Each operation gets a
// fresh request identifier and is resent unchanged on timeout, rotating over
// proposers, so the pipeline's dedup can absorb duplicate deliveries.
type Client struct {
	self      Addr
	proposers []Addr
	seq       uint64
	pending   map[uint64]*outstanding

	// Notify, when set, observes every retired request's final response.
	// Real deployments block on it; the simulator reads responses off the
	// virtual network instead.
	Notify func(ClientResponse)
}

func NewClient(self Addr, proposers []Addr) *Client {
	return &Client{
		self:      self,
		proposers: proposers,
		pending:   make(map[uint64]*outstanding),
	}
}

func (c *Client) Receive(at time.Time, from Addr, msg Rpc) []Envelope {
	switch m := msg.(type) {
	case *Submit:
		c.seq++
		out := &outstanding{
			cmd: Command{
				Id:       ReqId{Client: c.self, Seq: c.seq},
				Op:       m.Op,
				Expected: m.Expected,
				Value:    m.Value,
			},
			next: int(c.seq) % len(c.proposers),
		}
		c.pending[c.seq] = out
		return c.send(out)
	case *ClientResponse:
		out, ok := c.pending[m.Id.Seq]
		if !ok || m.Id.Client != c.self {
			return nil
		}
		if m.Outcome == OutcomeUnavailable && out.sends < CLIENT_MAX_SENDS {
			// the proposer gave up on this attempt; try another one
			return c.send(out)
		}
		delete(c.pending, m.Id.Seq)
		if c.Notify != nil {
			c.Notify(*m)
		}
		return nil
	case *ClientTick:
		out, ok := c.pending[m.Seq]
		if !ok || out.sends != m.Send {
			return nil // already answered, or a newer send re-armed the timer
		}
		if out.sends >= CLIENT_MAX_SENDS {
			delete(c.pending, m.Seq)
			res := ClientResponse{Id: out.cmd.Id, Outcome: OutcomeUnavailable}
			if c.Notify != nil {
				c.Notify(res)
			}
			// also surface the failure on the network so the simulated
			// cluster records it as this operation's response
			return []Envelope{{To: c.self, Msg: &res}}
		}
		return c.send(out)
	}
	return nil
}

// NextSeq - the identifier the next Submit will be assigned. Callers that
// correlate Notify callbacks with submissions read this before submitting,
// under their own serialization.
func (c *Client) NextSeq() uint64 {
	return c.seq + 1
}

func (c *Client) send(out *outstanding) []Envelope {
	proposer := c.proposers[out.next%len(c.proposers)]
	out.next++
	out.sends++
	return []Envelope{
		{To: proposer, Msg: &ClientRequest{Cmd: out.cmd}},
		{To: c.self, Msg: &ClientTick{Seq: out.cmd.Id.Seq, Send: out.sends}},
	}
}
