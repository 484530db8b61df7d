package paxos

import (
	"strings"
	"testing"

	"github.com/khanh101/paxoskv/pkg/kvstore"
)

// testNet - synchronous in-process delivery of effect chains. Timer effects
// are dropped; tests that exercise timeouts deliver ticks by hand.
type testNet struct {
	reactors  map[Addr]Reactor
	responses []ClientResponse
}

func newTestNet() *testNet {
	return &testNet{reactors: make(map[Addr]Reactor)}
}

func (n *testNet) add(addr Addr, r Reactor) {
	n.reactors[addr] = r
}

func (n *testNet) deliver(from, to Addr, msg Rpc) {
	type item struct {
		from, to Addr
		msg      Rpc
	}
	queue := []item{{from: from, to: to, msg: msg}}
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		if strings.HasPrefix(string(d.to), "client:") {
			if res, ok := d.msg.(*ClientResponse); ok {
				n.responses = append(n.responses, *res)
			}
			continue
		}
		r, ok := n.reactors[d.to]
		if !ok {
			continue
		}
		for _, e := range r.Receive(testTime, d.from, d.msg) {
			if IsTimer(e.Msg) {
				continue
			}
			queue = append(queue, item{from: d.to, to: e.To, msg: e.Msg})
		}
	}
}

func newTestCluster(proposerId ProposerId, nAcceptors int) (*testNet, *Proposer, []*Acceptor) {
	net := newTestNet()
	acceptorAddrs := make([]Addr, nAcceptors)
	acceptors := make([]*Acceptor, nAcceptors)
	for i := range acceptors {
		acceptorAddrs[i] = Addr("acceptor:" + string(rune('0'+i)))
		acceptors[i] = NewAcceptor(kvstore.NewMemStore[Slot, SlotState]())
		net.add(acceptorAddrs[i], acceptors[i])
	}
	self := Addr("proposer:0")
	p := NewProposer(proposerId, self, acceptorAddrs)
	net.add(self, p)
	return net, p, acceptors
}

func TestProposerDecidesCommand(t *testing.T) {
	net, p, acceptors := newTestCluster(0, 3)
	cmd := testCommand("client:0", 1, "a")

	net.deliver("client:0", "proposer:0", &ClientRequest{Cmd: cmd})

	if len(net.responses) != 1 {
		t.Fatalf("expected one response, got %d", len(net.responses))
	}
	res := net.responses[0]
	if res.Id != cmd.Id || res.Outcome != OutcomeOk {
		t.Errorf("unexpected response %+v", res)
	}
	if decided, ok := p.Log()[0]; !ok || !decided.Equal(cmd) {
		t.Errorf("slot 0 not decided with the client command: %+v", p.Log())
	}
	for i, a := range acceptors {
		st := a.SlotState(0)
		if st.Value == nil || !st.Value.Equal(cmd) {
			t.Errorf("acceptor %d did not accept the decided command: %+v", i, st)
		}
	}
}

func TestProposerServesGetFromAppliedState(t *testing.T) {
	net, _, _ := newTestCluster(0, 3)

	net.deliver("client:0", "proposer:0", &ClientRequest{Cmd: testCommand("client:0", 1, "a")})
	net.deliver("client:0", "proposer:0", &ClientRequest{Cmd: Command{
		Id: ReqId{Client: "client:0", Seq: 2},
		Op: OpGet,
	}})

	if len(net.responses) != 2 {
		t.Fatalf("expected two responses, got %d", len(net.responses))
	}
	get := net.responses[1]
	if get.Outcome != OutcomeOk || get.Value == nil || *get.Value != "a" {
		t.Errorf("get should observe the decided set: %+v", get)
	}
}

func TestProposerGetAbsentNotFound(t *testing.T) {
	net, _, _ := newTestCluster(0, 3)
	net.deliver("client:0", "proposer:0", &ClientRequest{Cmd: Command{
		Id: ReqId{Client: "client:0", Seq: 1},
		Op: OpGet,
	}})
	if res := net.responses[0]; res.Outcome != OutcomeNotFound {
		t.Errorf("get on the absent register should be not-found: %+v", res)
	}
}

func TestProposerCasMismatchLeavesValue(t *testing.T) {
	net, _, _ := newTestCluster(0, 3)

	net.deliver("client:0", "proposer:0", &ClientRequest{Cmd: testCommand("client:0", 1, "z")})
	net.deliver("client:0", "proposer:0", &ClientRequest{Cmd: Command{
		Id:       ReqId{Client: "client:0", Seq: 2},
		Op:       OpCas,
		Expected: strPtr("a"),
		Value:    strPtr("b"),
	}})
	net.deliver("client:0", "proposer:0", &ClientRequest{Cmd: Command{
		Id: ReqId{Client: "client:0", Seq: 3},
		Op: OpGet,
	}})

	cas := net.responses[1]
	if cas.Outcome != OutcomeCasMismatch {
		t.Errorf("cas with wrong expectation should mismatch: %+v", cas)
	}
	get := net.responses[2]
	if get.Outcome != OutcomeOk || get.Value == nil || *get.Value != "z" {
		t.Errorf("mismatched cas must leave the value alone: %+v", get)
	}
}

func TestProposerIdempotentRedelivery(t *testing.T) {
	net, p, _ := newTestCluster(0, 3)
	cmd := testCommand("client:0", 1, "a")

	net.deliver("client:0", "proposer:0", &ClientRequest{Cmd: cmd})
	net.deliver("client:0", "proposer:0", &ClientRequest{Cmd: cmd})

	if len(net.responses) != 2 {
		t.Fatalf("expected two responses, got %d", len(net.responses))
	}
	if net.responses[0] != net.responses[1] {
		t.Errorf("redelivery answered differently: %+v vs %+v", net.responses[0], net.responses[1])
	}
	if len(p.Log()) != 1 {
		t.Errorf("redelivery must not consume another slot: %d decided", len(p.Log()))
	}
}

func TestProposerAdoptsPreviouslyAcceptedValue(t *testing.T) {
	net, p, acceptors := newTestCluster(7, 3)

	// a competing proposer got a minority accept in before vanishing
	other := testCommand("client:9", 1, "theirs")
	stale := composeBallot(1, 1)
	acceptors[0].Receive(testTime, "proposer:1", &Prepare{Ballot: stale, Slot: 0})
	acceptors[0].Receive(testTime, "proposer:1", &Accept{Ballot: stale, Slot: 0, Cmd: other})

	mine := testCommand("client:0", 1, "mine")
	net.deliver("client:0", "proposer:0", &ClientRequest{Cmd: mine})

	log := p.Log()
	if decided, ok := log[0]; !ok || !decided.Equal(other) {
		t.Fatalf("slot 0 must adopt the previously accepted value: %+v", log)
	}
	if decided, ok := log[1]; !ok || !decided.Equal(mine) {
		t.Fatalf("own command must be retried on the next slot: %+v", log)
	}
	// both commands answered
	if len(net.responses) != 2 {
		t.Errorf("expected responses for both commands, got %+v", net.responses)
	}
}

func TestProposerRetriesPastHigherBallot(t *testing.T) {
	net, p, acceptors := newTestCluster(0, 3)

	// all acceptors promised a higher ballot already
	high := composeBallot(5, 1)
	for _, a := range acceptors {
		a.Receive(testTime, "proposer:1", &Prepare{Ballot: high, Slot: 0})
	}

	cmd := testCommand("client:0", 1, "a")
	net.deliver("client:0", "proposer:0", &ClientRequest{Cmd: cmd})

	if len(net.responses) != 1 || net.responses[0].Outcome != OutcomeOk {
		t.Fatalf("proposer should win after raising its ballot: %+v", net.responses)
	}
	if decided := p.Log()[0]; !decided.Equal(cmd) {
		t.Errorf("slot 0 decided wrong command: %+v", decided)
	}
}

func TestProposerGivesUpAfterMaxRounds(t *testing.T) {
	// acceptors that never answer: every attempt dies on its tick
	net := newTestNet()
	self := Addr("proposer:0")
	p := NewProposer(0, self, []Addr{"acceptor:0", "acceptor:1", "acceptor:2"})
	net.add(self, p)

	cmd := testCommand("client:0", 1, "a")
	effects := p.Receive(testTime, "client:0", &ClientRequest{Cmd: cmd})
	for i := 0; i <= PROPOSER_MAX_ROUNDS; i++ {
		var tick *ProposerTick
		for _, e := range effects {
			if m, ok := e.Msg.(*ProposerTick); ok {
				tick = m
			}
		}
		if tick == nil {
			break
		}
		effects = p.Receive(testTime, self, tick)
	}

	var last Rpc
	for _, e := range effects {
		if e.To == "client:0" {
			last = e.Msg
		}
	}
	res, ok := last.(*ClientResponse)
	if !ok {
		t.Fatalf("expected a client response after exhausting rounds, got %T", last)
	}
	if res.Outcome != OutcomeUnavailable {
		t.Errorf("persistent timeout should surface unavailable: %+v", res)
	}
}

func TestProposerIgnoresStaleMessages(t *testing.T) {
	net, p, _ := newTestCluster(0, 3)
	net.deliver("client:0", "proposer:0", &ClientRequest{Cmd: testCommand("client:0", 1, "a")})

	// replays from the finished attempt must not disturb the proposer
	stale := composeBallot(1, 0)
	if effects := p.Receive(testTime, "acceptor:0", &Promise{Ballot: stale, Slot: 0}); len(effects) != 0 {
		t.Errorf("stale promise produced effects: %+v", effects)
	}
	if effects := p.Receive(testTime, "acceptor:0", &Accepted{Ballot: stale, Slot: 0}); len(effects) != 0 {
		t.Errorf("stale accepted produced effects: %+v", effects)
	}
	if effects := p.Receive(testTime, "proposer:0", &ProposerTick{Slot: 0, Ballot: stale}); len(effects) != 0 {
		t.Errorf("stale tick produced effects: %+v", effects)
	}
}
