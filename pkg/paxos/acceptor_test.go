package paxos

import (
	"testing"
	"time"

	"github.com/khanh101/paxoskv/pkg/kvstore"
)

var testTime = time.Unix(0, 0)

func strPtr(s string) *string {
	return &s
}

func newTestAcceptor() *Acceptor {
	return NewAcceptor(kvstore.NewMemStore[Slot, SlotState]())
}

func testCommand(client Addr, seq uint64, value string) Command {
	return Command{
		Id:    ReqId{Client: client, Seq: seq},
		Op:    OpSet,
		Value: strPtr(value),
	}
}

func TestAcceptorPromise(t *testing.T) {
	a := newTestAcceptor()
	b := composeBallot(1, 0)

	effects := a.Receive(testTime, "proposer:0", &Prepare{Ballot: b, Slot: 0})
	if len(effects) != 1 || effects[0].To != "proposer:0" {
		t.Fatalf("expected one reply to proposer:0, got %+v", effects)
	}
	promise, ok := effects[0].Msg.(*Promise)
	if !ok {
		t.Fatalf("expected Promise, got %T", effects[0].Msg)
	}
	if promise.Ballot != b || promise.Slot != 0 {
		t.Errorf("promise echoes wrong ballot/slot: %+v", promise)
	}
	if promise.Accepted != 0 || promise.Value != nil {
		t.Errorf("fresh slot should have no accepted value: %+v", promise)
	}
}

func TestAcceptorRejectsLowerPrepare(t *testing.T) {
	a := newTestAcceptor()
	high := composeBallot(5, 1)
	low := composeBallot(2, 0)

	a.Receive(testTime, "proposer:1", &Prepare{Ballot: high, Slot: 0})
	effects := a.Receive(testTime, "proposer:0", &Prepare{Ballot: low, Slot: 0})
	rej, ok := effects[0].Msg.(*PrepareRejected)
	if !ok {
		t.Fatalf("expected PrepareRejected, got %T", effects[0].Msg)
	}
	if rej.Promised != high {
		t.Errorf("rejection should carry the promised ballot %d, got %d", high, rej.Promised)
	}
	// the low prepare must not have moved the promise backwards
	if st := a.SlotState(0); st.Promised != high {
		t.Errorf("promised ballot regressed to %d", st.Promised)
	}
}

func TestAcceptorRejectsLowerAccept(t *testing.T) {
	a := newTestAcceptor()
	high := composeBallot(5, 1)
	low := composeBallot(2, 0)
	cmd := testCommand("client:0", 1, "x")

	a.Receive(testTime, "proposer:1", &Prepare{Ballot: high, Slot: 3})
	effects := a.Receive(testTime, "proposer:0", &Accept{Ballot: low, Slot: 3, Cmd: cmd})
	rej, ok := effects[0].Msg.(*AcceptRejected)
	if !ok {
		t.Fatalf("expected AcceptRejected, got %T", effects[0].Msg)
	}
	if rej.Promised != high {
		t.Errorf("rejection should carry promised ballot %d, got %d", high, rej.Promised)
	}
	if st := a.SlotState(3); st.Value != nil {
		t.Errorf("rejected accept must not store a value: %+v", st)
	}
}

func TestAcceptorAcceptRecordsValue(t *testing.T) {
	a := newTestAcceptor()
	b := composeBallot(1, 0)
	cmd := testCommand("client:0", 1, "x")

	a.Receive(testTime, "proposer:0", &Prepare{Ballot: b, Slot: 0})
	effects := a.Receive(testTime, "proposer:0", &Accept{Ballot: b, Slot: 0, Cmd: cmd})
	if _, ok := effects[0].Msg.(*Accepted); !ok {
		t.Fatalf("expected Accepted, got %T", effects[0].Msg)
	}
	st := a.SlotState(0)
	if st.Accepted != b || st.Value == nil || !st.Value.Equal(cmd) {
		t.Errorf("accept did not record ballot/value: %+v", st)
	}

	// a later prepare must report the accepted proposal
	higher := composeBallot(2, 1)
	effects = a.Receive(testTime, "proposer:1", &Prepare{Ballot: higher, Slot: 0})
	promise := effects[0].Msg.(*Promise)
	if promise.Accepted != b || promise.Value == nil || !promise.Value.Equal(cmd) {
		t.Errorf("promise should carry previously accepted proposal: %+v", promise)
	}
}

func TestAcceptorEqualBallotIsIdempotent(t *testing.T) {
	a := newTestAcceptor()
	b := composeBallot(1, 0)

	a.Receive(testTime, "proposer:0", &Prepare{Ballot: b, Slot: 0})
	effects := a.Receive(testTime, "proposer:0", &Prepare{Ballot: b, Slot: 0})
	if _, ok := effects[0].Msg.(*Promise); !ok {
		t.Fatalf("re-prepare at the promised ballot should still promise, got %T", effects[0].Msg)
	}
	cmd := testCommand("client:0", 1, "x")
	a.Receive(testTime, "proposer:0", &Accept{Ballot: b, Slot: 0, Cmd: cmd})
	effects = a.Receive(testTime, "proposer:0", &Accept{Ballot: b, Slot: 0, Cmd: cmd})
	if _, ok := effects[0].Msg.(*Accepted); !ok {
		t.Fatalf("duplicate accept should still be accepted, got %T", effects[0].Msg)
	}
}

func TestAcceptorPromiseMonotonic(t *testing.T) {
	a := newTestAcceptor()
	ballots := []Ballot{
		composeBallot(1, 0), composeBallot(3, 1), composeBallot(2, 0),
		composeBallot(3, 2), composeBallot(1, 1), composeBallot(7, 0),
	}
	seen := Ballot(0)
	for _, b := range ballots {
		a.Receive(testTime, "proposer:0", &Prepare{Ballot: b, Slot: 0})
		st := a.SlotState(0)
		if st.Promised < seen {
			t.Fatalf("promised ballot decreased: %d after %d", st.Promised, seen)
		}
		seen = st.Promised
	}
}

func TestAcceptorSlotsAreIndependent(t *testing.T) {
	a := newTestAcceptor()
	high := composeBallot(9, 0)
	low := composeBallot(1, 1)

	a.Receive(testTime, "proposer:0", &Prepare{Ballot: high, Slot: 0})
	effects := a.Receive(testTime, "proposer:1", &Prepare{Ballot: low, Slot: 1})
	if _, ok := effects[0].Msg.(*Promise); !ok {
		t.Fatalf("slot 1 should be unaffected by slot 0's promise, got %T", effects[0].Msg)
	}
}
