package paxos

import (
	"time"

	"github.com/khanh101/paxoskv/pkg/kvstore"
)

// SlotState - per-slot acceptor state. Promised is the highest ballot this
// acceptor will still answer; Accepted/Value is the last accepted proposal.
type SlotState struct {
	Promised Ballot   `json:"promised"`
	Accepted Ballot   `json:"accepted"`
	Value    *Command `json:"value,omitempty"`
}

// Acceptor - answers Prepare/Accept per the Paxos safety rules. This is the
// entire safety-critical surface: it must never act on a ballot lower than
// what it already promised for the slot. Slot state sits behind a
// kvstore.Store so the same acceptor runs on the in-memory store in
// simulation and on the badger-backed store in deployment, where the state
// is durable before the reply leaves the Update closure.
type Acceptor struct {
	slots kvstore.Store[Slot, SlotState]
}

func NewAcceptor(slots kvstore.Store[Slot, SlotState]) *Acceptor {
	return &Acceptor{slots: slots}
}

func getSlotState(txn kvstore.Txn[Slot, SlotState], slot Slot) SlotState {
	st, ok := txn.Get(slot)
	if !ok {
		return SlotState{}
	}
	return st
}

// SlotState - read-only view, used by tests and the simulation harness
func (a *Acceptor) SlotState(slot Slot) SlotState {
	return a.slots.Update(func(txn kvstore.Txn[Slot, SlotState]) any {
		return getSlotState(txn, slot)
	}).(SlotState)
}

func (a *Acceptor) Receive(at time.Time, from Addr, msg Rpc) []Envelope {
	switch m := msg.(type) {
	case *Prepare:
		res := a.slots.Update(func(txn kvstore.Txn[Slot, SlotState]) any {
			st := getSlotState(txn, m.Slot)
			if m.Ballot < st.Promised {
				return &PrepareRejected{Ballot: m.Ballot, Slot: m.Slot, Promised: st.Promised}
			}
			st.Promised = m.Ballot
			txn.Set(m.Slot, st)
			return &Promise{Ballot: m.Ballot, Slot: m.Slot, Accepted: st.Accepted, Value: st.Value}
		}).(Rpc)
		return []Envelope{{To: from, Msg: res}}
	case *Accept:
		res := a.slots.Update(func(txn kvstore.Txn[Slot, SlotState]) any {
			st := getSlotState(txn, m.Slot)
			if m.Ballot < st.Promised {
				return &AcceptRejected{Ballot: m.Ballot, Slot: m.Slot, Promised: st.Promised}
			}
			cmd := m.Cmd
			txn.Set(m.Slot, SlotState{Promised: m.Ballot, Accepted: m.Ballot, Value: &cmd})
			return &Accepted{Ballot: m.Ballot, Slot: m.Slot}
		}).(Rpc)
		return []Envelope{{To: from, Msg: res}}
	}
	return nil
}
