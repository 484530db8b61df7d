package simnet

import (
	"sort"
	"time"

	"github.com/khanh101/paxoskv/pkg/paxos"
)

// Operation - one client operation with its real-time span. Res is the first
// decided response the client observed; nil means the operation never got a
// decided answer (still pending, or surfaced "unavailable") and is
// indeterminate: it may have taken effect at any point after Invoke, or not
// at all.
type Operation struct {
	Cmd    paxos.Command
	Invoke time.Time
	Return time.Time // zero while indeterminate
	Res    *paxos.ClientResponse
}

// BuildHistory - pair invocations with the first decided response per
// request identifier. Later duplicate responses carry the same decided
// result and are dropped; "unavailable" resolves nothing.
func BuildHistory(invocations []Invocation, responses []Response) []Operation {
	byId := make(map[paxos.ReqId]*Operation, len(invocations))
	history := make([]Operation, 0, len(invocations))
	for _, inv := range invocations {
		history = append(history, Operation{Cmd: inv.Cmd, Invoke: inv.At})
	}
	for i := range history {
		byId[history[i].Cmd.Id] = &history[i]
	}
	sorted := append([]Response(nil), responses...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })
	for _, r := range sorted {
		op, ok := byId[r.Res.Id]
		if !ok || op.Res != nil || r.Res.Outcome == paxos.OutcomeUnavailable {
			continue
		}
		res := r.Res
		op.Res = &res
		op.Return = r.At
	}
	return history
}

type registerState struct {
	present bool
	value   string
}

func stateOf(v *string) registerState {
	if v == nil {
		return registerState{}
	}
	return registerState{present: true, value: *v}
}

func (s registerState) ptr() *string {
	if !s.present {
		return nil
	}
	v := s.value
	return &v
}

type memoKey struct {
	mask  uint64
	state registerState
}

// Linearizable - Wing&Gong style history check over the single register:
// search for a total order of operations that respects real time (an
// operation cannot be ordered before one that returned before it was
// invoked) and in which every decided response equals the result of
// replaying the prefix through paxos.Apply. Indeterminate operations may be
// placed anywhere after their invocation or left out entirely.
func Linearizable(history []Operation) bool {
	if len(history) > 64 {
		panic("history too large for bitmask search")
	}
	var determinate uint64
	for i, op := range history {
		if op.Res != nil {
			determinate |= 1 << i
		}
	}
	visited := make(map[memoKey]struct{})

	var search func(mask uint64, state registerState) bool
	search = func(mask uint64, state registerState) bool {
		if mask&determinate == determinate {
			return true
		}
		key := memoKey{mask: mask, state: state}
		if _, ok := visited[key]; ok {
			return false
		}
		visited[key] = struct{}{}

		for i := range history {
			if mask&(1<<i) != 0 {
				continue
			}
			if !canBeNext(history, mask, i) {
				continue
			}
			op := history[i]
			next, res := paxos.Apply(state.ptr(), op.Cmd)
			if op.Res != nil {
				if res.Outcome != op.Res.Outcome || !paxos.EqualValue(res.Value, op.Res.Value) {
					continue
				}
			}
			if search(mask|1<<i, stateOf(next)) {
				return true
			}
		}
		return false
	}
	return search(0, registerState{})
}

// canBeNext - op i may be linearized next iff no still-unlinearized
// operation returned before i was invoked
func canBeNext(history []Operation, mask uint64, i int) bool {
	for j := range history {
		if j == i || mask&(1<<j) != 0 {
			continue
		}
		if !history[j].Return.IsZero() && history[j].Return.Before(history[i].Invoke) {
			return false
		}
	}
	return true
}
