package paxos

// EqualValue - nil means "no value set"
func EqualValue(a *string, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Apply - single-register command semantics, shared by the replicas and by
// the linearizability checker so both model exactly the same behavior.
// An operation-level failure (not-found, cas-mismatch) is a successfully
// decided outcome, not a protocol error.
func Apply(state *string, cmd Command) (*string, ClientResponse) {
	res := ClientResponse{Id: cmd.Id, Outcome: OutcomeOk}
	switch cmd.Op {
	case OpGet:
		if state == nil {
			res.Outcome = OutcomeNotFound
		} else {
			res.Value = state
		}
	case OpSet:
		state = cmd.Value
	case OpCas:
		if EqualValue(state, cmd.Expected) {
			state = cmd.Value
		} else {
			res.Outcome = OutcomeCasMismatch
			res.Value = state
		}
	case OpDel:
		if state == nil {
			res.Outcome = OutcomeNotFound
		} else {
			state = nil
		}
	}
	return state, res
}
