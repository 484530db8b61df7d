package paxos

// Addr - peer address, e.g. "client:0", "proposer:1", "acceptor:2"
type Addr string

type Op string

const (
	OpGet Op = "get"
	OpSet Op = "set"
	OpCas Op = "cas"
	OpDel Op = "del"
)

// ReqId - client-assigned request identifier, carried with the command
// through the whole pipeline so duplicate execution is detectable.
type ReqId struct {
	Client Addr   `json:"client"`
	Seq    uint64 `json:"seq"`
}

// Command - one client operation, the unit of replication.
// A nil Value/Expected means "no value set": Del returns the register to
// absent, Cas with nil Expected matches only the absent register, Cas with
// nil Value deletes on match. There is no distinct explicit null.
type Command struct {
	Id       ReqId   `json:"id"`
	Op       Op      `json:"op"`
	Expected *string `json:"expected,omitempty"`
	Value    *string `json:"value,omitempty"`
}

// Equal - request identifiers are unique per operation, so identity of the
// identifier is identity of the command
func (c Command) Equal(other Command) bool {
	return c.Id == other.Id
}

type Outcome string

const (
	OutcomeOk          Outcome = "ok"
	OutcomeNotFound    Outcome = "not-found"
	OutcomeCasMismatch Outcome = "cas-mismatch"
	OutcomeUnavailable Outcome = "unavailable"
)

// Rpc - the closed set of messages exchanged between roles. Every message
// can be processed statelessly with respect to the network: duplication and
// reordering of any Rpc must be tolerated by the receiver.
type Rpc interface {
	isRpc()
}

// Submit - hands a new operation to a Client (from the application in a real
// deployment, from the generated workload in simulation).
type Submit struct {
	Op       Op      `json:"op"`
	Expected *string `json:"expected,omitempty"`
	Value    *string `json:"value,omitempty"`
}

type ClientRequest struct {
	Cmd Command `json:"cmd"`
}

type ClientResponse struct {
	Id      ReqId   `json:"id"`
	Outcome Outcome `json:"outcome"`
	Value   *string `json:"value,omitempty"`
}

type Prepare struct {
	Ballot Ballot `json:"ballot"`
	Slot   Slot   `json:"slot"`
}

// Promise - Accepted/Value report what this acceptor last accepted for the
// slot, zero/nil if nothing.
type Promise struct {
	Ballot   Ballot   `json:"ballot"`
	Slot     Slot     `json:"slot"`
	Accepted Ballot   `json:"accepted"`
	Value    *Command `json:"value,omitempty"`
}

type PrepareRejected struct {
	Ballot   Ballot `json:"ballot"`
	Slot     Slot   `json:"slot"`
	Promised Ballot `json:"promised"`
}

type Accept struct {
	Ballot Ballot  `json:"ballot"`
	Slot   Slot    `json:"slot"`
	Cmd    Command `json:"cmd"`
}

type Accepted struct {
	Ballot Ballot `json:"ballot"`
	Slot   Slot   `json:"slot"`
}

type AcceptRejected struct {
	Ballot   Ballot `json:"ballot"`
	Slot     Slot   `json:"slot"`
	Promised Ballot `json:"promised"`
}

// ClientTick - self-addressed retry timer for an outstanding request.
// Send is the send counter at arm time, so stale ticks are ignored.
type ClientTick struct {
	Seq  uint64 `json:"seq"`
	Send int    `json:"send"`
}

// ProposerTick - self-addressed timeout for an in-flight attempt.
type ProposerTick struct {
	Slot   Slot   `json:"slot"`
	Ballot Ballot `json:"ballot"`
}

func (*Submit) isRpc()          {}
func (*ClientRequest) isRpc()   {}
func (*ClientResponse) isRpc()  {}
func (*Prepare) isRpc()         {}
func (*Promise) isRpc()         {}
func (*PrepareRejected) isRpc() {}
func (*Accept) isRpc()          {}
func (*Accepted) isRpc()        {}
func (*AcceptRejected) isRpc()  {}
func (*ClientTick) isRpc()      {}
func (*ProposerTick) isRpc()    {}

// IsTimer - timer messages are self-addressed and delivered after the
// transport's retry interval rather than the network delay.
func IsTimer(msg Rpc) bool {
	switch msg.(type) {
	case *ClientTick, *ProposerTick:
		return true
	}
	return false
}
