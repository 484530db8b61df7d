package paxos

import (
	"time"
)

// PROPOSER_MAX_ROUNDS bounds ballot retries for one client command before the
// proposer surfaces "unavailable". A policy choice, not a safety requirement.
const PROPOSER_MAX_ROUNDS = 16

type phase uint8

const (
	phasePrepare phase = iota
	phaseAccept
)

// attempt - one in-flight consensus instance, owned by exactly one proposer.
// Destroyed once the slot is decided or abandoned for a higher-ballot retry.
type attempt struct {
	slot     Slot
	ballot   Ballot
	phase    phase
	cmd      Command // client command this attempt is trying to decide
	proposal Command // value actually driven, after the value-stealing rule
	promised map[Addr]bool
	stolen   *Command
	maxSeen  Ballot // highest accepted ballot among promises
	accepted map[Addr]bool
	rounds   int
}

// Proposer - drives client commands through prepare/accept to decision, one
// attempt at a time, and maintains the applied state machine by replaying
// decided commands in slot order. Proposers share no state with each other;
// they reconcile only through the acceptors' decided values.
type Proposer struct {
	id        ProposerId
	self      Addr
	acceptors []Addr

	round    Round // highest round used or seen rejected
	att      *attempt
	queue    []Command
	log      map[Slot]Command
	nextSlot Slot // first slot not known decided

	state   *string // the replicated register, decided commands applied in slot order
	results map[ReqId]ClientResponse
}

func NewProposer(id ProposerId, self Addr, acceptors []Addr) *Proposer {
	return &Proposer{
		id:        id,
		self:      self,
		acceptors: acceptors,
		log:       make(map[Slot]Command),
		results:   make(map[ReqId]ClientResponse),
	}
}

func (p *Proposer) quorum() int {
	return len(p.acceptors)/2 + 1
}

// Log - copy of the decided slots, used by the simulation harness to check
// per-slot agreement across proposers
func (p *Proposer) Log() map[Slot]Command {
	log := make(map[Slot]Command, len(p.log))
	for slot, cmd := range p.log {
		log[slot] = cmd
	}
	return log
}

func (p *Proposer) Receive(at time.Time, from Addr, msg Rpc) []Envelope {
	switch m := msg.(type) {
	case *ClientRequest:
		return p.onRequest(m.Cmd)
	case *Promise:
		return p.onPromise(from, m)
	case *Accepted:
		return p.onAccepted(from, m)
	case *PrepareRejected:
		if p.att != nil && p.att.phase == phasePrepare && p.att.ballot == m.Ballot && p.att.slot == m.Slot {
			p.observe(m.Promised)
			return p.retry()
		}
	case *AcceptRejected:
		if p.att != nil && p.att.phase == phaseAccept && p.att.ballot == m.Ballot && p.att.slot == m.Slot {
			p.observe(m.Promised)
			return p.retry()
		}
	case *ProposerTick:
		if p.att != nil && p.att.ballot == m.Ballot && p.att.slot == m.Slot {
			return p.retry()
		}
	}
	return nil
}

func (p *Proposer) inFlight(id ReqId) bool {
	if p.att != nil && p.att.cmd.Id == id {
		return true
	}
	for _, cmd := range p.queue {
		if cmd.Id == id {
			return true
		}
	}
	return false
}

func (p *Proposer) onRequest(cmd Command) []Envelope {
	if res, ok := p.results[cmd.Id]; ok {
		// already decided, answer idempotently
		return []Envelope{{To: cmd.Id.Client, Msg: &res}}
	}
	if p.inFlight(cmd.Id) {
		return nil
	}
	p.queue = append(p.queue, cmd)
	if p.att != nil {
		return nil
	}
	return p.startNext()
}

func (p *Proposer) startNext() []Envelope {
	if len(p.queue) == 0 {
		return nil
	}
	cmd := p.queue[0]
	p.queue = p.queue[1:]
	return p.startAttempt(cmd, 0)
}

func (p *Proposer) startAttempt(cmd Command, rounds int) []Envelope {
	p.round++
	p.att = &attempt{
		slot:     p.nextSlot,
		ballot:   composeBallot(p.round, p.id),
		phase:    phasePrepare,
		cmd:      cmd,
		promised: make(map[Addr]bool),
		accepted: make(map[Addr]bool),
		rounds:   rounds,
	}
	effects := make([]Envelope, 0, len(p.acceptors)+1)
	for _, acc := range p.acceptors {
		effects = append(effects, Envelope{To: acc, Msg: &Prepare{Ballot: p.att.ballot, Slot: p.att.slot}})
	}
	effects = append(effects, Envelope{To: p.self, Msg: &ProposerTick{Slot: p.att.slot, Ballot: p.att.ballot}})
	return effects
}

func (p *Proposer) observe(promised Ballot) {
	round, _ := decomposeBallot(promised)
	if round > p.round {
		p.round = round
	}
}

// retry - abandon the current attempt and restart it under a higher ballot;
// after PROPOSER_MAX_ROUNDS the client gets "unavailable" instead
func (p *Proposer) retry() []Envelope {
	att := p.att
	p.att = nil
	if att.rounds+1 > PROPOSER_MAX_ROUNDS {
		effects := []Envelope{{To: att.cmd.Id.Client, Msg: &ClientResponse{
			Id:      att.cmd.Id,
			Outcome: OutcomeUnavailable,
		}}}
		return append(effects, p.startNext()...)
	}
	return p.startAttempt(att.cmd, att.rounds+1)
}

func (p *Proposer) onPromise(from Addr, m *Promise) []Envelope {
	att := p.att
	if att == nil || att.phase != phasePrepare || att.ballot != m.Ballot || att.slot != m.Slot {
		return nil
	}
	att.promised[from] = true
	if m.Value != nil && m.Accepted >= att.maxSeen {
		att.maxSeen = m.Accepted
		att.stolen = m.Value
	}
	if len(att.promised) < p.quorum() {
		return nil
	}
	// quorum of promises: adopt the highest previously accepted value if any
	att.phase = phaseAccept
	if att.stolen != nil {
		att.proposal = *att.stolen
	} else {
		att.proposal = att.cmd
	}
	effects := make([]Envelope, 0, len(p.acceptors))
	for _, acc := range p.acceptors {
		effects = append(effects, Envelope{To: acc, Msg: &Accept{Ballot: att.ballot, Slot: att.slot, Cmd: att.proposal}})
	}
	return effects
}

func (p *Proposer) onAccepted(from Addr, m *Accepted) []Envelope {
	att := p.att
	if att == nil || att.phase != phaseAccept || att.ballot != m.Ballot || att.slot != m.Slot {
		return nil
	}
	att.accepted[from] = true
	if len(att.accepted) < p.quorum() {
		return nil
	}
	// decided
	p.att = nil
	p.log[att.slot] = att.proposal
	p.nextSlot = att.slot + 1
	effects := p.apply(att.proposal)
	if att.proposal.Id != att.cmd.Id {
		// another proposer's command won the slot; ours retries on a new slot
		if _, ok := p.results[att.cmd.Id]; !ok {
			p.queue = append([]Command{att.cmd}, p.queue...)
		}
	}
	return append(effects, p.startNext()...)
}

// apply - run one decided command against the register and answer its
// client. A request identifier that reaches a decided slot a second time
// returns the original result rather than re-applying the mutation.
func (p *Proposer) apply(cmd Command) []Envelope {
	res, ok := p.results[cmd.Id]
	if !ok {
		p.state, res = Apply(p.state, cmd)
		p.results[cmd.Id] = res
	}
	return []Envelope{{To: cmd.Id.Client, Msg: &res}}
}
