package paxos

// Slot - one position in the agreed command sequence
type Slot uint64

type ProposerId uint64

type Round uint64

// Ballot - round * 4294967296 + proposerId
// Distinct proposers can never compose the same ballot.
type Ballot uint64

const BALLOT_STEP = 4294967296

func composeBallot(round Round, id ProposerId) Ballot {
	return Ballot(uint64(round)*BALLOT_STEP + uint64(id))
}

func decomposeBallot(ballot Ballot) (Round, ProposerId) {
	return Round(ballot / BALLOT_STEP), ProposerId(ballot % BALLOT_STEP)
}
