package simnet

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/khanh101/paxoskv/pkg/kvstore"
	"github.com/khanh101/paxoskv/pkg/paxos"
)

const (
	MAX_CLIENTS_PER_ROLE = 3
	MAX_REQS_PER_CLIENT  = 9
	// SUBMIT_WINDOW - virtual window within which all workload operations enter
	SUBMIT_WINDOW = 100 * time.Nanosecond
)

// GenerateCluster - random topology (1-3 of each role) and a random workload
// (1-9 operations per client at random virtual submit times), all drawn from
// one seeded generator so a failing run replays exactly.
func GenerateCluster(seed uint64) *Cluster {
	rng := rand.New(rand.NewPCG(seed, 0))
	c := NewCluster()

	nClients := 1 + rng.IntN(MAX_CLIENTS_PER_ROLE)
	nProposers := 1 + rng.IntN(MAX_CLIENTS_PER_ROLE)
	nAcceptors := 1 + rng.IntN(MAX_CLIENTS_PER_ROLE)

	acceptorAddrs := make([]paxos.Addr, nAcceptors)
	for i := range acceptorAddrs {
		acceptorAddrs[i] = paxos.Addr(fmt.Sprintf("acceptor:%d", i))
		c.AddAcceptor(acceptorAddrs[i], paxos.NewAcceptor(
			kvstore.NewMemStore[paxos.Slot, paxos.SlotState](),
		))
	}
	proposerAddrs := make([]paxos.Addr, nProposers)
	for i := range proposerAddrs {
		proposerAddrs[i] = paxos.Addr(fmt.Sprintf("proposer:%d", i))
		c.AddProposer(proposerAddrs[i], paxos.NewProposer(
			paxos.ProposerId(i), proposerAddrs[i], acceptorAddrs,
		))
	}
	for i := 0; i < nClients; i++ {
		addr := paxos.Addr(fmt.Sprintf("client:%d", i))
		c.AddClient(addr, paxos.NewClient(addr, proposerAddrs))
		for r := 1 + rng.IntN(MAX_REQS_PER_CLIENT); r > 0; r-- {
			at := Epoch.Add(time.Duration(rng.Int64N(int64(SUBMIT_WINDOW))))
			c.Schedule(at, addr, addr, randomSubmit(rng))
		}
	}
	return c
}

func randomValue(rng *rand.Rand) *string {
	v := fmt.Sprintf("%d", rng.IntN(5))
	return &v
}

func maybeValue(rng *rand.Rand) *string {
	if rng.IntN(2) == 0 {
		return nil
	}
	return randomValue(rng)
}

func randomSubmit(rng *rand.Rand) *paxos.Submit {
	switch rng.IntN(4) {
	case 0:
		return &paxos.Submit{Op: paxos.OpGet}
	case 1:
		return &paxos.Submit{Op: paxos.OpSet, Value: randomValue(rng)}
	case 2:
		return &paxos.Submit{Op: paxos.OpCas, Expected: maybeValue(rng), Value: maybeValue(rng)}
	default:
		return &paxos.Submit{Op: paxos.OpDel}
	}
}
