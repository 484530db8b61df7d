package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/khanh101/paxoskv/pkg/simnet"
)

const MAX_STEPS = 1 << 20

func main() {
	seed := flag.Uint64("seed", 0, "first seed to run")
	runs := flag.Uint64("runs", 100, "number of seeds to run")
	flag.Parse()

	failed := false
	for s := *seed; s < *seed+*runs; s++ {
		cluster := simnet.GenerateCluster(s)
		if err := cluster.Run(MAX_STEPS); err != nil {
			fmt.Printf("seed %d: %v\n", s, err)
			failed = true
			continue
		}
		if err := cluster.CheckAgreement(); err != nil {
			fmt.Printf("seed %d: %v\n", s, err)
			failed = true
			continue
		}
		history := simnet.BuildHistory(cluster.Invocations, cluster.Responses)
		if !simnet.Linearizable(history) {
			fmt.Printf("seed %d: history not linearizable (%d ops, %d responses)\n",
				s, len(history), len(cluster.Responses))
			failed = true
			continue
		}
		fmt.Printf("seed %d: ok (%d ops, %d responses)\n", s, len(history), len(cluster.Responses))
	}
	if failed {
		os.Exit(1)
	}
}
