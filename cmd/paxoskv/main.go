package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	logging "github.com/ipfs/go-log"

	"github.com/khanh101/paxoskv/pkg/kvstore"
	"github.com/khanh101/paxoskv/pkg/paxos"
	"github.com/khanh101/paxoskv/pkg/rpc"
)

var log = logging.Logger("paxoskv")

const SESSION_TIMEOUT = 10 * time.Second

type HostConfig struct {
	Badger string `json:"badger"`
	RPC    string `json:"rpc"`
	HTTP   string `json:"http"`
}

type Config []HostConfig

type valueBody struct {
	Expected *string `json:"expected,omitempty"`
	Value    *string `json:"value,omitempty"`
}

func httpHandle(session *rpc.Session) http.HandlerFunc {
	do := func(w http.ResponseWriter, op paxos.Op, expected, value *string) {
		res, err := session.Do(op, expected, value)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		switch res.Outcome {
		case paxos.OutcomeOk:
			b, _ := json.Marshal(valueBody{Value: res.Value})
			_, _ = w.Write(b)
		case paxos.OutcomeNotFound:
			http.Error(w, string(res.Outcome), http.StatusNotFound)
		case paxos.OutcomeCasMismatch:
			http.Error(w, string(res.Outcome), http.StatusConflict)
		default:
			http.Error(w, string(res.Outcome), http.StatusServiceUnavailable)
		}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/kv" {
			http.NotFound(w, r)
			return
		}
		defer r.Body.Close()
		switch r.Method {
		case http.MethodGet:
			do(w, paxos.OpGet, nil, nil)
		case http.MethodDelete:
			do(w, paxos.OpDel, nil, nil)
		case http.MethodPut, http.MethodPost:
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			v := valueBody{}
			if err := json.Unmarshal(body, &v); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if r.Method == http.MethodPut {
				do(w, paxos.OpSet, nil, v.Value)
			} else {
				do(w, paxos.OpCas, v.Expected, v.Value)
			}
		default:
			http.Error(w, "method must be GET PUT POST DELETE", http.StatusBadRequest)
		}
	}
}

func main() {
	b, err := os.ReadFile(os.Args[1])
	if err != nil {
		panic(err)
	}
	var cl Config
	if err := json.Unmarshal(b, &cl); err != nil {
		panic(err)
	}
	id, err := strconv.Atoi(os.Args[2])
	if err != nil {
		panic(err)
	}

	db, err := badger.Open(badger.DefaultOptions(cl[id].Badger))
	if err != nil {
		panic(err)
	}
	defer db.Close()

	acceptorAddrs := make([]paxos.Addr, len(cl))
	for i, host := range cl {
		acceptorAddrs[i] = paxos.Addr("acceptor:" + host.RPC)
	}
	proposerAddrs := make([]paxos.Addr, len(cl))
	for i, host := range cl {
		proposerAddrs[i] = paxos.Addr("proposer:" + host.RPC)
	}

	node := rpc.NewNode(rpc.RETRY_INTERVAL, rpc.Send)
	slots := kvstore.MakeStoreFromStringStore[paxos.Slot, paxos.SlotState](
		kvstore.NewBadgerStringStore(db).Append("slots"),
	)
	node.Register(acceptorAddrs[id], paxos.NewAcceptor(slots))
	node.Register(proposerAddrs[id], paxos.NewProposer(
		paxos.ProposerId(id), proposerAddrs[id], acceptorAddrs,
	))

	server, err := rpc.NewTCPServer(cl[id].RPC, node)
	if err != nil {
		panic(err)
	}
	defer server.Close()
	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Errorw("rpc server stopped", "err", err)
		}
	}()

	session := rpc.NewSession(node, cl[id].RPC, proposerAddrs, SESSION_TIMEOUT)
	log.Infow("listening", "rpc", cl[id].RPC, "http", cl[id].HTTP)
	fmt.Println("http server listening on", cl[id].HTTP)
	if err := http.ListenAndServe(cl[id].HTTP, httpHandle(session)); err != nil {
		panic(err)
	}
}
