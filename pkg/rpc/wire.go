package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/khanh101/paxoskv/pkg/paxos"
)

// envelope - one message on the wire, kind-tagged so the closed Rpc variant
// set survives JSON
type envelope struct {
	From paxos.Addr      `json:"from"`
	To   paxos.Addr      `json:"to"`
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

func kindOf(msg paxos.Rpc) (string, error) {
	switch msg.(type) {
	case *paxos.Submit:
		return "submit", nil
	case *paxos.ClientRequest:
		return "request", nil
	case *paxos.ClientResponse:
		return "response", nil
	case *paxos.Prepare:
		return "prepare", nil
	case *paxos.Promise:
		return "promise", nil
	case *paxos.PrepareRejected:
		return "prepare_rejected", nil
	case *paxos.Accept:
		return "accept", nil
	case *paxos.Accepted:
		return "accepted", nil
	case *paxos.AcceptRejected:
		return "accept_rejected", nil
	}
	// timer messages never cross the wire
	return "", fmt.Errorf("message %T is not wire-encodable", msg)
}

func newOfKind(kind string) paxos.Rpc {
	switch kind {
	case "submit":
		return &paxos.Submit{}
	case "request":
		return &paxos.ClientRequest{}
	case "response":
		return &paxos.ClientResponse{}
	case "prepare":
		return &paxos.Prepare{}
	case "promise":
		return &paxos.Promise{}
	case "prepare_rejected":
		return &paxos.PrepareRejected{}
	case "accept":
		return &paxos.Accept{}
	case "accepted":
		return &paxos.Accepted{}
	case "accept_rejected":
		return &paxos.AcceptRejected{}
	}
	return nil
}

func Marshal(from, to paxos.Addr, msg paxos.Rpc) ([]byte, error) {
	kind, err := kindOf(msg)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{From: from, To: to, Kind: kind, Body: body})
}

func Unmarshal(b []byte) (from, to paxos.Addr, msg paxos.Rpc, err error) {
	var e envelope
	if err = json.Unmarshal(b, &e); err != nil {
		return "", "", nil, err
	}
	msg = newOfKind(e.Kind)
	if msg == nil {
		return "", "", nil, fmt.Errorf("unknown message kind %q", e.Kind)
	}
	if err = json.Unmarshal(e.Body, msg); err != nil {
		return "", "", nil, err
	}
	return e.From, e.To, msg, nil
}
