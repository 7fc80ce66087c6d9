// Package gateway is the client-facing side of the ledger: it publishes
// verified action requests onto the TOKEN stream and runs read queries
// against the worker over request-reply.
package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"tokenbank/pkg/token"
	"tokenbank/pkg/xetcd"
	"tokenbank/pkg/xnats"

	"github.com/nats-io/nats.go"
)

const queryTimeout = 3 * time.Second

type Worker struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

func (w *Worker) GetNats() (js nats.JetStreamContext, err error) {
	if w.js != nil {
		return w.js, nil
	}

	natsUrl, err := xetcd.Get(xetcd.KeyNatsService())
	if err != nil {
		return
	}

	// Connect to NATS
	nc, err := nats.Connect(natsUrl)
	if err != nil {
		return
	}

	// Create JetStream Context
	js, err = nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		return
	}

	w.nc = nc
	w.js = js

	return
}

// EnsureStream creates the TOKEN stream if it does not exist yet
func (w *Worker) EnsureStream() (err error) {
	js, err := w.GetNats()
	if err != nil {
		return
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "TOKEN",
		Subjects: []string{"TOKEN.*"},
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return
	}

	return nil
}

// SendActionReq publishes one verified action onto the stream. The caller
// has authenticated every principal listed in msg.Auths.
func (w *Worker) SendActionReq(msg xnats.ActionReq) (err error) {
	js, err := w.GetNats()
	if err != nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_, err = js.Publish(token.SubjectActions, data)

	return
}

// QuerySupply asks the worker for one symbol's supply registry entry
func (w *Worker) QuerySupply(code string) (resp xnats.SupplyResp, err error) {
	_, err = w.GetNats()
	if err != nil {
		return
	}

	data, err := json.Marshal(xnats.SupplyReq{Code: code})
	if err != nil {
		return
	}

	m, err := w.nc.Request(token.SubjectQuerySupply, data, queryTimeout)
	if err != nil {
		return
	}

	err = json.Unmarshal(m.Data, &resp)
	if err != nil {
		return
	}
	if resp.Err != "" {
		err = errors.New(resp.Err)
	}

	return
}

// QueryBalance asks the worker for one account's balance of one symbol
func (w *Worker) QueryBalance(owner, code string) (resp xnats.BalanceResp, err error) {
	_, err = w.GetNats()
	if err != nil {
		return
	}

	data, err := json.Marshal(xnats.BalanceReq{Owner: owner, Code: code})
	if err != nil {
		return
	}

	m, err := w.nc.Request(token.SubjectQueryBalance, data, queryTimeout)
	if err != nil {
		return
	}

	err = json.Unmarshal(m.Data, &resp)
	if err != nil {
		return
	}
	if resp.Err != "" {
		err = errors.New(resp.Err)
	}

	return
}
