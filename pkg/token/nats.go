package token

import (
	"context"
	"encoding/json"
	"time"

	"tokenbank/pkg/model"
	"tokenbank/pkg/xetcd"
	"tokenbank/pkg/xnats"

	"github.com/nats-io/nats.go"
)

const queryCacheTTL = time.Second

// SubNats subscribes to action messages from the gateway via NATS
func (w *Worker) SubNats() (err error) {
	// TODO should retry if etcd get failed
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
	js, err := nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		return
	}

	w.nc = nc
	w.js = js

	ch2 := make(chan *nats.Msg, 256)
	_, err = js.ChanSubscribe(SubjectActions, ch2, nats.StartSequence(w.LatestMsgSeq+1), nats.AckAll())
	if err != nil {
		return
	}

	for {
		m, ok := <-ch2
		if !ok {
			return
		}
		w.ch <- TokenMsg{N: m}
	}
}

// ServeQueries answers supply and balance queries over core NATS
// request-reply, fronted by a short-lived redis cache
func (w *Worker) ServeQueries() (err error) {
	natsUrl, err := xetcd.Get(xetcd.KeyNatsService())
	if err != nil {
		return
	}

	nc, err := nats.Connect(natsUrl)
	if err != nil {
		return
	}
	defer nc.Close()

	chMsg := make(chan *nats.Msg, 256)
	_, err = nc.ChanSubscribe(SubjectQuerySupply, chMsg)
	if err != nil {
		return
	}
	_, err = nc.ChanSubscribe(SubjectQueryBalance, chMsg)
	if err != nil {
		return
	}

	for {
		m, ok := <-chMsg
		if !ok {
			return
		}
		switch m.Subject {
		case SubjectQuerySupply:
			w.handleSupplyQuery(m)
		case SubjectQueryBalance:
			w.handleBalanceQuery(m)
		}
	}
}

func (w *Worker) handleSupplyQuery(m *nats.Msg) {
	var req xnats.SupplyReq
	err := json.Unmarshal(m.Data, &req)
	if err != nil {
		logger.Warningf("bad supply query payload, err:%s", err)
		return
	}

	cacheKey := "token:supply:" + req.Code
	if b, ok := w.cacheGet(cacheKey); ok {
		respond(m, b)
		return
	}

	reply := make(chan interface{}, 1)
	w.ch <- TokenMsg{Q: &QueryMsg{Supply: &req, Reply: reply}}
	resp := <-reply

	b, err := json.Marshal(resp)
	if err != nil {
		logger.Errorf("marshal supply resp failed with err:%s", err)
		return
	}
	w.cacheSet(cacheKey, b)
	respond(m, b)
}

func (w *Worker) handleBalanceQuery(m *nats.Msg) {
	var req xnats.BalanceReq
	err := json.Unmarshal(m.Data, &req)
	if err != nil {
		logger.Warningf("bad balance query payload, err:%s", err)
		return
	}

	cacheKey := "token:balance:" + req.Owner + ":" + req.Code
	if b, ok := w.cacheGet(cacheKey); ok {
		respond(m, b)
		return
	}

	reply := make(chan interface{}, 1)
	w.ch <- TokenMsg{Q: &QueryMsg{Balance: &req, Reply: reply}}
	resp := <-reply

	b, err := json.Marshal(resp)
	if err != nil {
		logger.Errorf("marshal balance resp failed with err:%s", err)
		return
	}
	w.cacheSet(cacheKey, b)
	respond(m, b)
}

func (w *Worker) cacheGet(key string) (b []byte, ok bool) {
	rdb := model.GetRedis()
	if rdb == nil {
		return nil, false
	}
	b, err := rdb.Get(context.Background(), key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (w *Worker) cacheSet(key string, b []byte) {
	rdb := model.GetRedis()
	if rdb == nil {
		return
	}
	err := rdb.Set(context.Background(), key, b, queryCacheTTL).Err()
	if err != nil {
		logger.Warningf("cache set %s failed with err:%s", key, err)
	}
}

func respond(m *nats.Msg, b []byte) {
	err := m.Respond(b)
	if err != nil {
		logger.Errorf("respond on %s failed with err:%s", m.Subject, err)
	}
}

// PublishNotice publishes the transfer notice on the symbol's notice
// subject after the operation has been journaled
func (w *Worker) PublishNotice(code string, n xnats.TransferNotice) {
	if w.nc == nil {
		return
	}
	b, err := json.Marshal(n)
	if err != nil {
		return
	}
	err = w.nc.Publish(NoticeSubject(code), b)
	if err != nil {
		logger.Errorf("publish notice for %s failed with err:%s", code, err)
	}
}
