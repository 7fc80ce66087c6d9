// Package token is the ledger core: a supply registry, per-account balances,
// lockups and scheduled unlock plans, all driven through one serialized
// worker loop. Operations either commit fully or leave no trace.
package token

import (
	"encoding/json"
	"path"
	"time"

	"tokenbank/pkg/asset"
	"tokenbank/pkg/config"
	"tokenbank/pkg/filedb"
	"tokenbank/pkg/model"
	"tokenbank/pkg/xlog"
	"tokenbank/pkg/xnats"

	"github.com/google/btree"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
)

// NATS subjects
const (
	SubjectActions      = "TOKEN.ACTIONS"
	SubjectQuerySupply  = "TOKEN.QUERY.SUPPLY"
	SubjectQueryBalance = "TOKEN.QUERY.BALANCE"
)

// NoticeSubject is where transfer notices for one symbol are published
func NoticeSubject(code string) string {
	return "TOKEN." + code + ".NOTICE"
}

var logger = xlog.GetLogger()

// Worker is the token ledger system
type Worker struct {
	Name  string
	State string

	LogID        int64  // ID of the latest journal line
	SavedLogID   int64  // ID already flushed to MySQL by the writer
	LatestMsgSeq uint64 // stream sequence of the latest NATS message applied

	Stats    map[string]*StatState            // code -> supply registry
	Balances *btree.BTreeG[*BalanceItem]      // (owner, code) -> balance
	Lockups  map[string]map[string]*LockState // owner -> code -> lock
	Plans    map[string]map[string]*PlanState // owner -> code -> unlock plan
	Users    map[string]bool                  // known account principals

	// Owner is the ledger-owner principal whose consent `create` requires
	Owner string

	// Now is the time source, captured once per operation
	Now func() time.Time

	// IsAccount is the account existence oracle used by transfer and lockup
	IsAccount func(name string) bool

	ch  chan TokenMsg // other worker threads feed the main loop through this chan
	fdb *filedb.Filedb
	nc  *nats.Conn
	js  nats.JetStreamContext
}

// New returns a Worker instance and completes some preparatory work before
// the worker starts working
func New() (w *Worker, err error) {
	w = &Worker{
		Name:  "token",
		State: "Init",

		Stats:    map[string]*StatState{},
		Balances: btree.NewG(32, balanceLess),
		Lockups:  map[string]map[string]*LockState{},
		Plans:    map[string]map[string]*PlanState{},
		Users:    map[string]bool{},

		Owner: config.Shared.Owner,

		ch: make(chan TokenMsg, 1024),
	}
	w.Now = time.Now
	w.IsAccount = func(name string) bool { return w.Users[name] }

	// Open filedb
	_, err = w.Filedb()
	if err != nil {
		return nil, err
	}

	// Read the last logID and msg seq from filedb
	txt, err := w.fdb.ReadLastLine()
	if err != nil {
		return nil, err
	}
	if txt != "" {
		tl := TokenLog{}
		err = json.Unmarshal([]byte(txt), &tl)
		if err != nil {
			return nil, err
		}
		w.LogID = tl.LogID
		w.LatestMsgSeq = tl.MsgSeq
	}

	logger.Info("token worker created")
	return
}

// Run starts the service
//
//	a. Main thread: receive actions and queries through `chan TokenMsg` and
//	process them sequentially in a single thread, every read-modify-write
//	runs to completion before the next message is taken
//	b. writer thread: tail the filedb journal and mirror it into MySQL
//	c. natscli thread: subscribe to the action stream and forward messages
//	to the main thread via chan
//	d. query thread: answer supply/balance queries over NATS request-reply
func (w *Worker) Run() (err error) {

	go w.StartWriter()

	// wait for mysql.savedLogID == w.LogID (last logID in filedb)
	w.State = "WaitForFiledb"

	err = w.WaitForFiledb()
	if err != nil {
		return
	}

	w.State = "LoadingState"
	err = w.LoadAllState()
	if err != nil {
		return
	}

	w.State = "Working"

	go w.StartSubNats()
	go w.StartServeQueries()

	err = w.HandleMsgs()

	return
}

// StartWriter reads data from filedb and writes it to MySQL
func (w *Worker) StartWriter() (err error) {
	round := 0
	for {
		round++
		logger.Infof("StartWriter round:%d started", round)
		err = w.FiledbToMySQL()
		if err != nil {
			logger.Errorf("StartWriter round:%d failed with err:%s", round, err)
		} else {
			logger.Infof("StartWriter round:%d done", round)
		}
		time.Sleep(time.Second)
	}
}

func (w *Worker) StartSubNats() (err error) {
	round := 0
	for {
		round++
		logger.Infof("StartSubNats round:%d started", round)
		err = w.SubNats()
		if err != nil {
			logger.Errorf("StartSubNats round:%d failed with err:%s", round, err)
		} else {
			logger.Infof("StartSubNats round:%d done", round)
		}
		time.Sleep(time.Second)
	}
}

func (w *Worker) StartServeQueries() (err error) {
	round := 0
	for {
		round++
		logger.Infof("StartServeQueries round:%d started", round)
		err = w.ServeQueries()
		if err != nil {
			logger.Errorf("StartServeQueries round:%d failed with err:%s", round, err)
		} else {
			logger.Infof("StartServeQueries round:%d done", round)
		}
		time.Sleep(time.Second)
	}
}

// WaitForFiledb waits for the writer to catch up with the journal before
// the in-memory state is loaded from MySQL
func (w *Worker) WaitForFiledb() (err error) {
	defer func() {
		if err != nil {
			logger.Errorf("WaitForFiledb failed with err:%s", err)
		}
	}()

	s, err := w.fdb.ReadLastLine()
	if err != nil {
		return
	}
	if s == "" {
		return nil
	}

	var tl TokenLog
	err = json.Unmarshal([]byte(s), &tl)
	if err != nil {
		return
	}

	w.LogID = tl.LogID

	for {
		savedLogID, _ := w.LoadSavedLogID()
		if savedLogID >= tl.LogID {
			logger.Infof("WaitForFiledb done with savedLogID:%d, logID:%d", savedLogID, tl.LogID)
			return
		}
		ts := time.Second
		logger.Infof("WaitForFiledb sleep:%s with savedLogID:%d, logID:%d", ts, savedLogID, tl.LogID)
		time.Sleep(ts)
	}
}

// LoadAllState loads stats, balances, lockups, plans and users from MySQL
//
//	The writer must have flushed the whole journal before this runs
func (w *Worker) LoadAllState() (err error) {
	defer func() {
		if err != nil {
			logger.Errorf("LoadAllState failed with err:%s", err)
		} else {
			logger.Infof("LoadAllState done with stats:%d, balances:%d, latestMsgSeq:%d",
				len(w.Stats), w.Balances.Len(), w.LatestMsgSeq)
		}
	}()

	db := model.GetMySQL()

	var stats []model.Stat
	err = db.Model(model.Stat{}).Order("id asc").Find(&stats).Error
	if err != nil {
		return
	}
	for _, st := range stats {
		w.Stats[st.Code] = &StatState{
			Symbol:    asset.Symbol{Code: st.Code, Precision: st.Precision},
			Supply:    st.Supply,
			MaxSupply: st.MaxSupply,
			Issuer:    st.Issuer,
		}
	}

	var balances []model.Balance
	err = db.Model(model.Balance{}).Order("id asc").Find(&balances).Error
	if err != nil {
		return
	}
	for _, bal := range balances {
		w.Balances.ReplaceOrInsert(&BalanceItem{
			Owner:  bal.Owner,
			Code:   bal.Code,
			Amount: bal.Amount,
			Payer:  bal.Payer,
		})
	}

	var lockups []model.Lockup
	err = db.Model(model.Lockup{}).Order("id asc").Find(&lockups).Error
	if err != nil {
		return
	}
	for _, lk := range lockups {
		if w.Lockups[lk.Owner] == nil {
			w.Lockups[lk.Owner] = map[string]*LockState{}
		}
		w.Lockups[lk.Owner][lk.Code] = &LockState{
			Amount:     lk.Amount,
			ExpireTime: lk.ExpireTime.Time(),
		}
	}

	var plans []model.UnlockPlan
	err = db.Model(model.UnlockPlan{}).Order("id asc").Find(&plans).Error
	if err != nil {
		return
	}
	for _, p := range plans {
		if w.Plans[p.Owner] == nil {
			w.Plans[p.Owner] = map[string]*PlanState{}
		}
		w.Plans[p.Owner][p.Code] = &PlanState{
			Quantity: p.Quantity,
			NextTime: p.NextTime.Time(),
			SpanHour: p.SpanHour,
		}
	}

	var users []model.User
	err = db.Model(model.User{}).Find(&users).Error
	if err != nil {
		return
	}
	for _, u := range users {
		w.Users[u.Name] = true
	}

	var lastkvs []model.Lastkv
	err = db.Model(model.Lastkv{}).Where("`app`=?", w.Name).Find(&lastkvs).Error
	if err != nil {
		return
	}
	for _, item := range lastkvs {
		if item.Key == model.LASTKV_K_NATS_SEQ {
			w.LatestMsgSeq = uint64(item.Val)
		}
	}

	for code := range w.Stats {
		sum, ok := w.CheckSupplyInvariant(code)
		if !ok {
			logger.Errorf("supply invariant broken for %s: sum(balances)=%s, supply=%s",
				code, sum.String(), w.Stats[code].Supply.String())
		}
	}

	return
}

type ackPayload struct {
	msg *nats.Msg
	seq uint64
}

// HandleMsgs handles tasks from other worker threads (single-threaded sequentially)
func (w *Worker) HandleMsgs() (err error) {
	// ack nats msgs in batches, only the highest sequence matters with AckAll
	chAck := make(chan ackPayload, 1024)

	go func() {
		var latest ackPayload
		for {
			mp := <-chAck
			if mp.seq > latest.seq {
				latest = mp
			}
			// fetch all pending acks at once
			l := len(chAck)
			for i := 0; i < l; i++ {
				mp = <-chAck
				if mp.seq > latest.seq {
					latest = mp
				}
			}
			err := latest.msg.Ack()
			if err != nil {
				logger.Errorf("msg(%v) ack failed with err:%s", latest.seq, err)
				continue
			}
			logger.Debugf("msg(%v) ack done", latest.seq)
		}
	}()

	for {
		m, ok := <-w.ch
		if !ok {
			return
		}

		// nats msg
		if m.N != nil {
			err = w.HandleActionReq(m.N, chAck)
			if err != nil {
				return
			}
		}

		// read query
		if m.Q != nil {
			w.HandleQuery(m.Q)
		}
	}
}

func (w *Worker) HandleActionReq(msg *nats.Msg, chAck chan ackPayload) (err error) {
	md, err := msg.Metadata()
	if err != nil {
		logger.Errorf("msg metadata failed with err:%s", err)
		return nil
	}

	var req xnats.ActionReq
	err = json.Unmarshal(msg.Data, &req)
	if err != nil {
		logger.Errorf("bad action payload at seq:%d, err:%s", md.Sequence.Stream, err)
		chAck <- ackPayload{msg: msg, seq: md.Sequence.Stream}
		return nil
	}

	logger.Tracef("HandleActionReq action:%s, seq:%d", req.Action, md.Sequence.Stream)

	if md.Sequence.Stream <= w.LatestMsgSeq {
		logger.Warningf("md.Sequence.Stream(%d) <= w.LatestMsgSeq(%d)", md.Sequence.Stream, w.LatestMsgSeq)
		chAck <- ackPayload{msg: msg, seq: md.Sequence.Stream}
		return nil
	}

	err = w.Apply(md.Sequence.Stream, &req)
	if err != nil {
		if IsRejection(err) {
			// a rejected operation is final, the caller surfaces the reason
			logger.Warningf("action %s rejected: %s", req.Action, err)
			chAck <- ackPayload{msg: msg, seq: md.Sequence.Stream}
			return nil
		}
		return
	}

	chAck <- ackPayload{msg: msg, seq: md.Sequence.Stream}

	return nil
}

// Apply parses one action request and runs it against the ledger
func (w *Worker) Apply(msgSeq uint64, req *xnats.ActionReq) (err error) {
	switch req.Action {
	case xnats.ActionCreate:
		var q asset.Asset
		q, err = parseQuantity(req.Quantity)
		if err != nil {
			return
		}
		err = w.Create(msgSeq, req.Auths, req.Issuer, q)

	case xnats.ActionIssue:
		var q asset.Asset
		q, err = parseQuantity(req.Quantity)
		if err != nil {
			return
		}
		err = w.Issue(msgSeq, req.Auths, req.To, q, req.Memo)

	case xnats.ActionRetire:
		var q asset.Asset
		q, err = parseQuantity(req.Quantity)
		if err != nil {
			return
		}
		err = w.Retire(msgSeq, req.Auths, q, req.Memo)

	case xnats.ActionTransfer:
		var q asset.Asset
		q, err = parseQuantity(req.Quantity)
		if err != nil {
			return
		}
		err = w.Transfer(msgSeq, req.Auths, req.From, req.To, q, req.Memo)

	case xnats.ActionOpen:
		var sym asset.Symbol
		sym, err = parseSymbol(req.Symbol)
		if err != nil {
			return
		}
		err = w.Open(msgSeq, req.Auths, req.Owner, sym, req.Payer)

	case xnats.ActionClose:
		var sym asset.Symbol
		sym, err = parseSymbol(req.Symbol)
		if err != nil {
			return
		}
		err = w.Close(msgSeq, req.Auths, req.Owner, sym)

	case xnats.ActionDecms:
		var q asset.Asset
		q, err = parseQuantity(req.Quantity)
		if err != nil {
			return
		}
		err = w.DecreaseMaxSupply(msgSeq, req.Auths, q, req.Memo)

	case xnats.ActionLockup:
		var q asset.Asset
		q, err = parseQuantity(req.Quantity)
		if err != nil {
			return
		}
		err = w.Lockup(msgSeq, req.Auths, req.Account, q, req.ExpireTime, req.Memo)

	case xnats.ActionPlanUnlock:
		var q asset.Asset
		q, err = parseQuantity(req.Quantity)
		if err != nil {
			return
		}
		err = w.PlanUnlock(msgSeq, req.Auths, req.Account, q, req.Time, req.SpanHour, req.Memo)

	case xnats.ActionClaimUnlock:
		var sym asset.Symbol
		sym, err = parseSymbol(req.Symbol)
		if err != nil {
			return
		}
		err = w.ClaimUnlock(msgSeq, req.Auths, req.Account, sym)

	default:
		logger.Warningf("unknown action %q", req.Action)
		return nil
	}

	if err == nil {
		w.LatestMsgSeq = msgSeq
	}

	return
}

// HandleQuery answers a read query from the in-memory state
func (w *Worker) HandleQuery(q *QueryMsg) {
	if q.Supply != nil {
		supply, maxSupply, issuer, err := w.GetSupply(q.Supply.Code)
		resp := xnats.SupplyResp{}
		if err != nil {
			resp.Err = err.Error()
		} else {
			resp.Supply = supply.String()
			resp.MaxSupply = maxSupply.String()
			resp.Issuer = issuer
		}
		q.Reply <- resp
		return
	}

	if q.Balance != nil {
		bal, err := w.GetBalance(q.Balance.Owner, q.Balance.Code)
		resp := xnats.BalanceResp{}
		if err != nil {
			resp.Err = err.Error()
		} else {
			resp.Balance = bal.String()
		}
		q.Reply <- resp
		return
	}
}

// GetSupply is the read API for the supply registry
func (w *Worker) GetSupply(code string) (supply, maxSupply asset.Asset, issuer string, err error) {
	st, ok := w.Stats[code]
	if !ok {
		err = ErrNotFound
		return
	}
	supply = asset.New(st.Supply, st.Symbol)
	maxSupply = asset.New(st.MaxSupply, st.Symbol)
	issuer = st.Issuer
	return
}

// GetBalance is the read API for account balances
func (w *Worker) GetBalance(owner, code string) (bal asset.Asset, err error) {
	st, ok := w.Stats[code]
	if !ok {
		err = ErrNotFound
		return
	}
	item, ok := w.Balances.Get(&BalanceItem{Owner: owner, Code: code})
	if !ok {
		err = ErrNotFound
		return
	}
	bal = asset.New(item.Amount, st.Symbol)
	return
}

// CheckSupplyInvariant sums every account's balance for the code and
// compares it against the registered supply
func (w *Worker) CheckSupplyInvariant(code string) (sum decimal.Decimal, ok bool) {
	st, found := w.Stats[code]
	if !found {
		return sum, false
	}

	w.Balances.Ascend(func(item *BalanceItem) bool {
		if item.Code == code {
			sum = sum.Add(item.Amount)
		}
		return true
	})

	return sum, sum.Equal(st.Supply)
}

// Filedb returns the current working filedb instance
func (w *Worker) Filedb() (fdb *filedb.Filedb, err error) {
	if w.fdb != nil {
		return w.fdb, nil
	}

	fdb, err = filedb.New(path.Join(config.Shared.DataDir, "filedb", w.Name+".log"))
	if err != nil {
		return nil, err
	}

	fdb.DrainHandler = w.ParseAndWriteLogs

	w.fdb = fdb
	return w.fdb, nil
}

func (w *Worker) writeLog(tl *TokenLog) (err error) {
	b, err := json.Marshal(tl)
	if err != nil {
		return
	}

	_, err = w.Filedb()
	if err != nil {
		return
	}

	return w.fdb.WriteLine(string(b) + "\n")
}
