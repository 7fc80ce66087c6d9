package token

import (
	"encoding/json"

	"tokenbank/pkg/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type rowKey struct {
	Owner string
	Code  string
}

// FiledbToMySQL retrieves the content of filedb in real-time and writes it to MySQL
func (w *Worker) FiledbToMySQL() (err error) {
	ch := make(chan string, 1000)

	w.SavedLogID, err = w.LoadSavedLogID()
	if err != nil {
		return
	}

	// checkout lastkv rows so the writer tx can blindly update them
	_, err = w.CheckoutLastKv(model.LASTKV_K_NATS_SEQ)
	if err != nil {
		return
	}
	_, err = w.CheckoutLastKv(model.LASTKV_K_SAVED_LOG_ID)
	if err != nil {
		return
	}

	go func() {
		err = w.fdb.Tailf(ch)
		if err != nil {
			close(ch)
		}
	}()

	err2 := w.fdb.Drain(ch)
	if err == nil {
		err = err2
	}

	return
}

// LoadSavedLogID reads the writer's journal watermark from MySQL
func (w *Worker) LoadSavedLogID() (id int64, err error) {
	defer func() {
		if err != nil {
			logger.Errorf("LoadSavedLogID failed with err:%s", err)
		} else {
			logger.Infof("LoadSavedLogID done with id:%d", id)
		}
	}()

	db := model.GetMySQL()

	var kv model.Lastkv
	err = db.Model(model.Lastkv{}).Where(model.Lastkv{
		App: w.Name,
		Key: model.LASTKV_K_SAVED_LOG_ID,
	}).Limit(1).Find(&kv).Error
	if err != nil {
		return
	}
	id = kv.Val

	return
}

func (w *Worker) CheckoutLastKv(key string) (kv model.Lastkv, err error) {
	db := model.GetMySQL()

	kv = model.Lastkv{
		App: w.Name,
		Key: key,
	}
	err = db.Model(model.Lastkv{}).Where(kv).Limit(1).Find(&kv).Error
	if err != nil {
		return
	}
	if kv.ID > 0 {
		return
	}

	err = db.Model(model.Lastkv{}).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "app"}, {Name: "key"}},
			DoNothing: true,
		}).
		Create(&kv).Error
	if err != nil {
		return
	}

	return
}

// ParseAndWriteLogs parses a batch of journal lines and mirrors the final
// state of every touched row into MySQL in one transaction. Within the
// batch the last write per row wins, so an open followed by a close ends
// as a delete.
func (w *Worker) ParseAndWriteLogs(ss []string) (err error) {
	latestLogID := int64(0)
	latestMsgSeq := int64(0)

	upsertStats := make(map[string]*model.Stat)
	upsertBalances := make(map[rowKey]*model.Balance)
	deleteBalances := make(map[rowKey]bool)
	upsertLockups := make(map[rowKey]*model.Lockup)
	deleteLockups := make(map[rowKey]bool)
	upsertPlans := make(map[rowKey]*model.UnlockPlan)
	deletePlans := make(map[rowKey]bool)
	newSnapsMap := make(map[string][]model.LedgerSnap)

	// ----- Parse the last log, if the latest log ID is less than or equal to the saved log ID, skip it
	ol := new(TokenLog)
	err = json.Unmarshal([]byte(ss[len(ss)-1]), ol)
	if err != nil {
		logger.Errorf("ParseAndWriteLogs failed with data:%s, err:%s", ss[len(ss)-1], err)
		return
	}
	if ol.LogID <= w.SavedLogID {
		logger.Debugf("ParseAndWriteLogs skip latestLogID:%d <= saveLogID:%d", ol.LogID, w.SavedLogID)
		return
	}

	// ----- Parse all logs and cache them as variables for further processing
	for _, s := range ss {
		tl := new(TokenLog)
		err = json.Unmarshal([]byte(s), tl)
		if err != nil {
			logger.Errorf("Unmarshal TokenLog failed with data:%s, err:%s", s, err)
			return
		}

		if tl.LogID <= w.SavedLogID {
			latestLogID = tl.LogID
			continue
		}

		if int64(tl.MsgSeq) > latestMsgSeq {
			latestMsgSeq = int64(tl.MsgSeq)
		}

		for _, ml := range tl.StatLogs {
			supply, _ := decimal.NewFromString(ml.SupplyNew)
			maxSupply, _ := decimal.NewFromString(ml.MaxSupplyNew)
			upsertStats[ml.Code] = &model.Stat{
				Code:      ml.Code,
				Precision: ml.Precision,
				Supply:    supply,
				MaxSupply: maxSupply,
				Issuer:    ml.Issuer,
			}
		}

		for _, ml := range tl.BalanceLogs {
			k := rowKey{Owner: ml.Owner, Code: ml.Code}
			if ml.Deleted {
				delete(upsertBalances, k)
				deleteBalances[k] = true
			} else {
				amountNew, _ := decimal.NewFromString(ml.AmountNew)
				upsertBalances[k] = &model.Balance{
					Owner:  ml.Owner,
					Code:   ml.Code,
					Amount: amountNew,
					Payer:  ml.Payer,
				}
				delete(deleteBalances, k)
			}

			change, _ := decimal.NewFromString(ml.Change)
			amountNew, _ := decimal.NewFromString(ml.AmountNew)
			newSnapsMap[ml.Code] = append(newSnapsMap[ml.Code], model.LedgerSnap{
				LogID:     tl.LogID,
				LogIndex:  ml.LogIndex,
				Action:    tl.Action,
				Owner:     ml.Owner,
				Payer:     ml.Payer,
				Change:    change,
				AmountNew: amountNew,
			})
		}

		for _, ml := range tl.LockupLogs {
			k := rowKey{Owner: ml.Owner, Code: ml.Code}
			if ml.Deleted {
				delete(upsertLockups, k)
				deleteLockups[k] = true
			} else {
				amountNew, _ := decimal.NewFromString(ml.AmountNew)
				upsertLockups[k] = &model.Lockup{
					Owner:      ml.Owner,
					Code:       ml.Code,
					Amount:     amountNew,
					ExpireTime: model.GormTime(ml.ExpireTime),
				}
				delete(deleteLockups, k)
			}
		}

		for _, ml := range tl.PlanLogs {
			k := rowKey{Owner: ml.Owner, Code: ml.Code}
			if ml.Deleted {
				delete(upsertPlans, k)
				deletePlans[k] = true
			} else {
				quantity, _ := decimal.NewFromString(ml.Quantity)
				upsertPlans[k] = &model.UnlockPlan{
					Owner:    ml.Owner,
					Code:     ml.Code,
					Quantity: quantity,
					NextTime: model.GormTime(ml.NextTime),
					SpanHour: ml.SpanHour,
				}
				delete(deletePlans, k)
			}
		}

		latestLogID = tl.LogID
	}

	if latestLogID <= w.SavedLogID {
		logger.Debugf("ParseAndWriteLogs skip because nothing new with latestLogID:%d, saveLogID:%d", latestLogID, w.SavedLogID)
		return
	}

	db := model.GetMySQLSlience()
	err = db.Transaction(func(tx *gorm.DB) (err error) {
		// upsert lastkv
		if latestMsgSeq > 0 {
			err = tx.Model(model.Lastkv{}).Where(model.Lastkv{
				App: w.Name,
				Key: model.LASTKV_K_NATS_SEQ,
			}).
				Updates(&model.Lastkv{
					Val: latestMsgSeq,
				}).
				Error
			if err != nil {
				return
			}
		}

		err = tx.Model(model.Lastkv{}).Where(model.Lastkv{
			App: w.Name,
			Key: model.LASTKV_K_SAVED_LOG_ID,
		}).
			Updates(&model.Lastkv{
				Val: latestLogID,
			}).
			Error
		if err != nil {
			return
		}

		// upsert stats
		for _, st := range upsertStats {
			err = tx.Model(model.Stat{}).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "code"}},
					DoUpdates: clause.AssignmentColumns([]string{"precision", "supply", "max_supply", "issuer", "updated_at"}),
				}).
				Create(st).Error
			if err != nil {
				return
			}
		}

		// upsert balances
		for _, bal := range upsertBalances {
			err = tx.Model(model.Balance{}).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "owner"}, {Name: "code"}},
					DoUpdates: clause.AssignmentColumns([]string{"amount", "payer", "updated_at"}),
				}).
				Create(bal).Error
			if err != nil {
				return
			}
		}
		for k := range deleteBalances {
			err = tx.Where("`owner`=? AND `code`=?", k.Owner, k.Code).Delete(&model.Balance{}).Error
			if err != nil {
				return
			}
		}

		// upsert lockups
		for _, lk := range upsertLockups {
			err = tx.Model(model.Lockup{}).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "owner"}, {Name: "code"}},
					DoUpdates: clause.AssignmentColumns([]string{"amount", "expire_time", "updated_at"}),
				}).
				Create(lk).Error
			if err != nil {
				return
			}
		}
		for k := range deleteLockups {
			err = tx.Where("`owner`=? AND `code`=?", k.Owner, k.Code).Delete(&model.Lockup{}).Error
			if err != nil {
				return
			}
		}

		// upsert unlock plans
		for _, p := range upsertPlans {
			err = tx.Model(model.UnlockPlan{}).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "owner"}, {Name: "code"}},
					DoUpdates: clause.AssignmentColumns([]string{"quantity", "next_time", "span_hour", "updated_at"}),
				}).
				Create(p).Error
			if err != nil {
				return
			}
		}
		for k := range deletePlans {
			err = tx.Where("`owner`=? AND `code`=?", k.Owner, k.Code).Delete(&model.UnlockPlan{}).Error
			if err != nil {
				return
			}
		}

		// create ledger snaps per code
		for code, newSnaps := range newSnapsMap {
			if len(newSnaps) > 0 {
				err = tx.Scopes(model.LedgerSnapTable(code)).CreateInBatches(newSnaps, len(newSnaps)).Error
				if err != nil {
					return
				}
			}
		}

		return nil
	})

	if latestLogID > w.SavedLogID {
		w.SavedLogID = latestLogID
	}

	return
}
