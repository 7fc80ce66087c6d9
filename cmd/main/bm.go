package main

import (
	"fmt"
	"os"

	"tokenbank/pkg/model"
	"tokenbank/pkg/xetcd"

	"github.com/nats-io/nats.go"
)

// PrepareForBenchmark prepare mysql, nats, etcd for benchmark with docker compose
func PrepareForBenchmark() (err error) {

	// 0. Check if prepared

	filePath := "/tmp/tokenbank_bm_prepared_flag"

	_, err = os.Stat(filePath)
	if err == nil || !os.IsNotExist(err) {
		// already prepared, just wait
		select {}
	}

	// 1. Prepare database

	db := model.GetMySQL()

	type TableName struct {
		TableName string `gorm:"column:TABLE_NAME"`
	}
	var tableNames []TableName
	db.Raw("SELECT TABLE_NAME FROM information_schema.tables WHERE table_schema = DATABASE()").Scan(&tableNames)

	for _, t := range tableNames {
		db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS `%s`", t.TableName))
	}

	db.AutoMigrate(model.Stat{})
	db.AutoMigrate(model.Balance{})
	db.AutoMigrate(model.Lockup{})
	db.AutoMigrate(model.UnlockPlan{})
	db.Scopes(model.LedgerSnapTable("TOK")).AutoMigrate(model.LedgerSnap{})
	db.AutoMigrate(model.Lastkv{})
	db.AutoMigrate(model.User{})

	// seed the accounts the gateway benchmark transfers between
	users := make([]model.User, 0, 1000)
	for i := 1; i <= 1000; i++ {
		users = append(users, model.User{Name: fmt.Sprintf("u%d", i)})
	}
	db.CreateInBatches(users, 200)

	// 2. Prepare nats

	// Connect to nats and create the jetstream
	natsUrl := "nats_token:4222"

	logger.Infof("nats connecting %s", natsUrl)
	nc, err := nats.Connect(natsUrl)
	if err != nil {
		logger.Debugf("bm prepare failed with err:%s", err)
		return
	}
	logger.Infof("nats connected %s", natsUrl)

	// Create JetStream Context
	js, err := nc.JetStream()
	if err != nil {
		logger.Debugf("bm prepare failed with err:%s", err)
		return
	}

	// Create a Stream
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "TOKEN",
		Subjects: []string{"TOKEN.*"},
	})
	if err != nil {
		logger.Debugf("bm prepare failed with err:%s", err)
		return
	}

	// 3. Prepare etcd

	err = xetcd.Put(xetcd.KeyNatsService(), natsUrl)
	if err != nil {
		logger.Debugf("bm prepare failed with err:%s", err)
		return
	}

	// 4. Create flag file -- set prepared

	_, err = os.Create(filePath)
	if err != nil {
		logger.Debugf("bm prepare failed with err:%s", err)
		return
	}

	logger.Infof("bm prepared")
	select {}
}
