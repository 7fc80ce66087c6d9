package model_test

import (
	"os"
	"path"
	"testing"

	"tokenbank/pkg/config"
	"tokenbank/pkg/model"
	"tokenbank/pkg/xlog"

	"gorm.io/gorm"
)

var db *gorm.DB

func TestMain(m *testing.M) {
	// migration tests need a local mysql, skip the whole package without one
	if os.Getenv("TOKENBANK_TEST_MYSQL") == "" {
		os.Exit(0)
	}

	config.Shared = &config.Config{
		IsDebug: true,
	}

	config.Shared.MySQL.Main = config.MySQLServer{
		Host:         "127.0.0.1",
		User:         "tokenbank",
		Pass:         "localdbtestpwd",
		DB:           "tokenbank",
		Port:         3306,
		MaxOpenConns: 8,
	}

	xlog.Init("test", path.Join(os.TempDir(), "logs/tokenbank-test.log"))

	db = model.OpenMySQL()
	os.Exit(m.Run())
}

func TestMigrate(t *testing.T) {
	db.AutoMigrate(model.Stat{})
	db.AutoMigrate(model.Balance{})
	db.AutoMigrate(model.Lockup{})
	db.AutoMigrate(model.UnlockPlan{})
	db.AutoMigrate(model.Lastkv{})
	db.AutoMigrate(model.User{})

	db.Scopes(model.LedgerSnapTable("TOK")).AutoMigrate(model.LedgerSnap{})
	db.Scopes(model.LedgerSnapTable("BTC")).AutoMigrate(model.LedgerSnap{})
}
