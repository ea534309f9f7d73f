package testutil

import (
	"os"
	"strings"
	"sync"
	"testing"

	"gorm.io/gorm"

	appdb "github.com/yungbote/atlas-ingest/internal/data/db"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

// EnvDSN names the database the repo integration tests run against. Tests skip when unset.
const EnvDSN = "TEST_POSTGRES_DSN"

var (
	pgOnce sync.Once
	pgDB   *gorm.DB
	pgErr  error
)

// Logger returns a development logger scoped to tb.
func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("logger.New: %v", err)
	}
	return log.With("test", tb.Name())
}

// DB connects to EnvDSN with the production connection setup and applies the ingestion
// schema once per test binary.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := strings.TrimSpace(os.Getenv(EnvDSN))
	if dsn == "" {
		tb.Skipf("set %s to run repo integration tests", EnvDSN)
	}
	pgOnce.Do(func() {
		svc, err := appdb.NewPostgresService(logger.Nop(), dsn)
		if err != nil {
			pgErr = err
			return
		}
		if err := svc.AutoMigrateAll(); err != nil {
			pgErr = err
			return
		}
		pgDB = svc.DB()
	})
	if pgErr != nil {
		tb.Fatalf("test database: %v", pgErr)
	}
	return pgDB
}

// Tx opens a transaction that is rolled back when tb finishes, so tests never see each
// other's rows.
func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if err := tx.Error; err != nil {
		tb.Fatalf("begin: %v", err)
	}
	tb.Cleanup(func() { tx.Rollback() })
	return tx
}
