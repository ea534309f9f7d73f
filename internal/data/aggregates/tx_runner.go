package aggregates

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/atlas-ingest/internal/domain/aggregates"
	"github.com/yungbote/atlas-ingest/internal/platform/dbctx"
	"github.com/yungbote/atlas-ingest/internal/platform/envutil"
)

// TxRunner opens the transaction an aggregate write runs in.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewGormTxRunner runs writes in GORM transactions. Each transaction waits at most
// INGEST_LOCK_TIMEOUT_MS (default 5000) for atlas and file row locks; a timeout surfaces
// as a retryable error so the relay redelivers.
func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{
		db:          db,
		lockTimeout: time.Duration(envutil.Int("INGEST_LOCK_TIMEOUT_MS", 5000)) * time.Millisecond,
	}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if r == nil || r.db == nil {
		return domainagg.NewError(domainagg.CodeInternal, "aggregate.tx", "transaction runner has nil db", nil)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.lockTimeout > 0 {
			// SET does not take bind parameters.
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}
