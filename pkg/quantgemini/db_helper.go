package quantgemini

import (
	"context"
	"database/sql"
)

// withTx runs fn inside a transaction, rolling back on error or panic.
func (c *Core) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return WrapError(ErrCodeDatabase, "begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.Logger().Error("transaction rollback failed on panic", "err", rbErr, "panic_value", p)
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.Logger().Error("transaction rollback failed", "err", rbErr, "original_err", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return WrapError(ErrCodeDatabase, "commit transaction", err)
	}
	return nil
}
