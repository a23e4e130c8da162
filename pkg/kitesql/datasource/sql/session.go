package sql

import "context"

// AutoCommit switches auto-commit on the session. MySQL uses SET autocommit. Postgres and SQLite
// have no such switch, so disabling opens a transaction with BEGIN and enabling commits it.
func (d *DB) AutoCommit(ctx context.Context, enabled bool) error {
	if d.dialect == DialectMySQL {
		stmt := "SET autocommit=0"
		if enabled {
			stmt = "SET autocommit=1"
		}

		return d.session(ctx, "AutoCommit", stmt)
	}

	switch {
	case enabled && d.inTx:
		if err := d.session(ctx, "AutoCommit", "COMMIT"); err != nil {
			return err
		}

		d.inTx = false
	case !enabled && !d.inTx:
		if err := d.session(ctx, "AutoCommit", "BEGIN"); err != nil {
			return err
		}

		d.inTx = true
	}

	return nil
}

// Commit commits the open transaction and leaves auto-commit disabled, so the next mutating
// statement runs inside a fresh transaction.
func (d *DB) Commit(ctx context.Context) error {
	return d.finish(ctx, "Commit", "COMMIT")
}

// Rollback rolls back the open transaction and leaves auto-commit disabled.
func (d *DB) Rollback(ctx context.Context) error {
	return d.finish(ctx, "Rollback", "ROLLBACK")
}

func (d *DB) finish(ctx context.Context, op, stmt string) error {
	if err := d.session(ctx, op, stmt); err != nil {
		return err
	}

	d.inTx = false

	return d.AutoCommit(ctx, false)
}

// session runs a parameterless session statement outside the prepared statement path.
func (d *DB) session(ctx context.Context, op, stmt string) (err error) {
	ctx, done := d.observe(ctx, op, stmt)
	defer func() { done(err, nil) }()

	if _, err = d.conn.ExecContext(ctx, stmt); err != nil {
		return newError(ErrExecution, op, d.alias, err)
	}

	return nil
}
