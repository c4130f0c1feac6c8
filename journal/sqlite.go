package journal

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordClose(r CloseRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO closes
		(event_id, ticket, symbol, side, volume, open_price, close_price, open_time, close_time, profit, reason, degraded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.EventID, r.Ticket, r.Symbol, r.Side, r.Volume, r.OpenPrice,
		r.ClosePrice, r.OpenTime, r.CloseTime, r.Profit, r.Reason, r.Degraded,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (time, balance, equity, profit)
		VALUES (?, ?, ?, ?)`,
		e.Time, e.Balance, e.Equity, e.Profit,
	)
	return err
}

// ListCloses returns close events with close_time >= since, newest first.
func (j *SQLite) ListCloses(ctx context.Context, since time.Time) ([]CloseRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT event_id, ticket, symbol, side, volume, open_price, close_price,
		       open_time, close_time, profit, reason, degraded
		FROM closes
		WHERE close_time >= ?
		ORDER BY close_time DESC`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CloseRecord
	for rows.Next() {
		var r CloseRecord
		if err := rows.Scan(
			&r.EventID, &r.Ticket, &r.Symbol, &r.Side, &r.Volume,
			&r.OpenPrice, &r.ClosePrice, &r.OpenTime, &r.CloseTime,
			&r.Profit, &r.Reason, &r.Degraded,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
