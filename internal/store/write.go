package store

import (
	"context"
	"fmt"
)

// WriteSignal records a signal's creation and the run it starts.
// The signals row uses ON CONFLICT(id) DO NOTHING: re-registering an id keeps
// the first row. Every distinct StartSeq adds a run.
func (s *Store) WriteSignal(ctx context.Context, rec SignalRecord) error {
	initial, err := marshalInitial(rec.Initial)
	if err != nil {
		return fmt.Errorf("write signal: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write signal: begin tx: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO signals (id, initial, ownership, capacity, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		initial,
		rec.Ownership,
		rec.Capacity,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write signal: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO signal_runs (signal_id, start_seq, initial, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(signal_id, start_seq) DO NOTHING
	`,
		rec.ID,
		rec.StartSeq,
		initial,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write signal run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write signal: commit: %w", err)
	}
	return nil
}

// WriteEvent appends one event. Duplicate (signal_id, seq) rows are silently
// ignored so a retried batch never double-journals.
//
// The signal row must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, rec EventRecord) error {
	_, err := s.db.ExecContext(ctx, insertEventSQL,
		rec.SignalID, rec.Seq, rec.EventID, rec.Kind, rec.Payload, rec.Hash)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteEvents appends a batch in one transaction.
func (s *Store) WriteEvents(ctx context.Context, recs []EventRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	stmt, err := tx.PrepareContext(ctx, insertEventSQL)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx,
			rec.SignalID, rec.Seq, rec.EventID, rec.Kind, rec.Payload, rec.Hash); err != nil {
			return fmt.Errorf("write events: %s/%d: %w", rec.SignalID, rec.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}

const insertEventSQL = `
	INSERT INTO signal_events (signal_id, seq, event_id, kind, payload, hash)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(signal_id, seq) DO NOTHING
`
