package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSignalNotFound is returned when a signal id has no journal row.
var ErrSignalNotFound = errors.New("signal not journaled")

// ReadSignal returns the journal row for id.
func (s *Store) ReadSignal(ctx context.Context, id string) (SignalRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, initial, ownership, capacity, created_at
		FROM signals
		WHERE id = ?
	`, id)

	rec, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SignalRecord{}, fmt.Errorf("%w: %s", ErrSignalNotFound, id)
	}
	return rec, err
}

// ListSignals returns every journaled signal ordered by id.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListSignals(ctx context.Context) ([]SignalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, initial, ownership, capacity, created_at
		FROM signals
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	out := []SignalRecord{}
	for rows.Next() {
		rec, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return out, nil
}

// ReadEvents returns every journaled event of a signal in append order.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ReadEvents(ctx context.Context, signalID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT signal_id, seq, event_id, kind, payload, hash
		FROM signal_events
		WHERE signal_id = ?
		ORDER BY seq ASC
	`, signalID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []EventRecord{}
	for rows.Next() {
		var rec EventRecord
		var eventID sql.NullString
		if err := rows.Scan(&rec.SignalID, &rec.Seq, &eventID, &rec.Kind, &rec.Payload, &rec.Hash); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if eventID.Valid {
			id := eventID.String
			rec.EventID = &id
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// ReadRuns returns the runs of a signal ordered by start seq.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ReadRuns(ctx context.Context, signalID string) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT signal_id, start_seq, initial, created_at
		FROM signal_runs
		WHERE signal_id = ?
		ORDER BY start_seq ASC
	`, signalID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := []RunRecord{}
	for rows.Next() {
		var rec RunRecord
		var initial sql.NullString
		var createdAt int64
		if err := rows.Scan(&rec.SignalID, &rec.StartSeq, &initial, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var text *string
		if initial.Valid {
			text = &initial.String
		}
		if rec.Initial, err = unmarshalInitial(text); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest journaled seq for a signal, or 0.
func (s *Store) LastSeq(ctx context.Context, signalID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM signal_events WHERE signal_id = ?`, signalID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSignal(row scanner) (SignalRecord, error) {
	var rec SignalRecord
	var initial sql.NullString
	var createdAt int64
	if err := row.Scan(&rec.ID, &initial, &rec.Ownership, &rec.Capacity, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SignalRecord{}, err
		}
		return SignalRecord{}, fmt.Errorf("scan signal: %w", err)
	}

	var text *string
	if initial.Valid {
		text = &initial.String
	}
	v, err := unmarshalInitial(text)
	if err != nil {
		return SignalRecord{}, err
	}
	rec.Initial = v
	rec.CreatedAt = time.UnixMilli(createdAt)
	return rec, nil
}
