package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PGQuerier is the subset of pgxpool.Pool used by PGStore. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type PGQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore persists call records in PostgreSQL. Per-record atomicity comes
// from SELECT ... FOR UPDATE inside a transaction.
type PGStore struct {
	db PGQuerier
}

// NewPGStore builds a Postgres-backed record store.
func NewPGStore(db PGQuerier) *PGStore {
	if db == nil {
		panic("calls: pg querier cannot be nil")
	}
	return &PGStore{db: db}
}

var _ Store = (*PGStore)(nil)

func (s *PGStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("calls: record id required")
	}
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("calls: marshal metrics: %w", err)
	}
	if _, execErr := s.db.Exec(ctx, `
		INSERT INTO call_records (
			id, destination, campaign_id, lead_id, variant_id, status,
			provider_sid, fail_reason, recording_url,
			created_at, answered_at, ended_at, duration_ms, scheduled_at, metrics
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, rec.ID, rec.Destination, rec.CampaignID, rec.LeadID, rec.VariantID, string(rec.Status),
		rec.ProviderSID, rec.FailReason, rec.RecordingURL,
		rec.CreatedAt, nullTime(rec.AnsweredAt), nullTime(rec.EndedAt),
		rec.Duration.Milliseconds(), nullTime(rec.ScheduledAt), metrics); execErr != nil {
		return fmt.Errorf("calls: failed to persist record: %w", execErr)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, destination, campaign_id, lead_id, variant_id, status,
		       provider_sid, fail_reason, recording_url,
		       created_at, answered_at, ended_at, duration_ms, scheduled_at, metrics
		FROM call_records WHERE id = $1
	`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("calls: get record: %w", err)
	}
	return rec, nil
}

func (s *PGStore) Update(ctx context.Context, id string, mutate func(*Record) error) (*Record, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("calls: begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, destination, campaign_id, lead_id, variant_id, status,
		       provider_sid, fail_reason, recording_url,
		       created_at, answered_at, ended_at, duration_ms, scheduled_at, metrics
		FROM call_records WHERE id = $1 FOR UPDATE
	`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("calls: record %s not found", id)
		}
		return nil, fmt.Errorf("calls: lock record: %w", err)
	}

	if err := mutate(rec); err != nil {
		return nil, err
	}

	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return nil, fmt.Errorf("calls: marshal metrics: %w", err)
	}
	if _, execErr := tx.Exec(ctx, `
		UPDATE call_records
		SET status = $2, provider_sid = $3, fail_reason = $4, recording_url = $5,
		    answered_at = $6, ended_at = $7, duration_ms = $8, scheduled_at = $9, metrics = $10
		WHERE id = $1
	`, rec.ID, string(rec.Status), rec.ProviderSID, rec.FailReason, rec.RecordingURL,
		nullTime(rec.AnsweredAt), nullTime(rec.EndedAt), rec.Duration.Milliseconds(),
		nullTime(rec.ScheduledAt), metrics); execErr != nil {
		return nil, fmt.Errorf("calls: update record: %w", execErr)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("calls: commit update: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec        Record
		status     string
		answeredAt *time.Time
		endedAt    *time.Time
		scheduled  *time.Time
		durationMS int64
		metrics    []byte
	)
	if err := row.Scan(&rec.ID, &rec.Destination, &rec.CampaignID, &rec.LeadID, &rec.VariantID,
		&status, &rec.ProviderSID, &rec.FailReason, &rec.RecordingURL,
		&rec.CreatedAt, &answeredAt, &endedAt, &durationMS, &scheduled, &metrics); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if answeredAt != nil {
		rec.AnsweredAt = *answeredAt
	}
	if endedAt != nil {
		rec.EndedAt = *endedAt
	}
	if scheduled != nil {
		rec.ScheduledAt = *scheduled
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &rec.Metrics); err != nil {
			return nil, fmt.Errorf("calls: unmarshal metrics: %w", err)
		}
	}
	return &rec, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
