package calls

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
)

var recordColumns = []string{
	"id", "destination", "campaign_id", "lead_id", "variant_id", "status",
	"provider_sid", "fail_reason", "recording_url",
	"created_at", "answered_at", "ended_at", "duration_ms", "scheduled_at", "metrics",
}

func TestPGStoreCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO call_records").
		WithArgs("c1", "+15550123456", "camp-1", "", "", "queued",
			"", "", "",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			int64(0), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPGStore(mock)
	rec := &Record{
		ID:          "c1",
		Destination: "+15550123456",
		CampaignID:  "camp-1",
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.Create(context.Background(), rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	created := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM call_records").
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows(recordColumns).AddRow(
			"c1", "+15550123456", "camp-1", "lead-1", "v1", "dialing",
			"CA123", "", "",
			created, (*time.Time)(nil), (*time.Time)(nil), int64(0), (*time.Time)(nil), []byte(`{}`),
		))

	store := NewPGStore(mock)
	rec, err := store.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil || rec.Status != StatusDialing || rec.ProviderSID != "CA123" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreUpdateLocksAndWrites(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	created := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FOR UPDATE").
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows(recordColumns).AddRow(
			"c1", "+15550123456", "camp-1", "lead-1", "", "queued",
			"", "", "",
			created, (*time.Time)(nil), (*time.Time)(nil), int64(0), (*time.Time)(nil), []byte(`{}`),
		))
	mock.ExpectExec("UPDATE call_records").
		WithArgs("c1", "dialing", "", "", "",
			pgxmock.AnyArg(), pgxmock.AnyArg(), int64(0),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	store := NewPGStore(mock)
	now := time.Now().UTC()
	rec, err := store.Update(context.Background(), "c1", func(r *Record) error {
		return r.Advance(StatusDialing, now)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Status != StatusDialing {
		t.Fatalf("expected dialing, got %s", rec.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
