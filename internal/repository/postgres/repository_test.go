package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/service/intake"
	"github.com/ticketfight/appeal-service/internal/service/pipeline"
)

const testIntakeID = "5f0c8a52-6d1e-4c8b-9a57-2f4e1b3c7d90"

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestPaymentEventRepo_InsertIfAbsent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentEventRepo(db)
	ev := &domain.PaymentEvent{EventID: "evt_1", Type: domain.EventCheckoutCompleted, IntakeID: "in_1", Payload: []byte(`{}`), ReceivedAt: time.Now()}

	mock.ExpectExec("INSERT INTO payment_events").
		WithArgs("evt_1", domain.EventCheckoutCompleted, "in_1", []byte(`{}`), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO payment_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.InsertIfAbsent(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.InsertIfAbsent(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, ok, "conflict affects no rows")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentEventRepo_AcceptedForIntake(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentEventRepo(db)

	mock.ExpectQuery("SELECT event_id, event_type, intake_id, received_at").
		WithArgs("in_1", domain.EventCheckoutCompleted, domain.EventAsyncPaymentSucceeded).
		WillReturnRows(sqlmock.NewRows([]string{"event_id", "event_type", "intake_id", "received_at"}).
			AddRow("evt_1", domain.EventCheckoutCompleted, "in_1", time.Now()))
	mock.ExpectQuery("SELECT event_id").WillReturnError(sql.ErrNoRows)

	ev, err := repo.AcceptedForIntake(context.Background(), "in_1")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.EventID)

	_, err = repo.AcceptedForIntake(context.Background(), "in_2")
	assert.ErrorIs(t, err, pipeline.ErrNoPayment)
}

func TestIntakeRepo_GetDecodesAddresses(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIntakeRepo(db)
	now := time.Now()

	cols := []string{"id", "city_id", "email", "email_verified", "ticket_number", "statement", "photo_keys",
		"issuing_authority", "return_address", "status", "payment_event_id",
		"failure_kind", "failure_reason", "stage_attempts", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT id, city_id").
		WithArgs(testIntakeID).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			testIntakeID, "us-ny-new_york", "a@example.com", true, "T-1", "text", "{photos/a.jpg,photos/b.png}",
			[]byte(`{"name":"Parking Bureau","line1":"1 Main"}`), []byte(`{"name":"Sam"}`), "paid", "evt_1",
			nil, nil, 2, now, now,
		))

	in, err := repo.Get(context.Background(), testIntakeID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntakePaid, in.Status)
	assert.Equal(t, []string{"photos/a.jpg", "photos/b.png"}, in.PhotoKeys)
	assert.Equal(t, "Parking Bureau", in.IssuingAuthority.Name)
	assert.Equal(t, "evt_1", in.PaymentEventID)
	assert.Empty(t, in.FailureKind)
	assert.Equal(t, 2, in.StageAttempts)
}

func TestIntakeRepo_GetNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT id, city_id").WillReturnError(sql.ErrNoRows)

	_, err := NewIntakeRepo(db).Get(context.Background(), testIntakeID)
	assert.ErrorIs(t, err, intake.ErrNotFound)
}

func TestIntakeRepo_MarkEmailVerified(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIntakeRepo(db)

	mock.ExpectExec("UPDATE intakes SET email_verified = TRUE").
		WithArgs(testIntakeID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE intakes SET email_verified = TRUE").
		WithArgs(testIntakeID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkEmailVerified(context.Background(), testIntakeID))
	assert.ErrorIs(t, repo.MarkEmailVerified(context.Background(), testIntakeID), intake.ErrNotFound)
	assert.ErrorIs(t, repo.MarkEmailVerified(context.Background(), "in_1"), intake.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntakeRepo_GetMalformedIDSkipsQuery(t *testing.T) {
	db, mock := newMock(t)

	_, err := NewIntakeRepo(db).Get(context.Background(), "cs_test_not-a-uuid")
	assert.ErrorIs(t, err, intake.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntakeRepo_TransitionIsConditional(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIntakeRepo(db)

	mock.ExpectExec("UPDATE intakes").
		WithArgs("in_1", domain.IntakeCreated, domain.IntakePaid, "evt_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE intakes").
		WithArgs("in_1", domain.IntakeCreated, domain.IntakePaid, "evt_2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Transition(context.Background(), "in_1", domain.IntakeCreated, domain.IntakePaid, "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(context.Background(), "in_1", domain.IntakeCreated, domain.IntakePaid, "evt_2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Transition(context.Background(), "in_1", domain.IntakeCreated, domain.IntakeMailed, "")
	assert.Error(t, err, "illegal edges never reach the database")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntakeRepo_IncrementAttempts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIntakeRepo(db)

	mock.ExpectQuery("UPDATE intakes").
		WithArgs("in_1", domain.IntakePaid).
		WillReturnRows(sqlmock.NewRows([]string{"stage_attempts"}).AddRow(3))

	n, err := repo.IncrementAttempts(context.Background(), "in_1", domain.IntakePaid)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMailResultRepo_InsertOncePerIntake(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMailResultRepo(db)
	res := &domain.MailResult{IntakeID: "in_1", TrackingID: "ltr_1", Status: domain.MailSubmitted, IdempotencyKey: "intake-in_1", CreatedAt: time.Now()}

	mock.ExpectExec("INSERT INTO mail_results").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO mail_results").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Insert(context.Background(), res)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Insert(context.Background(), res)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMailResultRepo_GetByTracking(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMailResultRepo(db)
	now := time.Now()

	cols := []string{"intake_id", "tracking_id", "status", "to_address", "from_address", "idempotency_key", "failure_reason", "created_at", "updated_at"}
	mock.ExpectQuery("FROM mail_results WHERE tracking_id").
		WithArgs("ltr_1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("in_1", "ltr_1", "in_transit", []byte(`{"name":"Bureau"}`), []byte(`{"name":"Sam"}`), "intake-in_1", nil, now, now))
	mock.ExpectQuery("FROM mail_results WHERE tracking_id").WillReturnError(sql.ErrNoRows)

	res, err := repo.GetByTracking(context.Background(), "ltr_1")
	require.NoError(t, err)
	assert.Equal(t, domain.MailInTransit, res.Status)
	assert.Equal(t, "Bureau", res.To.Name)

	_, err = repo.GetByTracking(context.Background(), "ltr_2")
	assert.ErrorIs(t, err, pipeline.ErrNoMailResult)
}

func TestRefinementRepo_SaveAndGet(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRefinementRepo(db)
	rs := &domain.RefinedStatement{IntakeID: "in_1", Text: "refined", PolicyCompliant: true, Provider: "anthropic", Model: "m", Attempts: 1, CreatedAt: time.Now()}

	mock.ExpectExec("INSERT INTO refined_statements").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM refined_statements").WillReturnError(sql.ErrNoRows)

	require.NoError(t, repo.Save(context.Background(), rs))
	_, err := repo.Get(context.Background(), "in_2")
	assert.ErrorIs(t, err, pipeline.ErrNoRefinement)
}

func TestStatsRepo_CountsPropagatesErrors(t *testing.T) {
	db, mock := newMock(t)
	repo := NewStatsRepo(db)

	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("mailed", 4).AddRow("paid", 1))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))
	mock.ExpectQuery("SELECT status, COUNT").WillReturnError(errors.New("connection refused"))

	byStatus, events, err := repo.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, byStatus[domain.IntakeMailed])
	assert.Equal(t, 6, events)

	_, _, err = repo.Counts(context.Background())
	assert.Error(t, err)
}
