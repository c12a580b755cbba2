package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventCols = []string{"id", "event_type", "appointment_id", "payload", "created_at"}

type fakePublisher struct {
	got []Event
	err error
}

func (f *fakePublisher) Publish(ctx context.Context, events []Event) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, events...)
	return nil
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestRunOnce_PublishesAndMarks(t *testing.T) {
	mock := newMock(t)
	pub := &fakePublisher{}
	appt := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM event_logs\s+WHERE published_at IS NULL\s+ORDER BY id\s+LIMIT \$1\s+FOR UPDATE SKIP LOCKED`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(eventCols).
			AddRow(int64(7), "APPOINTMENT_BOOKED", appt, []byte(`{"slot_id":"s"}`), now).
			AddRow(int64(8), "APPOINTMENT_CANCELED", appt, []byte(`{}`), now))
	mock.ExpectExec(`UPDATE event_logs\s+SET published_at = now\(\)`).
		WithArgs([]int64{7, 8}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	n, err := NewRelay(mock, pub, 10, zerolog.Nop()).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	require.Len(t, pub.got, 2)
	assert.Equal(t, "APPOINTMENT_CANCELED", pub.got[1].EventType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnce_EmptyBatchCommits(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).WithArgs(100).WillReturnRows(pgxmock.NewRows(eventCols))
	mock.ExpectCommit()

	n, err := NewRelay(mock, &fakePublisher{}, 0, zerolog.Nop()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnce_PublishFailureLeavesRowsUnpublished(t *testing.T) {
	mock := newMock(t)
	pub := &fakePublisher{err: errors.New("kafka: leader not available")}

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(eventCols).AddRow(int64(1), "APPOINTMENT_BOOKED", uuid.New(), []byte(`{}`), time.Now()))
	mock.ExpectRollback()

	n, err := NewRelay(mock, pub, 10, zerolog.Nop()).RunOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaPublisher_KeysByAppointment(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w}
	appt := uuid.New()

	err := p.Publish(context.Background(), []Event{
		{ID: 42, EventType: "APPOINTMENT_BOOKED", AppointmentID: appt, Payload: []byte(`{"a":1}`)},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, appt.String(), string(msg.Key))
	assert.Equal(t, `{"a":1}`, string(msg.Value))
	assert.Equal(t, []kafka.Header{
		{Key: "event_id", Value: []byte("42")},
		{Key: "event_type", Value: []byte("APPOINTMENT_BOOKED")},
	}, msg.Headers)
}
