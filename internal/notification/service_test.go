package notification

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyumbahub/rentals/internal/directory"
)

type stubUsers map[int64]*directory.User

func (s stubUsers) Lookup(ctx context.Context, id int64) (*directory.User, error) {
	u, ok := s[id]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	return u, nil
}

type sentMail struct{ to, subject, body string }

type stubMailer struct{ sent []sentMail }

func (m *stubMailer) Send(to, subject, body string) error {
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

var notificationRowColumns = []string{
	"id", "recipient_id", "event_type", "title", "message", "message_sw", "action_url",
	"is_read", "email_sent", "related_entity_type", "related_entity_id", "created_at",
}

func TestService_Send(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	users := stubUsers{8: {ID: 8, Email: "amina@example.co.tz", PreferredLanguage: directory.LanguageSwahili}}
	mailer := &stubMailer{}
	svc := NewService(NewRepository(db), users, mailer, quietLogger())

	payload := Payload{
		EntityType:    EntityPayment,
		EntityID:      31,
		Amount:        decimal.NewFromInt(650000),
		Period:        "March 2026",
		ReceiptNumber: "RCP-202603051200-0031",
	}
	msg, err := Render(EventPaymentReceived, payload)
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs(int64(8), EventPaymentReceived, msg.Title, msg.English, msg.Swahili, "/payments/31", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns).
			AddRow(100, 8, "payment_received", msg.Title, msg.English, msg.Swahili, "/payments/31", false, false, "payment", 31, time.Now()))
	mock.ExpectExec(`UPDATE notifications SET email_sent = true`).WithArgs(int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.Send(context.Background(), EventPaymentReceived, 8, payload))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "amina@example.co.tz", mailer.sent[0].to)
	assert.Equal(t, msg.Swahili, mailer.sent[0].body)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_SendWithoutMailer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(NewRepository(db), nil, nil, quietLogger())

	mock.ExpectQuery(`INSERT INTO notifications`).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns).
			AddRow(101, 3, "lease_expired", "Lease Expired", "m", "m", "/leases/5", false, false, "lease", 5, time.Now()))

	err = svc.Send(context.Background(), EventLeaseExpired, 3, Payload{EntityType: EntityLease, EntityID: 5, LeaseID: 5})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_MarkAsRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	svc := NewService(NewRepository(db), nil, nil, quietLogger())

	mock.ExpectQuery(`FROM notifications WHERE id = \$1`).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns).
			AddRow(5, 3, "rent_due", "t", "m", "m", "", false, false, nil, nil, time.Now()))

	assert.ErrorIs(t, svc.MarkAsRead(context.Background(), 5, 4), ErrNotRecipient)

	mock.ExpectQuery(`FROM notifications WHERE id = \$1`).WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns))
	assert.ErrorIs(t, svc.MarkAsRead(context.Background(), 6, 4), ErrNotificationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
