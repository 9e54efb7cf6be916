// internal/notify/escalation_test.go
package notify

import (
	"context"
	"testing"

	"orderbot-workers/internal/common/config"
	"orderbot-workers/internal/common/logger"
	"orderbot-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type mockSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{}, nil
}

type mockSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{}, nil
}

// ==========================
// Test helpers
// ==========================

func notifierConfig(emailEnabled, smsEnabled bool) *config.NotificationConfig {
	cfg := &config.NotificationConfig{}
	cfg.Email.Enabled = emailEnabled
	cfg.Email.FromEmail = "alerts@orderbot.test"
	cfg.SMS.Enabled = smsEnabled
	return cfg
}

func sampleEscalation() *Escalation {
	return &Escalation{
		TenantID:      "tenant-1",
		CustomerPhone: "+573001112233",
		MessageText:   "necesito hablar con alguien ya",
		Reason:        ReasonLowConfidence,
		Confidence:    0.35,
		Intent:        models.IntentUnknown,
	}
}

func expectStaffContact(mock sqlmock.Sqlmock, email, phone string) {
	mock.ExpectQuery("SELECT notification_email, notification_phone FROM tenants").
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"notification_email", "notification_phone"}).
			AddRow(email, phone))
}

// ==========================
// Escalate
// ==========================

func TestEscalate_SendsEmailAndSMS(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectStaffContact(mock, "staff@tenant.test", "+573009998877")

	sesMock := &mockSES{}
	snsMock := &mockSNS{}
	notifier := NewNotifier(notifierConfig(true, true), db, sesMock, snsMock, logger.NewNoOpLogger())

	id := notifier.Escalate(context.Background(), sampleEscalation())
	assert.NotEmpty(t, id)

	require.Len(t, sesMock.inputs, 1)
	assert.Equal(t, []string{"staff@tenant.test"}, sesMock.inputs[0].Destination.ToAddresses)
	assert.Contains(t, *sesMock.inputs[0].Message.Body.Text.Data, "+573001112233")
	assert.Contains(t, *sesMock.inputs[0].Message.Body.Text.Data, "low_confidence")

	require.Len(t, snsMock.inputs, 1)
	assert.Equal(t, "+573009998877", *snsMock.inputs[0].PhoneNumber)
}

func TestEscalate_EmailOnlyWhenSMSDisabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectStaffContact(mock, "staff@tenant.test", "+573009998877")

	sesMock := &mockSES{}
	snsMock := &mockSNS{}
	notifier := NewNotifier(notifierConfig(true, false), db, sesMock, snsMock, logger.NewNoOpLogger())

	notifier.Escalate(context.Background(), sampleEscalation())
	assert.Len(t, sesMock.inputs, 1)
	assert.Empty(t, snsMock.inputs)
}

func TestEscalate_MissingStaffContactDoesNotPanic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT notification_email, notification_phone FROM tenants").
		WithArgs("tenant-1").
		WillReturnError(assert.AnError)

	sesMock := &mockSES{}
	notifier := NewNotifier(notifierConfig(true, true), db, sesMock, &mockSNS{}, logger.NewNoOpLogger())

	id := notifier.Escalate(context.Background(), sampleEscalation())
	assert.NotEmpty(t, id)
	assert.Empty(t, sesMock.inputs)
}

func TestEscalate_DeliveryFailureIsSwallowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectStaffContact(mock, "staff@tenant.test", "")

	sesMock := &mockSES{err: assert.AnError}
	notifier := NewNotifier(notifierConfig(true, true), db, sesMock, &mockSNS{}, logger.NewNoOpLogger())

	id := notifier.Escalate(context.Background(), sampleEscalation())
	assert.NotEmpty(t, id)
}
