// internal/notify/escalation.go
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"orderbot-workers/internal/common/config"
	"orderbot-workers/internal/common/logger"
	"orderbot-workers/internal/common/metrics"
	"orderbot-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
)

// Interfaces for mocking the AWS clients in tests.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// EscalationReason classifies why the conversation needs a human.
type EscalationReason string

const (
	ReasonLowConfidence EscalationReason = "low_confidence"
	ReasonParseFailure  EscalationReason = "parse_failure"
	ReasonComplaint     EscalationReason = "complaint"
	ReasonPipelineError EscalationReason = "pipeline_error"
)

// Escalation is what tenant staff receive when the pipeline hands off.
type Escalation struct {
	NotificationID string
	TenantID       string
	CustomerPhone  string
	MessageText    string
	Reason         EscalationReason
	Confidence     float64
	Intent         models.Intent
}

// Notifier alerts tenant staff about conversations the pipeline could
// not handle. Delivery is best-effort: a notification failure is logged
// and never blocks the customer-facing reply.
type Notifier struct {
	config    *config.NotificationConfig
	db        *sql.DB
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
}

func NewNotifier(cfg *config.NotificationConfig, db *sql.DB, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		config:    cfg,
		db:        db,
		logger:    log.WithFields(map[string]interface{}{"component": "notify"}),
		sesClient: sesClient,
		snsClient: snsClient,
	}
}

// Escalate notifies the tenant's staff contacts. Returns the
// notification id for tracing; errors are swallowed after logging.
func (n *Notifier) Escalate(ctx context.Context, esc *Escalation) string {
	esc.NotificationID = uuid.New().String()
	metrics.Escalations.WithLabelValues(esc.TenantID).Inc()

	email, phone, err := n.staffContact(ctx, esc.TenantID)
	if err != nil {
		n.logger.Warn("no staff contact for tenant, escalation dropped", map[string]interface{}{
			"tenantId":       esc.TenantID,
			"notificationId": esc.NotificationID,
			"error":          err.Error(),
		})
		return esc.NotificationID
	}

	subject, body := renderEscalation(esc)

	emailSent := false
	smsSent := false

	if n.config.Email.Enabled && email != "" && n.sesClient != nil {
		if err := n.sendEmail(ctx, email, subject, body); err != nil {
			n.logger.Error("escalation email failed", map[string]interface{}{
				"tenantId":       esc.TenantID,
				"notificationId": esc.NotificationID,
				"error":          err.Error(),
			})
		} else {
			emailSent = true
		}
	}

	if n.config.SMS.Enabled && phone != "" && n.snsClient != nil {
		if err := n.sendSMS(ctx, phone, body); err != nil {
			n.logger.Error("escalation SMS failed", map[string]interface{}{
				"tenantId":       esc.TenantID,
				"notificationId": esc.NotificationID,
				"error":          err.Error(),
			})
		} else {
			smsSent = true
		}
	}

	n.logger.Info("escalation dispatched", map[string]interface{}{
		"tenantId":       esc.TenantID,
		"notificationId": esc.NotificationID,
		"reason":         string(esc.Reason),
		"emailSent":      emailSent,
		"smsSent":        smsSent,
	})

	return esc.NotificationID
}

func (n *Notifier) staffContact(ctx context.Context, tenantID string) (string, string, error) {
	var email, phone sql.NullString
	err := n.db.QueryRowContext(ctx,
		`SELECT notification_email, notification_phone FROM tenants WHERE id = $1`,
		tenantID,
	).Scan(&email, &phone)
	if err != nil {
		return "", "", err
	}
	return email.String, phone.String, nil
}

func renderEscalation(esc *Escalation) (string, string) {
	subject := fmt.Sprintf("Conversación escalada: %s", esc.CustomerPhone)
	body := fmt.Sprintf(
		"Un cliente necesita atención humana.\n\n"+
			"Teléfono: %s\n"+
			"Mensaje: %s\n"+
			"Motivo: %s\n"+
			"Intención detectada: %s (confianza %.2f)\n"+
			"Hora: %s\n",
		esc.CustomerPhone, esc.MessageText, esc.Reason, esc.Intent, esc.Confidence,
		time.Now().UTC().Format(time.RFC3339),
	)
	return subject, body
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.Email.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	_, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
}
