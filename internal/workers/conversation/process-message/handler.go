// internal/workers/conversation/process-message/handler.go
package processmessage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"orderbot-workers/internal/classifier"
	commonerrors "orderbot-workers/internal/common/errors"
	"orderbot-workers/internal/common/logger"
	"orderbot-workers/internal/common/metrics"
	"orderbot-workers/internal/extraction"
	"orderbot-workers/internal/models"
	"orderbot-workers/internal/notify"
	"orderbot-workers/internal/orderassembly"
	"orderbot-workers/internal/reply"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/xeipuuv/gojsonschema"
)

const (
	TaskType = "process-customer-message"
)

// inputSchema guards the contract with the message gateway upstream.
var inputSchema = map[string]interface{}{
	"type":     "object",
	"required": []string{"tenantId", "messageId", "customerPhone", "messageText"},
	"properties": map[string]interface{}{
		"tenantId":      map[string]interface{}{"type": "string", "minLength": 1},
		"messageId":     map[string]interface{}{"type": "string", "minLength": 1},
		"customerPhone": map[string]interface{}{"type": "string", "minLength": 1},
		"messageText":   map[string]interface{}{"type": "string", "minLength": 1},
		"mediaUrl":      map[string]interface{}{"type": "string"},
	},
}

// Interfaces for mocking the collaborators in tests.
type CatalogStore interface {
	ProductsByTenant(ctx context.Context, tenantID string) ([]models.Product, error)
	InvalidateCatalog(ctx context.Context, tenantID string)
	RecentMessages(ctx context.Context, tenantID, customerPhone string, limit int) ([]models.IncomingMessage, error)
	AttachNLPMetadata(ctx context.Context, messageID string, blob []byte) error
	SaveOutboundMessage(ctx context.Context, msg *models.IncomingMessage) error
}

type OrderAssembler interface {
	Assemble(ctx context.Context, msg *models.IncomingMessage, result *models.ExtractionResult) (*models.Order, bool, error)
}

type EscalationNotifier interface {
	Escalate(ctx context.Context, esc *notify.Escalation) string
}

type ExchangeArchiver interface {
	ArchiveExchange(ctx context.Context, msg *models.IncomingMessage, result *models.ExtractionResult, reply, state, orderID string)
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	errorHandler *commonerrors.ErrorHandler
	store        CatalogStore
	classifier   classifier.Classifier
	assembler    OrderAssembler
	notifier     EscalationNotifier
	archiver     ExchangeArchiver
}

func NewHandler(cfg *Config, store CatalogStore, cls classifier.Classifier, assembler OrderAssembler, notifier EscalationNotifier, archiver ExchangeArchiver, log logger.Logger) *Handler {
	workerLog := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       cfg,
		logger:       workerLog,
		errorHandler: commonerrors.NewErrorHandler(workerLog),
		store:        store,
		classifier:   cls,
		assembler:    assembler,
		notifier:     notifier,
		archiver:     archiver,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	started := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := h.parseInput(job.Variables)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(commonerrors.ErrCodeMessagePayloadInvalid)).Inc()
		h.errorHandler.HandleJobError(context.Background(), client, job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, input)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode(err)).Inc()
		h.apologizeOnFatal(context.Background(), input, err)
		h.errorHandler.HandleJobError(context.Background(), client, job, err)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(started).Seconds())
	h.completeJob(client, job, output)
}

func (h *Handler) parseInput(variables string) (*Input, error) {
	documentLoader := gojsonschema.NewStringLoader(variables)
	schemaLoader := gojsonschema.NewGoLoader(inputSchema)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, commonerrors.NewMessagePayloadInvalidError(err.Error())
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, commonerrors.NewMessagePayloadInvalidError(strings.Join(errs, "; "))
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, commonerrors.NewMessagePayloadInvalidError(err.Error())
	}
	return &input, nil
}

// execute runs the whole pipeline for one inbound message: classify,
// parse, validate, branch, reply. It returns an error only for faults
// worth retrying the job for; everything the pipeline can answer
// gracefully is answered, escalating on the side when warranted.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	msg := &models.IncomingMessage{
		ID:            input.MessageID,
		TenantID:      input.TenantID,
		CustomerPhone: input.CustomerPhone,
		Body:          input.MessageText,
		Direction:     models.DirectionInbound,
	}

	products, err := h.store.ProductsByTenant(ctx, input.TenantID)
	if err != nil {
		return nil, commonerrors.NewDatabaseConnectionFailedError(err)
	}

	history, err := h.store.RecentMessages(ctx, input.TenantID, input.CustomerPhone, h.config.HistoryDepth)
	if err != nil {
		h.logger.Warn("history unavailable, classifying without context", map[string]interface{}{
			"messageId": input.MessageID,
			"error":     err.Error(),
		})
		history = nil
	}

	var result *models.ExtractionResult
	classifierDown := false

	completion, err := h.classifier.Classify(ctx, &classifier.Request{
		TenantID:    input.TenantID,
		MessageText: input.MessageText,
		Products:    products,
		History:     history,
	})
	if err != nil {
		// The customer still gets an answer when the model is down:
		// the same clarification fallback a garbled completion takes.
		h.logger.Error("classifier unavailable", map[string]interface{}{
			"messageId": input.MessageID,
			"error":     err.Error(),
		})
		classifierDown = true
		result = extraction.Parse("")
	} else {
		result = extraction.Parse(completion)
	}

	extraction.Validate(result, products)

	state := Decide(result, h.config.OrderConfidence)

	output := &Output{
		Intent:        string(result.Intent),
		Confidence:    result.Confidence,
		PipelineState: string(state),
	}

	switch state {
	case StateOrderReady:
		order, _, err := h.assembler.Assemble(ctx, msg, result)
		switch {
		case err == nil:
			output.OrderID = order.ID
			output.Reply = reply.Confirmation(order)
		case errors.Is(err, orderassembly.ErrInsufficientStock), errors.Is(err, orderassembly.ErrProductVanished):
			// Catalog moved under us between validation and commit.
			// Re-validate against fresh stock and downgrade.
			h.store.InvalidateCatalog(ctx, input.TenantID)
			if fresh, ferr := h.store.ProductsByTenant(ctx, input.TenantID); ferr == nil {
				extraction.Validate(result, fresh)
			}
			state = StateOrderPartial
			output.PipelineState = string(state)
			output.Reply = reply.Partial(result)
		default:
			return nil, err
		}
	case StateOrderPartial:
		output.Reply = reply.Partial(result)
	case StateClarificationNeed:
		output.Reply = reply.Clarification(result)
	case StateInformational:
		output.Reply = reply.Informational(result)
	case StateParseFailed:
		output.Reply = result.Reply
	}

	h.attachMetadata(ctx, input.MessageID, result, state)

	if reason, ok := h.escalationReason(result, state, classifierDown); ok {
		output.Escalated = true
		output.NotificationID = h.notifier.Escalate(ctx, &notify.Escalation{
			TenantID:      input.TenantID,
			CustomerPhone: input.CustomerPhone,
			MessageText:   input.MessageText,
			Reason:        reason,
			Confidence:    result.Confidence,
			Intent:        result.Intent,
		})
	}

	outbound := &models.IncomingMessage{
		TenantID:      input.TenantID,
		CustomerPhone: input.CustomerPhone,
		Body:          output.Reply,
		OrderID:       output.OrderID,
	}
	if err := h.store.SaveOutboundMessage(ctx, outbound); err != nil {
		return nil, commonerrors.NewOrderPersistFailedError(fmt.Errorf("save outbound message: %w", err))
	}

	if h.archiver != nil {
		h.archiver.ArchiveExchange(ctx, msg, result, output.Reply, string(state), output.OrderID)
	}

	metrics.PipelineMessages.WithLabelValues(input.TenantID, strings.ToLower(string(state))).Inc()
	h.logger.Info("message processed", map[string]interface{}{
		"messageId":     input.MessageID,
		"tenantId":      input.TenantID,
		"intent":        output.Intent,
		"confidence":    output.Confidence,
		"pipelineState": output.PipelineState,
		"escalated":     output.Escalated,
	})

	return output, nil
}

// apologizeOnFatal sends the generic technical-difficulties text when a
// contract violation kills the job. Retryable failures stay silent: the
// redelivered job will answer normally.
func (h *Handler) apologizeOnFatal(ctx context.Context, input *Input, err error) {
	var stdErr *commonerrors.StandardError
	if !errors.As(err, &stdErr) || stdErr.Code != commonerrors.ErrCodeContractViolation {
		return
	}
	outbound := &models.IncomingMessage{
		TenantID:      input.TenantID,
		CustomerPhone: input.CustomerPhone,
		Body:          reply.TechnicalDifficulties,
	}
	if serr := h.store.SaveOutboundMessage(ctx, outbound); serr != nil {
		h.logger.Warn("failed to save technical difficulties reply", map[string]interface{}{
			"messageId": input.MessageID,
			"error":     serr.Error(),
		})
	}
}

func (h *Handler) escalationReason(result *models.ExtractionResult, state State, classifierDown bool) (notify.EscalationReason, bool) {
	switch {
	case classifierDown:
		return notify.ReasonPipelineError, true
	case state == StateParseFailed:
		return notify.ReasonParseFailure, true
	case result.Intent == models.IntentComplaint:
		return notify.ReasonComplaint, true
	case result.Confidence < h.config.EscalationConfidence:
		return notify.ReasonLowConfidence, true
	}
	return "", false
}

// attachMetadata records the extraction summary on the inbound message
// row. Best-effort: analytics never block the reply.
func (h *Handler) attachMetadata(ctx context.Context, messageID string, result *models.ExtractionResult, state State) {
	blob, err := json.Marshal(map[string]interface{}{
		"intent":        result.Intent,
		"confidence":    result.Confidence,
		"products":      result.Products,
		"unresolved":    result.Unresolved,
		"uncertainty":   result.Uncertainty,
		"pipelineState": state,
	})
	if err != nil {
		return
	}
	if err := h.store.AttachNLPMetadata(ctx, messageID, blob); err != nil {
		h.logger.Warn("failed to attach nlp metadata", map[string]interface{}{
			"messageId": messageID,
			"error":     err.Error(),
		})
	}
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
	}
}

func errorCode(err error) string {
	var stdErr *commonerrors.StandardError
	if errors.As(err, &stdErr) {
		return string(stdErr.Code)
	}
	return "INTERNAL_ERROR"
}

// Execute runs the pipeline directly, bypassing Zeebe. Used by tests.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
