// internal/workers/conversation/process-message/handler_test.go
package processmessage

import (
	"context"
	"encoding/json"
	"testing"

	"orderbot-workers/internal/classifier"
	commonerrors "orderbot-workers/internal/common/errors"
	"orderbot-workers/internal/common/logger"
	"orderbot-workers/internal/models"
	"orderbot-workers/internal/notify"
	"orderbot-workers/internal/orderassembly"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type mockStore struct {
	products      []models.Product
	productsNext  []models.Product
	productCalls  int
	productsErr   error
	history       []models.IncomingMessage
	metadata      [][]byte
	outbound      []*models.IncomingMessage
	outboundErr   error
	invalidations int
}

func (m *mockStore) ProductsByTenant(ctx context.Context, tenantID string) ([]models.Product, error) {
	m.productCalls++
	if m.productCalls > 1 && m.productsNext != nil {
		return m.productsNext, m.productsErr
	}
	return m.products, m.productsErr
}

func (m *mockStore) InvalidateCatalog(ctx context.Context, tenantID string) {
	m.invalidations++
}

func (m *mockStore) RecentMessages(ctx context.Context, tenantID, customerPhone string, limit int) ([]models.IncomingMessage, error) {
	return m.history, nil
}

func (m *mockStore) AttachNLPMetadata(ctx context.Context, messageID string, blob []byte) error {
	m.metadata = append(m.metadata, blob)
	return nil
}

func (m *mockStore) SaveOutboundMessage(ctx context.Context, msg *models.IncomingMessage) error {
	if m.outboundErr != nil {
		return m.outboundErr
	}
	m.outbound = append(m.outbound, msg)
	return nil
}

type mockClassifier struct {
	completion string
	err        error
}

func (m *mockClassifier) Classify(ctx context.Context, req *classifier.Request) (string, error) {
	return m.completion, m.err
}

type mockAssembler struct {
	order    *models.Order
	created  bool
	err      error
	received []*models.ExtractionResult
}

func (m *mockAssembler) Assemble(ctx context.Context, msg *models.IncomingMessage, result *models.ExtractionResult) (*models.Order, bool, error) {
	m.received = append(m.received, result)
	if m.err != nil {
		return nil, false, m.err
	}
	return m.order, m.created, nil
}

type mockNotifier struct {
	escalations []*notify.Escalation
}

func (m *mockNotifier) Escalate(ctx context.Context, esc *notify.Escalation) string {
	m.escalations = append(m.escalations, esc)
	return "notif-1"
}

type mockArchiver struct {
	archived int
}

func (m *mockArchiver) ArchiveExchange(ctx context.Context, msg *models.IncomingMessage, result *models.ExtractionResult, reply, state, orderID string) {
	m.archived++
}

// ==========================
// Test helpers
// ==========================

type fixture struct {
	handler   *Handler
	store     *mockStore
	classify  *mockClassifier
	assembler *mockAssembler
	notifier  *mockNotifier
	archiver  *mockArchiver
}

func newFixture(completion string) *fixture {
	store := &mockStore{
		products: []models.Product{
			{ID: "p-1", Name: "Pizza Margherita", Price: 8.5, Available: true, Stock: 10, TrackStock: true},
			{ID: "p-2", Name: "Pizza Pepperoni", Price: 9.5, Available: true, Stock: 1, TrackStock: true},
		},
	}
	classify := &mockClassifier{completion: completion}
	assembler := &mockAssembler{
		order: &models.Order{
			ID:     "o-1",
			Status: models.OrderStatusPending,
			Items:  []models.OrderItem{{Name: "Pizza Margherita", Quantity: 2, UnitPrice: 8.5}},
			Total:  17.0,
		},
		created: true,
	}
	notifier := &mockNotifier{}
	archiver := &mockArchiver{}

	handler := NewHandler(LoadConfig(), store, classify, assembler, notifier, archiver, logger.NewNoOpLogger())
	return &fixture{handler, store, classify, assembler, notifier, archiver}
}

func sampleInput() *Input {
	return &Input{
		TenantID:      "tenant-1",
		MessageID:     "m-1",
		CustomerPhone: "+573001112233",
		MessageText:   "quiero dos pizzas margherita",
	}
}

func orderCompletion(confidence float64) string {
	c := map[string]interface{}{
		"intent": "order",
		"products": []map[string]interface{}{
			{"name": "Pizza Margherita", "quantity": 2, "originalRequest": "dos pizzas margherita"},
		},
		"confidence": confidence,
		"reply":      "¡Claro!",
	}
	data, _ := json.Marshal(c)
	return string(data)
}

// ==========================
// Branching
// ==========================

func TestExecute_HighConfidenceOrderCreatesOrder(t *testing.T) {
	f := newFixture(orderCompletion(0.9))

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, string(StateOrderReady), output.PipelineState)
	assert.Equal(t, "o-1", output.OrderID)
	assert.Contains(t, output.Reply, "Total: $17.00")
	assert.Contains(t, output.Reply, "¿Cómo deseas pagar?")
	assert.False(t, output.Escalated)
	require.Len(t, f.assembler.received, 1)
}

func TestExecute_ConfidenceExactlyAtThresholdCreatesOrder(t *testing.T) {
	f := newFixture(orderCompletion(0.8))

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, string(StateOrderReady), output.PipelineState)
	assert.Equal(t, "o-1", output.OrderID)
}

func TestExecute_ConfidenceJustBelowThresholdAsksForClarification(t *testing.T) {
	f := newFixture(orderCompletion(0.7999))

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, string(StateClarificationNeed), output.PipelineState)
	assert.Empty(t, output.OrderID)
	assert.Empty(t, f.assembler.received)
	assert.False(t, output.Escalated)
}

func TestExecute_LowConfidenceGreetingRepliesAndEscalates(t *testing.T) {
	f := newFixture(`{"intent": "greeting", "confidence": 0.59, "reply": "¡Hola! ¿Qué deseas pedir?"}`)

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, string(StateInformational), output.PipelineState)
	assert.Equal(t, "¡Hola! ¿Qué deseas pedir?", output.Reply)
	assert.True(t, output.Escalated)
	assert.Equal(t, "notif-1", output.NotificationID)
	require.Len(t, f.notifier.escalations, 1)
	assert.Equal(t, notify.ReasonLowConfidence, f.notifier.escalations[0].Reason)
}

func TestExecute_ConfidentGreetingDoesNotEscalate(t *testing.T) {
	f := newFixture(`{"intent": "greeting", "confidence": 0.95, "reply": "¡Hola!"}`)

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, string(StateInformational), output.PipelineState)
	assert.False(t, output.Escalated)
	assert.Empty(t, f.notifier.escalations)
}

func TestExecute_ComplaintAlwaysEscalates(t *testing.T) {
	f := newFixture(`{"intent": "complaint", "confidence": 0.92, "reply": "Lamento mucho lo ocurrido."}`)

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, string(StateInformational), output.PipelineState)
	assert.True(t, output.Escalated)
	require.Len(t, f.notifier.escalations, 1)
	assert.Equal(t, notify.ReasonComplaint, f.notifier.escalations[0].Reason)
}

func TestExecute_InsufficientStockBecomesPartial(t *testing.T) {
	f := newFixture(`{"intent": "order", "products": [{"name": "Pizza Pepperoni", "quantity": 5}], "confidence": 0.9}`)

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, string(StateOrderPartial), output.PipelineState)
	assert.Empty(t, output.OrderID)
	assert.Contains(t, output.Reply, "solo nos quedan 1")
	assert.Empty(t, f.assembler.received)
}

func TestExecute_UnknownProductBecomesPartial(t *testing.T) {
	f := newFixture(`{"intent": "order", "products": [{"name": "Pizza Margherita", "quantity": 1}, {"name": "sushi", "quantity": 2}], "confidence": 0.9}`)

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, string(StateOrderPartial), output.PipelineState)
	assert.Contains(t, output.Reply, "sushi: no lo tenemos")
	assert.Contains(t, output.Reply, "1x Pizza Margherita")
}

func TestExecute_AmbiguousProductAsksForClarification(t *testing.T) {
	f := newFixture(`{"intent": "order", "products": [{"name": "pizza", "quantity": 1}], "confidence": 0.9}`)

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, string(StateClarificationNeed), output.PipelineState)
	assert.Contains(t, output.Reply, "coincide con varios productos")
}

// ==========================
// Degradation
// ==========================

func TestExecute_UnparsableCompletionEscalates(t *testing.T) {
	f := newFixture("Lo siento, como modelo de lenguaje no puedo ayudarte con eso.")

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, string(StateParseFailed), output.PipelineState)
	assert.Contains(t, output.Reply, "no entendí bien tu mensaje")
	assert.True(t, output.Escalated)
	require.Len(t, f.notifier.escalations, 1)
	assert.Equal(t, notify.ReasonParseFailure, f.notifier.escalations[0].Reason)
}

func TestExecute_ClassifierDownDegradesGracefully(t *testing.T) {
	f := newFixture("")
	f.classify.err = classifier.ErrClassifierUnavailable

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, string(StateParseFailed), output.PipelineState)
	assert.Contains(t, output.Reply, "no entendí bien tu mensaje")
	assert.Equal(t, 0.1, output.Confidence)
	assert.True(t, output.Escalated)
	require.Len(t, f.notifier.escalations, 1)
	assert.Equal(t, notify.ReasonPipelineError, f.notifier.escalations[0].Reason)
}

func TestApologizeOnFatal(t *testing.T) {
	f := newFixture("")

	f.handler.apologizeOnFatal(context.Background(), sampleInput(),
		commonerrors.NewContractViolationError("unresolved entities"))
	require.Len(t, f.store.outbound, 1)
	assert.Contains(t, f.store.outbound[0].Body, "dificultades técnicas")

	f.handler.apologizeOnFatal(context.Background(), sampleInput(),
		commonerrors.NewDatabaseConnectionFailedError(context.DeadlineExceeded))
	assert.Len(t, f.store.outbound, 1)
}

func TestExecute_StockRanOutAtCommitDowngradesToPartial(t *testing.T) {
	f := newFixture(orderCompletion(0.9))
	f.assembler.err = orderassembly.ErrInsufficientStock
	// Fresh catalog after invalidation shows the shortage.
	f.store.productsNext = []models.Product{
		{ID: "p-1", Name: "Pizza Margherita", Price: 8.5, Available: true, Stock: 0, TrackStock: true},
		{ID: "p-2", Name: "Pizza Pepperoni", Price: 9.5, Available: true, Stock: 1, TrackStock: true},
	}

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, string(StateOrderPartial), output.PipelineState)
	assert.Empty(t, output.OrderID)
	assert.Equal(t, 1, f.store.invalidations)
}

func TestExecute_CatalogUnavailableFailsJob(t *testing.T) {
	f := newFixture(orderCompletion(0.9))
	f.store.productsErr = assert.AnError

	_, err := f.handler.Execute(context.Background(), sampleInput())
	require.Error(t, err)

	var stdErr *commonerrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, commonerrors.ErrCodeDatabaseConnectionFailed, stdErr.Code)
}

// ==========================
// Persistence side effects
// ==========================

func TestExecute_PersistsExactlyOneOutboundReply(t *testing.T) {
	f := newFixture(orderCompletion(0.9))

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	require.Len(t, f.store.outbound, 1)
	assert.Equal(t, output.Reply, f.store.outbound[0].Body)
	assert.Equal(t, "o-1", f.store.outbound[0].OrderID)
	assert.Equal(t, "+573001112233", f.store.outbound[0].CustomerPhone)
}

func TestExecute_AttachesNLPMetadata(t *testing.T) {
	f := newFixture(orderCompletion(0.9))

	_, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)

	require.Len(t, f.store.metadata, 1)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(f.store.metadata[0], &meta))
	assert.Equal(t, "order", meta["intent"])
	assert.Equal(t, "ORDER_READY", meta["pipelineState"])
}

func TestExecute_ArchivesExchange(t *testing.T) {
	f := newFixture(orderCompletion(0.9))

	_, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, 1, f.archiver.archived)
}

func TestExecute_RedeliveredMessageReturnsExistingOrder(t *testing.T) {
	f := newFixture(orderCompletion(0.9))
	f.assembler.created = false

	output, err := f.handler.Execute(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "o-1", output.OrderID)
	assert.Equal(t, string(StateOrderReady), output.PipelineState)
}

// ==========================
// Input validation
// ==========================

func TestParseInput_ValidPayload(t *testing.T) {
	f := newFixture("")

	input, err := f.handler.parseInput(`{"tenantId":"tenant-1","messageId":"m-1","customerPhone":"+57300","messageText":"hola"}`)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", input.TenantID)
	assert.Equal(t, "hola", input.MessageText)
}

func TestParseInput_RejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name      string
		variables string
	}{
		{"missing tenant", `{"messageId":"m-1","customerPhone":"+57300","messageText":"hola"}`},
		{"empty message text", `{"tenantId":"t","messageId":"m-1","customerPhone":"+57300","messageText":""}`},
		{"wrong type", `{"tenantId":1,"messageId":"m-1","customerPhone":"+57300","messageText":"hola"}`},
		{"not json", `not json at all`},
	}

	f := newFixture("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.handler.parseInput(tt.variables)
			require.Error(t, err)

			var stdErr *commonerrors.StandardError
			require.ErrorAs(t, err, &stdErr)
			assert.Equal(t, commonerrors.ErrCodeMessagePayloadInvalid, stdErr.Code)
		})
	}
}

// ==========================
// Decide
// ==========================

func TestDecide(t *testing.T) {
	resolved := models.ExtractedProduct{MatchedName: "Pizza Margherita", ProductID: "p-1", Quantity: 1}
	short := models.ExtractedProduct{MatchedName: "Pizza Pepperoni", ProductID: "p-2", Quantity: 5, InsufficientStock: true}

	tests := []struct {
		name     string
		result   *models.ExtractionResult
		expected State
	}{
		{
			name:     "fallback result",
			result:   &models.ExtractionResult{Fallback: true, Intent: models.IntentUnknown, Confidence: 0.1},
			expected: StateParseFailed,
		},
		{
			name:     "confident complete order",
			result:   &models.ExtractionResult{Intent: models.IntentOrder, Products: []models.ExtractedProduct{resolved}, Confidence: 0.85},
			expected: StateOrderReady,
		},
		{
			name:     "order below threshold",
			result:   &models.ExtractionResult{Intent: models.IntentOrder, Products: []models.ExtractedProduct{resolved}, Confidence: 0.79},
			expected: StateClarificationNeed,
		},
		{
			name:     "order with shortage",
			result:   &models.ExtractionResult{Intent: models.IntentOrder, Products: []models.ExtractedProduct{resolved, short}, Confidence: 0.9},
			expected: StateOrderPartial,
		},
		{
			name:     "order with unresolved product",
			result:   &models.ExtractionResult{Intent: models.IntentOrder, Products: []models.ExtractedProduct{resolved}, Unresolved: []string{"sushi"}, Confidence: 0.9},
			expected: StateOrderPartial,
		},
		{
			name:     "order with nothing concrete",
			result:   &models.ExtractionResult{Intent: models.IntentOrder, Uncertainty: []string{"¿cuál pizza?"}, Confidence: 0.9},
			expected: StateClarificationNeed,
		},
		{
			name:     "inquiry",
			result:   &models.ExtractionResult{Intent: models.IntentInquiry, Confidence: 0.9},
			expected: StateInformational,
		},
		{
			name:     "unknown intent uses the composed reply",
			result:   &models.ExtractionResult{Intent: models.IntentUnknown, Confidence: 0.9, Reply: "Gracias por escribirnos."},
			expected: StateInformational,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Decide(tt.result, 0.8))
		})
	}
}
