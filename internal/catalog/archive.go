// internal/catalog/archive.go
package catalog

import (
	"context"
	"encoding/json"
	"time"

	"orderbot-workers/internal/common/database"
	"orderbot-workers/internal/common/logger"
	"orderbot-workers/internal/models"
)

const conversationIndex = "conversations"

// Archiver mirrors every processed exchange into Elasticsearch for
// search and analytics. Indexing is best-effort: failures are logged
// and never surface to the pipeline.
type Archiver struct {
	es     *database.ElasticsearchClient
	logger logger.Logger
}

func NewArchiver(es *database.ElasticsearchClient, log logger.Logger) *Archiver {
	return &Archiver{
		es:     es,
		logger: log.WithFields(map[string]interface{}{"component": "archiver"}),
	}
}

type conversationDocument struct {
	TenantID      string    `json:"tenantId"`
	MessageID     string    `json:"messageId"`
	CustomerPhone string    `json:"customerPhone"`
	InboundText   string    `json:"inboundText"`
	Reply         string    `json:"reply"`
	Intent        string    `json:"intent"`
	Confidence    float64   `json:"confidence"`
	PipelineState string    `json:"pipelineState"`
	OrderID       string    `json:"orderId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ArchiveExchange indexes one inbound message together with the reply
// the pipeline produced for it.
func (a *Archiver) ArchiveExchange(ctx context.Context, msg *models.IncomingMessage, result *models.ExtractionResult, reply, state, orderID string) {
	if a.es == nil {
		return
	}

	doc := conversationDocument{
		TenantID:      msg.TenantID,
		MessageID:     msg.ID,
		CustomerPhone: msg.CustomerPhone,
		InboundText:   msg.Body,
		Reply:         reply,
		PipelineState: state,
		OrderID:       orderID,
		Timestamp:     time.Now().UTC(),
	}
	if result != nil {
		doc.Intent = string(result.Intent)
		doc.Confidence = result.Confidence
	}

	body, err := json.Marshal(doc)
	if err != nil {
		a.logger.Warn("failed to marshal conversation document", map[string]interface{}{
			"messageId": msg.ID,
			"error":     err.Error(),
		})
		return
	}

	if err := a.es.Index(ctx, conversationIndex, msg.ID, string(body)); err != nil {
		a.logger.Warn("failed to archive conversation", map[string]interface{}{
			"messageId": msg.ID,
			"error":     err.Error(),
		})
	}
}
