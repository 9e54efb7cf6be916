// internal/models/message.go
package models

import "time"

type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// IncomingMessage mirrors the messages table. Rows are immutable once
// written except for the NLP metadata blob attached after classification.
type IncomingMessage struct {
	ID            string           `json:"id"`
	TenantID      string           `json:"tenantId"`
	CustomerPhone string           `json:"customerPhone"`
	Body          string           `json:"body"`
	Direction     MessageDirection `json:"direction"`
	OrderID       string           `json:"orderId,omitempty"`
	NLPMetadata   []byte           `json:"-"`
	CreatedAt     time.Time        `json:"createdAt"`
}
