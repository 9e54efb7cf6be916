// internal/workers/conversation/process-message/models.go
package processmessage

type Input struct {
	TenantID      string `json:"tenantId"`
	MessageID     string `json:"messageId"`
	CustomerPhone string `json:"customerPhone"`
	MessageText   string `json:"messageText"`
	MediaURL      string `json:"mediaUrl,omitempty"`
}

type Output struct {
	Reply          string  `json:"reply"`
	Intent         string  `json:"intent"`
	Confidence     float64 `json:"confidence"`
	PipelineState  string  `json:"pipelineState"`
	OrderID        string  `json:"orderId,omitempty"`
	Escalated      bool    `json:"escalated"`
	NotificationID string  `json:"notificationId,omitempty"`
}
