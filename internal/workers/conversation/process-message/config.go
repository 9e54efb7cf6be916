// internal/workers/conversation/process-message/config.go
package processmessage

import "time"

type Config struct {
	Timeout              time.Duration
	OrderConfidence      float64
	EscalationConfidence float64
	HistoryDepth         int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:              45 * time.Second,
		OrderConfidence:      0.8,
		EscalationConfidence: 0.6,
		HistoryDepth:         10,
	}
}
