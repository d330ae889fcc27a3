package webhooks

import (
	"time"

	"github.com/google/uuid"
)

// Event types dispatched by the ledger.
const (
	EventEvidenceSaved           = "evidence.saved"
	EventLedgerIntegrityFailed   = "ledger.integrity_failed"
	EventLedgerIntegrityRestored = "ledger.integrity_restored"
)

// Subscription is a configured receiver. An empty Events list receives every
// event type.
type Subscription struct {
	URL    string   `mapstructure:"url"    json:"url"`
	Events []string `mapstructure:"events" json:"events"`
	Secret string   `mapstructure:"secret" json:"-"`
}

func (s Subscription) wants(eventType string) bool {
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

// Event is the JSON body posted to subscribers.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}
