package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// AlertMessage carries one budget alert to out-of-process notifiers. Title
// and Message are pre-rendered so consumers need not know the wording rules.
type AlertMessage struct {
	MessageID string     `json:"message_id"`
	Alert     core.Alert `json:"alert"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewAlertMessage wraps an alert with a fresh message id.
func NewAlertMessage(a core.Alert) *AlertMessage {
	return &AlertMessage{
		MessageID: uuid.NewString(),
		Alert:     a,
		Title:     a.Title(),
		Message:   a.Message(),
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *AlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AlertMessageFromJSON decodes a message and checks it names a known alert
// kind.
func AlertMessageFromJSON(data []byte) (*AlertMessage, error) {
	var msg AlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Alert.Kind {
	case core.AlertOverBudget, core.AlertHeartbeat:
	default:
		return nil, fmt.Errorf("unknown alert kind %q", msg.Alert.Kind)
	}
	return &msg, nil
}
