package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"budgetledger/internal/core"
)

// BudgetAlertMessage is the queued form of a budget alert. It carries the
// full alert, so the worker never needs to read the ledger to deliver it.
type BudgetAlertMessage struct {
	MessageID string `json:"messageId"`
	core.Alert
	Timestamp time.Time `json:"timestamp"`
}

func NewBudgetAlertMessage(alert core.Alert) *BudgetAlertMessage {
	return &BudgetAlertMessage{
		MessageID: uuid.NewString(),
		Alert:     alert,
		Timestamp: time.Now().UTC(),
	}
}

func (m *BudgetAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BudgetAlertMessageFromJSON decodes a message and checks it names a known
// alert kind and an owner.
func BudgetAlertMessageFromJSON(data []byte) (*BudgetAlertMessage, error) {
	var msg BudgetAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind != core.AlertWarning && msg.Kind != core.AlertExceeded {
		return nil, fmt.Errorf("unknown alert kind %q", msg.Kind)
	}
	if msg.OwnerID == "" {
		return nil, fmt.Errorf("alert message %s has no owner", msg.MessageID)
	}
	return &msg, nil
}
