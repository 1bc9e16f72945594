package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Reasons carried by balance recalc messages.
const (
	ReasonRecordAdded   = "record_added"
	ReasonRecordUpdated = "record_updated"
	ReasonRecordDeleted = "record_deleted"
	ReasonImport        = "import"
	ReasonSweep         = "sweep"
)

var errMissingMessageID = errors.New("message_id is required")

// BalanceRecalcMessage asks the worker to recompute stored balances. It only
// names the student; the worker reads the events from the ledger. An empty
// StudentID means every student.
type BalanceRecalcMessage struct {
	MessageID string    `json:"message_id"`
	StudentID string    `json:"student_id,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBalanceRecalcMessage creates a message with a fresh ID.
func NewBalanceRecalcMessage(studentID, reason string) *BalanceRecalcMessage {
	return &BalanceRecalcMessage{
		MessageID: uuid.NewString(),
		StudentID: studentID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// AllStudents reports whether the message targets the whole ledger.
func (m *BalanceRecalcMessage) AllStudents() bool {
	return m.StudentID == ""
}

// ToJSON converts the message to JSON bytes
func (m *BalanceRecalcMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BalanceRecalcMessageFromJSON decodes a message and checks it carries an ID.
func BalanceRecalcMessageFromJSON(data []byte) (*BalanceRecalcMessage, error) {
	var msg BalanceRecalcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.MessageID == "" {
		return nil, errMissingMessageID
	}
	return &msg, nil
}
