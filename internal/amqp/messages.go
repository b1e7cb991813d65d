package amqp

import (
	"encoding/json"
	"time"
)

// Training example sources.
const (
	SourceCorrection = "correction"
	SourceFeedback   = "feedback"
	SourceManual     = "manual"
)

// TrainingExampleMessage announces that a labeled booking was appended
// to the training corpus. The retrain worker counts these and triggers
// a classifier retrain once enough examples accumulate; the corpus row
// itself is not carried, the classifier reads the corpus directly.
type TrainingExampleMessage struct {
	Category  string    `json:"category"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTrainingExampleMessage creates a message for a freshly appended
// training example.
func NewTrainingExampleMessage(category, source string) *TrainingExampleMessage {
	return &TrainingExampleMessage{
		Category:  category,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *TrainingExampleMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TrainingExampleMessageFromJSON creates a message from JSON bytes.
func TrainingExampleMessageFromJSON(data []byte) (*TrainingExampleMessage, error) {
	var msg TrainingExampleMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
