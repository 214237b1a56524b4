package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kinds of ReportMessage.
const (
	KindReport = "report"
	KindError  = "error"
	KindAck    = "ack"
)

// ReportMessage is a rendered report on its way to the notification
// service. Channels empty means every configured channel.
type ReportMessage struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	ReportType  string    `json:"report_type,omitempty"`
	Stage       string    `json:"stage,omitempty"`
	Subject     string    `json:"subject"`
	Text        string    `json:"text"`
	Details     []string  `json:"details,omitempty"`
	Channels    []string  `json:"channels,omitempty"`
	Recipients  []string  `json:"recipients,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewReportMessage creates a message with a fresh ID.
func NewReportMessage(kind, subject, text string) *ReportMessage {
	return &ReportMessage{
		ID:          uuid.NewString(),
		Kind:        kind,
		Subject:     subject,
		Text:        text,
		GeneratedAt: time.Now().UTC(),
	}
}

// Key is the Kafka partition key; reports of one day stay ordered.
func (m *ReportMessage) Key() string {
	return m.GeneratedAt.Format("2006-01-02")
}

// EncodeReportMessage encodes a ReportMessage to JSON
func EncodeReportMessage(msg *ReportMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeReportMessage decodes JSON to ReportMessage
func DecodeReportMessage(data []byte) (*ReportMessage, error) {
	var msg ReportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
