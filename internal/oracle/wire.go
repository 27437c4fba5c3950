package oracle

import (
	"encoding/json"
	"fmt"
)

// Message is the generic envelope for anything carried over the oracle queue.
// It allows for flexible communication of different data structures.
type Message struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
}

// Message types carried over the queue.
const (
	TypeDecryptionRequest = "decryption_request"
	TypeDecryptionResult  = "decryption_result"
)

// DecryptionRequestPayload is pushed by the registry side for a worker.
type DecryptionRequestPayload struct {
	RequestID   string   `json:"requestId"`
	Kind        string   `json:"kind"`
	Ciphertexts [][]byte `json:"ciphertexts"`
}

// DecryptionResultPayload is what a worker produces for the callback.
type DecryptionResultPayload struct {
	RequestID string `json:"requestId"`
	Payload   []byte `json:"payload"`
	Proof     []byte `json:"proof"`
}

// EncodeMessage wraps a payload into an envelope and serializes it.
func EncodeMessage(msgType string, payload interface{}, senderID string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Message{Type: msgType, Payload: raw, SenderID: senderID})
}

// DecodeMessage parses an envelope and returns it for type dispatch.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid message envelope: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message envelope has no type")
	}
	return &msg, nil
}
