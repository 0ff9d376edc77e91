package transport

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/hostbridge/plugin-runtime/errors"
)

// Status marks a response envelope as success or error.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// RequestEnvelope frames a tagged-text request. The payload is opaque to
// the runtime; only the tag routes it.
type RequestEnvelope struct {
	Tag           string          `json:"tag"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	RequestID     uint64          `json:"request_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewRequest builds a request envelope with a fresh correlation ID.
func NewRequest(tag string, payload []byte) RequestEnvelope {
	return RequestEnvelope{
		Tag:           tag,
		Payload:       json.RawMessage(payload),
		CorrelationID: uuid.NewString(),
	}
}

// Encode serializes the envelope for transport.
func (r RequestEnvelope) Encode() ([]byte, *errors.Error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Serialization("encode request envelope", err)
	}
	return data, nil
}

// DecodeRequest parses a request envelope from wire bytes.
func DecodeRequest(data []byte) (RequestEnvelope, *errors.Error) {
	var env RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return RequestEnvelope{}, errors.Serialization("decode request envelope", err)
	}
	if env.Tag == "" {
		return RequestEnvelope{}, errors.Serialization("request envelope missing tag", nil)
	}
	return env, nil
}

// ResponseEnvelope frames a tagged-text response: a payload on success, a
// {code, message} descriptor on failure, never both.
type ResponseEnvelope struct {
	Status        Status          `json:"status"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ErrorCode     uint32          `json:"error_code,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	RequestID     uint64          `json:"request_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// Success wraps a handler's payload bytes.
func Success(payload []byte) ResponseEnvelope {
	return ResponseEnvelope{
		Status:  StatusSuccess,
		Payload: json.RawMessage(payload),
	}
}

// Failure wraps an error descriptor.
func Failure(err *errors.Error) ResponseEnvelope {
	code, msg := err.Descriptor()
	return ResponseEnvelope{
		Status:       StatusError,
		ErrorCode:    code,
		ErrorMessage: msg,
	}
}

// Encode serializes the envelope for transport.
func (r ResponseEnvelope) Encode() ([]byte, *errors.Error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Serialization("encode response envelope", err)
	}
	return data, nil
}

// DecodeResponse parses a response envelope from wire bytes.
func DecodeResponse(data []byte) (ResponseEnvelope, *errors.Error) {
	var env ResponseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ResponseEnvelope{}, errors.Serialization("decode response envelope", err)
	}
	return env, nil
}

// Err reconstructs the descriptor carried by an error envelope, or nil for
// a success envelope.
func (r ResponseEnvelope) Err() *errors.Error {
	if r.Status != StatusError {
		return nil
	}
	return errors.FromCode(r.ErrorCode, r.ErrorMessage)
}
