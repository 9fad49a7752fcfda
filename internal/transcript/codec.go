package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeErrorKind classifies why a payload could not be decoded.
type DecodeErrorKind string

const (
	InvalidPayload   DecodeErrorKind = "invalid_payload"
	InvalidTimestamp DecodeErrorKind = "invalid_timestamp"
)

// DecodeError is returned for payloads that cannot produce a record. The
// event is dropped; there is no redelivery.
type DecodeError struct {
	Kind  DecodeErrorKind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var errMissing = errors.New("missing")

// Decode turns a message notification payload into a MessageRecord.
// created_at is the only required field; text fields fall back to the
// Unknown* sentinels.
func Decode(raw string) (MessageRecord, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return MessageRecord{}, err
	}

	createdAt, err := timestampField(fields, "created_at")
	if err != nil {
		return MessageRecord{}, err
	}

	return MessageRecord{
		ID:             stringField(fields, "id", ""),
		ConversationID: stringField(fields, "conversation_id", ""),
		CreatedAt:      createdAt,
		Query:          stringField(fields, "query", UnknownQuestion),
		Answer:         stringField(fields, "answer", UnknownAnswer),
		FromAccountID:  stringField(fields, "from_account_id", UnknownUser),
		Truncated:      boolField(fields, "truncated"),
	}, nil
}

// DecodeConversation decodes a conversation notification payload.
func DecodeConversation(raw string) (ConversationRecord, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return ConversationRecord{}, err
	}
	return ConversationRecord{
		ID:   stringField(fields, "id", ""),
		Name: stringField(fields, "name", ""),
	}, nil
}

func decodeObject(raw string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, &DecodeError{Kind: InvalidPayload, Err: err}
	}
	if fields == nil {
		return nil, &DecodeError{Kind: InvalidPayload, Err: errors.New("payload is not an object")}
	}
	return fields, nil
}

func timestampField(fields map[string]json.RawMessage, key string) (Timestamp, error) {
	v, ok := fields[key]
	if !ok || isNull(v) {
		return Timestamp{}, &DecodeError{Kind: InvalidTimestamp, Field: key, Err: errMissing}
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return Timestamp{}, &DecodeError{Kind: InvalidTimestamp, Field: key, Err: err}
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return Timestamp{}, &DecodeError{Kind: InvalidTimestamp, Field: key, Err: err}
	}
	return ts, nil
}

// stringField returns the string value of key, the raw JSON text for
// non-string values, or fallback when the key is absent or null.
func stringField(fields map[string]json.RawMessage, key, fallback string) string {
	v, ok := fields[key]
	if !ok || isNull(v) {
		return fallback
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(v))
}

func boolField(fields map[string]json.RawMessage, key string) bool {
	var b bool
	if v, ok := fields[key]; ok {
		_ = json.Unmarshal(v, &b)
	}
	return b
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
