package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/thriftian/marketplace/internal/outbox"
)

const (
	HeaderIntentKind   = "x-intent-kind"
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

func encodeIntent(it outbox.Intent) (kafka.Message, error) {
	b, err := json.Marshal(it)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode intent %s: %w", it.ID, err)
	}
	return kafka.Message{
		Key:     []byte(it.Key),
		Value:   b,
		Headers: []kafka.Header{{Key: HeaderIntentKind, Value: []byte(it.Kind)}},
	}, nil
}

func DecodeIntent(m kafka.Message) (outbox.Intent, error) {
	var it outbox.Intent
	if err := json.Unmarshal(m.Value, &it); err != nil {
		return outbox.Intent{}, fmt.Errorf("decode intent at offset %d: %w", m.Offset, err)
	}
	if it.ID == "" || it.Kind == "" {
		return outbox.Intent{}, fmt.Errorf("decode intent at offset %d: missing id or kind", m.Offset)
	}
	return it, nil
}
