package bus

import (
	"encoding/json"
	"time"

	"github.com/grantradar/grantradar/pkg/models"
)

// wireEnvelope is the outer shape every stream entry carries: a single
// `data` field holding the typed payload (spec §6).
type wireEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// EncodeEnvelope wraps data in the `{"data": ...}` shape and marshals it.
func EncodeEnvelope(data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{Data: raw})
}

// DecodeEnvelope unwraps the `{"data": ...}` shape into out.
func DecodeEnvelope(payload []byte, out any) error {
	var w wireEnvelope
	if err := json.Unmarshal(payload, &w); err != nil {
		return err
	}
	return json.Unmarshal(w.Data, out)
}

// BuildDLQEnvelope constructs the dlq:<stream> payload for a message that
// exhausted retries. firstFailureAt should be carried forward across
// redeliveries by the caller when known; callers processing a message for
// the first time pass the same value for first and last.
func BuildDLQEnvelope(originalStream, originalMessageID string, originalPayload []byte, errType string, err error, failureCount int, firstFailureAt, lastFailureAt time.Time) models.DLQEnvelope {
	return models.DLQEnvelope{
		OriginalStream:    originalStream,
		OriginalMessageID: originalMessageID,
		OriginalPayload:   originalPayload,
		ErrorMessage:      err.Error(),
		ErrorType:         errType,
		FailureCount:      failureCount,
		FirstFailureAt:    firstFailureAt,
		LastFailureAt:     lastFailureAt,
	}
}
