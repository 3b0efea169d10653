package cache

import (
	"encoding/json"
	"time"
)

// envelope is the stored form of an entry. The JSON layout matches what
// browser clients keep in local storage, so entries can be inspected with
// ordinary tools.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`     // unix ms at write time
	TTL       int64           `json:"ttl,omitempty"` // caller override in ms, informational only

	raw []byte // stored bytes this envelope was decoded from
}

func (e *envelope) writtenAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// expired reports whether the entry is older than ttl at now. An entry
// exactly ttl old is still fresh.
func (e *envelope) expired(now time.Time, ttl time.Duration) bool {
	return now.UnixMilli()-e.Timestamp > ttl.Milliseconds()
}

func decodeEnvelope(raw []byte) (*envelope, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	e.raw = raw
	return &e, nil
}

func encodeEnvelope(e *envelope) ([]byte, error) {
	return json.Marshal(e)
}
