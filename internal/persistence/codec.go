package persistence

import (
	"encoding/json"

	"github.com/mariusgr/contactflow/pkg/api"
)

// EncodePayload serializes a ContactPayload for storage. JSON keeps the
// stored rows inspectable with ordinary database tooling.
func EncodePayload(p api.ContactPayload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload deserializes a stored payload. Empty data yields the zero
// payload.
func DecodePayload(data []byte) (api.ContactPayload, error) {
	var p api.ContactPayload
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return api.ContactPayload{}, err
	}
	return p, nil
}
