package message

import "encoding/json"

// Payload represents the data carried by a message.
type Payload interface {
	// Schema returns the Type that defines this payload's structure.
	Schema() Type

	// Validate checks the payload data for correctness.
	Validate() error

	json.Marshaler
	json.Unmarshaler
}
