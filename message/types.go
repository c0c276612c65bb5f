package message

import "fmt"

// Type provides structured type information for messages.
//
// Type constants live in the domain packages that own the payload:
//
//	var VelocityType = message.Type{Domain: "dvl", Category: "velocity", Version: "v1"}
type Type struct {
	Domain   string `json:"domain" msgpack:"domain"`
	Category string `json:"category" msgpack:"category"`
	Version  string `json:"version" msgpack:"version"`
}

// Key returns the dotted notation representation: "domain.category.version"
func (mt Type) Key() string {
	return fmt.Sprintf("%s.%s.%s", mt.Domain, mt.Category, mt.Version)
}

// String returns the same as Key()
func (mt Type) String() string {
	return mt.Key()
}

// IsValid checks if the Type has all required fields populated
func (mt Type) IsValid() bool {
	return mt.Domain != "" && mt.Category != "" && mt.Version != ""
}

// Equal compares two Type instances for equality.
func (mt Type) Equal(other Type) bool {
	return mt.Domain == other.Domain &&
		mt.Category == other.Category &&
		mt.Version == other.Version
}
