package dvl

import (
	"encoding/json"
	"time"

	"github.com/c360/dvlstreams/errors"
	"github.com/c360/dvlstreams/message"
)

// DefaultFrameID is the coordinate frame reports are stamped with.
const DefaultFrameID = "dvl_link"

// BeamCount is the number of transducers on the sensor.
const BeamCount = 4

// VelocityType identifies velocity reports on the message bus.
var VelocityType = message.Type{Domain: "dvl", Category: "velocity", Version: "v1"}

// Header stamps a report with its receive time and coordinate frame.
type Header struct {
	Stamp   time.Time `json:"stamp" msgpack:"stamp"`
	FrameID string    `json:"frame_id" msgpack:"frame_id"`
}

// Vector3 is a velocity in m/s along the sensor axes.
type Vector3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// Beam is one transducer measurement.
type Beam struct {
	ID       int64   `json:"id" msgpack:"id"`
	Velocity float64 `json:"velocity" msgpack:"velocity"`
	Distance float64 `json:"distance" msgpack:"distance"`
	RSSI     float64 `json:"rssi" msgpack:"rssi"`
	NSD      float64 `json:"nsd" msgpack:"nsd"`
	Valid    bool    `json:"valid" msgpack:"valid"`
}

// VelocityReport is a decoded velocity record. Beams keep the sensor's order.
type VelocityReport struct {
	Header        Header          `json:"header" msgpack:"header"`
	Time          float64         `json:"time" msgpack:"time"` // ms since last report
	Velocity      Vector3         `json:"velocity" msgpack:"velocity"`
	FOM           float64         `json:"fom" msgpack:"fom"`
	Altitude      float64         `json:"altitude" msgpack:"altitude"`
	VelocityValid bool            `json:"velocity_valid" msgpack:"velocity_valid"`
	Status        int64           `json:"status" msgpack:"status"`
	Form          string          `json:"form" msgpack:"form"`
	Beams         [BeamCount]Beam `json:"beams" msgpack:"beams"`
}

// Schema implements message.Payload.
func (r *VelocityReport) Schema() message.Type {
	return VelocityType
}

// Validate implements message.Payload.
func (r *VelocityReport) Validate() error {
	if r.Header.FrameID == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "VelocityReport", "Validate", "frame id check")
	}
	return nil
}

// MarshalJSON implements message.Payload.
func (r *VelocityReport) MarshalJSON() ([]byte, error) {
	type Alias VelocityReport
	return json.Marshal((*Alias)(r))
}

// UnmarshalJSON implements message.Payload.
func (r *VelocityReport) UnmarshalJSON(data []byte) error {
	type Alias VelocityReport
	return json.Unmarshal(data, (*Alias)(r))
}

// Kind tells velocity records apart from everything else the sensor sends.
type Kind int

const (
	// KindOther is any record the bridge does not decode.
	KindOther Kind = iota
	// KindVelocity is a velocity record.
	KindVelocity
)

func (k Kind) String() string {
	if k == KindVelocity {
		return "velocity"
	}
	return "other"
}

// Record is the result of decoding one frame.
type Record struct {
	Kind Kind
	// Type is the raw "type" discriminant, empty when absent or not a string.
	Type string
	// Velocity is set for KindVelocity only. Header is left zero.
	Velocity *VelocityReport
}
