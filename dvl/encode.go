package dvl

import (
	"encoding/json"

	"github.com/c360/dvlstreams/errors"
)

type wireBeam struct {
	ID        int64   `json:"id"`
	Velocity  float64 `json:"velocity"`
	Distance  float64 `json:"distance"`
	RSSI      float64 `json:"rssi"`
	NSD       float64 `json:"nsd"`
	BeamValid bool    `json:"beam_valid"`
}

type wireVelocity struct {
	Type          string     `json:"type"`
	Time          float64    `json:"time"`
	VX            float64    `json:"vx"`
	VY            float64    `json:"vy"`
	VZ            float64    `json:"vz"`
	FOM           float64    `json:"fom"`
	Altitude      float64    `json:"altitude"`
	VelocityValid bool       `json:"velocity_valid"`
	Status        int64      `json:"status"`
	Format        string     `json:"format"`
	Transducers   []wireBeam `json:"transducers"`
}

// EncodeWire renders a report in the sensor's velocity schema, without the
// trailing newline. The header is not part of the wire schema.
func EncodeWire(r *VelocityReport) ([]byte, error) {
	w := wireVelocity{
		Type:          VelocityRecordType,
		Time:          r.Time,
		VX:            r.Velocity.X,
		VY:            r.Velocity.Y,
		VZ:            r.Velocity.Z,
		FOM:           r.FOM,
		Altitude:      r.Altitude,
		VelocityValid: r.VelocityValid,
		Status:        r.Status,
		Format:        r.Form,
		Transducers:   make([]wireBeam, 0, BeamCount),
	}
	for _, b := range r.Beams {
		w.Transducers = append(w.Transducers, wireBeam{
			ID:        b.ID,
			Velocity:  b.Velocity,
			Distance:  b.Distance,
			RSSI:      b.RSSI,
			NSD:       b.NSD,
			BeamValid: b.Valid,
		})
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, errors.WrapInvalid(err, "dvl", "EncodeWire", "marshal velocity record")
	}
	return data, nil
}
