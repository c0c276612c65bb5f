package dvl

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/dvlstreams/message"
)

func sampleReport() *VelocityReport {
	return &VelocityReport{
		Time:          87.25,
		Velocity:      Vector3{X: 0.1234567, Y: -1e-5, Z: 3},
		FOM:           0.0031,
		Altitude:      12.5,
		VelocityValid: true,
		Status:        1,
		Form:          "json_v3",
		Beams: [BeamCount]Beam{
			{ID: 0, Velocity: 0.5, Distance: 12.1, RSSI: -40.25, NSD: -90, Valid: true},
			{ID: 1, Velocity: -0.25, Distance: 12.9, RSSI: -41, NSD: -91.5, Valid: true},
			{ID: 2, Velocity: 0.125, Distance: 13.05, RSSI: -39.75, NSD: -89, Valid: false},
			{ID: 3, Velocity: 0, Distance: 0, RSSI: -100, NSD: -100, Valid: false},
		},
	}
}

func TestEncodeWire_RoundTrip(t *testing.T) {
	want := sampleReport()

	data, err := EncodeWire(want)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\n")

	rec, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, KindVelocity, rec.Kind)
	assert.Equal(t, want, rec.Velocity)
}

func TestEncodeWire_Schema(t *testing.T) {
	data, err := EncodeWire(sampleReport())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "velocity", doc["type"])
	assert.Equal(t, "json_v3", doc["format"])
	assert.NotContains(t, doc, "header")
	beams := doc["transducers"].([]any)
	require.Len(t, beams, BeamCount)
	assert.Equal(t, false, beams[2].(map[string]any)["beam_valid"])
}

func TestVelocityReport_Payload(t *testing.T) {
	r := sampleReport()
	r.Header = Header{Stamp: time.UnixMilli(1700000000000).UTC(), FrameID: DefaultFrameID}

	var _ message.Payload = r
	assert.Equal(t, VelocityType, r.Schema())
	assert.NoError(t, r.Validate())

	msg := message.NewBaseMessage(r.Schema(), r, "test")
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var got VelocityReport
	_, err = message.Decode(data, &got)
	require.NoError(t, err)
	assert.True(t, r.Header.Stamp.Equal(got.Header.Stamp))
	got.Header.Stamp = r.Header.Stamp
	assert.Equal(t, *r, got)

	r.Header.FrameID = ""
	assert.Error(t, r.Validate())
}
