package dvl

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const velocityFrame = `{"time":106.3,"vx":-0.012,"vy":0.002,"vz":0.031,"fom":0.002,"altitude":1.12,` +
	`"transducers":[` +
	`{"id":0,"velocity":0.021,"distance":1.104,"rssi":-30.5,"nsd":-88.1,"beam_valid":true},` +
	`{"id":1,"velocity":-0.013,"distance":1.118,"rssi":-31.2,"nsd":-87.9,"beam_valid":true},` +
	`{"id":2,"velocity":0.004,"distance":1.131,"rssi":-29.8,"nsd":-88.4,"beam_valid":true},` +
	`{"id":3,"velocity":-0.007,"distance":1.125,"rssi":-30.9,"nsd":-88.0,"beam_valid":false}],` +
	`"velocity_valid":true,"status":0,"format":"json_v3","type":"velocity"}`

const positionFrame = `{"ts":49056.1,"x":1.2,"y":-0.4,"z":0.9,"std":0.02,"roll":0.1,"pitch":-0.2,` +
	`"yaw":91.5,"type":"position_local","status":0,"format":"json_v3"}`

// mutate decodes velocityFrame, applies fn and re-encodes it.
func mutate(t *testing.T, fn func(doc map[string]any)) []byte {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(velocityFrame), &doc))
	fn(doc)
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func beam(doc map[string]any, i int) map[string]any {
	return doc["transducers"].([]any)[i].(map[string]any)
}
