// Package dvl decodes the newline-delimited JSON stream of a Water Linked
// A50 Doppler Velocity Log into typed reports.
//
// The sensor emits one JSON object per line. Objects with "type":"velocity"
// carry a velocity estimate and four transducer beams:
//
//	{"type":"velocity","time":106.3,"vx":-0.01,"vy":0.002,"vz":0.03,"fom":0.002,
//	 "altitude":1.12,"velocity_valid":true,"status":0,"format":"json_v3",
//	 "transducers":[{"id":0,"velocity":0.02,"distance":1.1,"rssi":-30.5,"nsd":-88.1,"beam_valid":true}, ...]}
//
// Decode turns a frame into a Record. Velocity frames are fully type-checked
// into a VelocityReport; a missing or mistyped field fails with a
// *DecodeError naming it. Every other record type decodes to KindOther so the
// caller can still forward the raw text.
//
// Dispatch maps the raw-logging flag and a record kind to the sinks that
// receive it. EncodeWire renders a report back into the sensor's schema.
package dvl
