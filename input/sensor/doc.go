// Package sensor is the DVL input component.
//
// Input owns the sensor link. Its loop pulls frames from a stream.FrameReader,
// decodes them with dvl.Decode, and routes them with dvl.Dispatch to a RawSink
// and a ReportSink. After every structured report the loop sleeps out the rest
// of the output cycle (10 Hz by default). Frames that fail to decode are
// logged, counted and skipped; they never cause a reconnect and never consume
// a cycle.
//
//	in := sensor.NewInput(sensor.InputDeps{
//	    Config:          cfg.Sensor,
//	    Raw:             rawSink,
//	    Report:          reportSink,
//	    MetricsRegistry: registry,
//	    Logger:          logger,
//	})
//	if err := in.Initialize(); err != nil {
//	    return err
//	}
//	if err := in.Start(ctx); err != nil {
//	    return err
//	}
//	<-in.Done()
//	return in.Err() // nil after cancellation, the fatal error otherwise
//
// Sink errors are counted and logged; the loop keeps running.
package sensor
