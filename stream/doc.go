// Package stream turns an unreliable sensor byte stream into a reliable
// sequence of newline-delimited frames.
//
// A Connector opens the link to the sensor. TCPConnector dials a host and
// port, retrying forever at a fixed interval while the sensor is unreachable
// and failing only on errors no retry can fix (bad address, descriptor or
// memory exhaustion). SerialConnector does the same for a serial device.
// Both arm a read timeout on the returned stream.
//
// FrameReader owns one connection and a carry-over buffer. NextFrame returns
// the bytes before the next '\n'. Any read failure (timeout, reset, peer
// close, zero-length read) drops the connection and asks the Connector for a
// new one on the next read; bytes already buffered are kept, so frame
// boundaries need not line up with connection boundaries.
//
//	reader := stream.NewFrameReader(stream.NewTCPConnector(cfg, logger), stream.WithLogger(logger))
//	defer reader.Close()
//	for {
//	    frame, err := reader.NextFrame(ctx)
//	    if err != nil {
//	        return err // fatal connector error or ctx done
//	    }
//	    handle(frame)
//	}
//
// A FrameReader is not safe for concurrent use.
package stream
