package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/c360/dvlstreams/dvl"
	"github.com/c360/dvlstreams/errors"
)

// SimConfig controls what the simulator sends.
type SimConfig struct {
	RateHz float64
	// DeadReckoningEvery interleaves one position frame after every n
	// velocity frames. 0 disables them.
	DeadReckoningEvery int
	// Fragment splits each frame across several writes.
	Fragment bool
	// DisconnectAfter closes each connection after n frames. 0 never does.
	DisconnectAfter int
	Seed            uint64
}

// Simulator serves a synthetic DVL A50 JSON stream to every TCP client.
type Simulator struct {
	cfg    SimConfig
	logger *slog.Logger

	mu   sync.Mutex
	rng  *rand.Rand
	sent int64
}

// NewSimulator creates a simulator. A zero rate defaults to 10 Hz.
func NewSimulator(cfg SimConfig, logger *slog.Logger) *Simulator {
	if cfg.RateHz <= 0 {
		cfg.RateHz = 10
	}
	if logger == nil {
		logger = slog.Default().With("component", "dvlsim")
	}
	return &Simulator{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed)),
	}
}

// Serve accepts clients until ctx is cancelled. It closes ln on return.
func (s *Simulator) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.WrapTransient(err, "Simulator", "Serve", "accept client")
		}

		s.logger.Info("Client connected", "remote", conn.RemoteAddr().String())
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			if err := s.stream(ctx, conn); err != nil {
				s.logger.Info("Client dropped", "remote", conn.RemoteAddr().String(), "reason", err)
			}
		}()
	}
}

// Sent returns the number of frames written across all clients.
func (s *Simulator) Sent() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *Simulator) stream(ctx context.Context, conn net.Conn) error {
	period := time.Duration(float64(time.Second) / s.cfg.RateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	start := time.Now()
	frames := 0
	velocities := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		elapsed := time.Since(start).Seconds()
		frame, err := EncodeVelocity(elapsed, float64(period.Milliseconds()))
		if err != nil {
			return err
		}
		velocities++
		if err := s.write(conn, frame); err != nil {
			return err
		}
		frames++

		if s.cfg.DeadReckoningEvery > 0 && velocities%s.cfg.DeadReckoningEvery == 0 {
			pos, err := EncodeDeadReckoning(elapsed)
			if err != nil {
				return err
			}
			if err := s.write(conn, pos); err != nil {
				return err
			}
			frames++
		}

		if s.cfg.DisconnectAfter > 0 && frames >= s.cfg.DisconnectAfter {
			return fmt.Errorf("disconnect after %d frames", frames)
		}
	}
}

// write sends frame plus the newline, split at random points when
// fragmentation is on.
func (s *Simulator) write(conn net.Conn, frame []byte) error {
	data := append(frame, '\n')

	var chunks [][]byte
	if s.cfg.Fragment && len(data) > 2 {
		s.mu.Lock()
		cut1 := 1 + s.rng.IntN(len(data)-1)
		cut2 := cut1 + s.rng.IntN(len(data)-cut1)
		s.mu.Unlock()
		chunks = [][]byte{data[:cut1], data[cut1:cut2], data[cut2:]}
	} else {
		chunks = [][]byte{data}
	}

	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		if _, err := conn.Write(chunk); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}

// EncodeVelocity builds a velocity frame for a vehicle moving on a slow
// circle t seconds into the run.
func EncodeVelocity(t, sinceLastMs float64) ([]byte, error) {
	vx := 0.3 * math.Cos(t/10)
	vy := 0.3 * math.Sin(t/10)
	altitude := 4 + 0.5*math.Sin(t/7)

	r := &dvl.VelocityReport{
		Time:          sinceLastMs,
		Velocity:      dvl.Vector3{X: vx, Y: vy, Z: 0.01 * math.Sin(t)},
		FOM:           0.002,
		Altitude:      altitude,
		VelocityValid: true,
		Form:          "json_v3.1",
	}
	for i := range r.Beams {
		r.Beams[i] = dvl.Beam{
			ID:       int64(i),
			Velocity: vx*math.Cos(float64(i)*math.Pi/2) + vy*math.Sin(float64(i)*math.Pi/2),
			Distance: altitude / math.Cos(22.5*math.Pi/180),
			RSSI:     -30.5 - float64(i),
			NSD:      -88.2,
			Valid:    true,
		}
	}
	return dvl.EncodeWire(r)
}

type deadReckoning struct {
	Type   string  `json:"type"`
	TS     float64 `json:"ts"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	STD    float64 `json:"std"`
	Roll   float64 `json:"roll"`
	Pitch  float64 `json:"pitch"`
	Yaw    float64 `json:"yaw"`
	Status int     `json:"status"`
	Format string  `json:"format"`
}

// EncodeDeadReckoning builds a position frame matching the velocity track.
func EncodeDeadReckoning(t float64) ([]byte, error) {
	data, err := json.Marshal(deadReckoning{
		Type:   "position_local",
		TS:     t,
		X:      3 * math.Sin(t/10),
		Y:      3 - 3*math.Cos(t/10),
		Z:      0,
		STD:    0.05 * t,
		Yaw:    math.Mod(t*180/(10*math.Pi), 360),
		Format: "json_v3.1",
	})
	if err != nil {
		return nil, errors.WrapInvalid(err, "dvlsim", "EncodeDeadReckoning", "marshal position record")
	}
	return data, nil
}
