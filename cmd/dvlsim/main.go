// Package main implements dvlsim, a TCP stand-in for the DVL A50 JSON
// protocol used for local end-to-end runs of dvlbridge.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
)

const appName = "dvlsim"

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("Simulator failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	var cfg SimConfig
	addr := fs.String("listen", "127.0.0.1:16171", "Listen address")
	fs.Float64Var(&cfg.RateHz, "rate", 10, "Velocity frames per second")
	fs.IntVar(&cfg.DeadReckoningEvery, "dr-every", 5, "Send a position frame after every n velocity frames, 0 disables")
	fs.BoolVar(&cfg.Fragment, "fragment", false, "Split frames across several writes")
	fs.IntVar(&cfg.DisconnectAfter, "disconnect-after", 0, "Drop each client after n frames, 0 never")
	fs.Uint64Var(&cfg.Seed, "seed", 1, "Fragmentation seed")
	logFormat := fs.String("log-format", "text", "Log format: json, text")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if *logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	logger := slog.New(handler).With("service", appName)
	slog.SetDefault(logger)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", *addr, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("DVL simulator listening",
		"addr", ln.Addr().String(),
		"rate_hz", cfg.RateHz,
		"fragment", cfg.Fragment,
		"disconnect_after", cfg.DisconnectAfter)

	sim := NewSimulator(cfg, logger)
	err = sim.Serve(ctx, ln)
	logger.Info("DVL simulator stopped", "frames_sent", sim.Sent())
	return err
}
