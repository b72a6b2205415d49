// Command bankserver runs the UDP bank RPC dispatcher (spec §6.3).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bankrpc/bank"
	"bankrpc/dedup"
	"bankrpc/middleware"
	"bankrpc/server"
	"bankrpc/subscription"
)

func main() {
	os.Exit(run())
}

func run() int {
	port := flag.Int("port", 9000, "UDP port to listen on")
	lossReq := flag.Float64("lossReq", 0, "probability of simulated request loss, in [0,1]")
	lossRep := flag.Float64("lossRep", 0, "probability of simulated reply loss, in [0,1]")
	rate := flag.Float64("rate", 1e9, "per-peer request rate limit, requests/sec")
	burst := flag.Int("burst", 1e9, "per-peer request rate limit burst size")
	logLevel := flag.String("log-level", "info", "zap log level: debug, info, warn, error")
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bankserver: bad --log-level: %v\n", err)
		return 1
	}
	var shutdownErr error
	defer func() {
		shutdownErr = multierr.Append(shutdownErr, logger.Sync())
		if shutdownErr != nil {
			fmt.Fprintf(os.Stderr, "bankserver: shutdown: %v\n", shutdownErr)
		}
	}()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: *port})
	if err != nil {
		logger.Error("failed to bind UDP socket", zap.Int("port", *port), zap.Error(err))
		return 1
	}
	var connClosed bool
	closeConn := func() error {
		if connClosed {
			return nil
		}
		connClosed = true
		return conn.Close()
	}
	defer func() { shutdownErr = multierr.Append(shutdownErr, closeConn()) }()

	logger.Info("bankserver listening",
		zap.Int("port", *port),
		zap.Float64("lossReq", *lossReq),
		zap.Float64("lossRep", *lossRep),
		zap.Float64("rate", *rate),
		zap.Int("burst", *burst),
	)

	srv := server.New(
		conn,
		bank.NewInMemoryBank(),
		subscription.NewInMemory(),
		dedup.New(),
		logger,
		*lossReq, *lossRep,
		middleware.LoggingMiddleware(logger),
		middleware.RateLimitMiddleware(*rate, *burst),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		closeConn()
	}()

	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error("dispatch loop exited", zap.Error(err))
		return 1
	}
	return 0
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
