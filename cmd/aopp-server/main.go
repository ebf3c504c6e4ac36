package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/status-im/status-aopp-go/cmd/aopp-server/server"
	"github.com/status-im/status-aopp-go/internal/logging"
	"github.com/status-im/status-aopp-go/pkg/session"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootLogger, err := logging.BuildLogger(cfg.LogEnabled, cfg.LogFile)
	if err != nil {
		fmt.Printf("failed to initialize log: %v\n", err)
		rootLogger = zap.NewNop()
	}
	zap.ReplaceGlobals(rootLogger)

	err = run(cfg, rootLogger)
	_ = rootLogger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config, rootLogger *zap.Logger) error {
	logger := rootLogger.Named("main")

	node, err := session.Bootstrap(cfg.sessionConfig(), rootLogger)
	if err != nil {
		return err
	}
	defer node.Stop()

	srv := server.NewServer(rootLogger, node.RPC)
	srv.Setup()

	err = srv.Listen(cfg.Address)
	if err != nil {
		logger.Error("failed to start server", zap.Error(err))
		return err
	}

	logger.Info("aopp-server started",
		zap.String("address", srv.Address()),
		zap.String("keystore", cfg.Keystore),
		zap.Bool("testnet", cfg.Testnet))

	go srv.Serve()

	waitForInterrupt()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Stop(ctx)

	logger.Info("aopp-server stopped")
	return nil
}

// waitForInterrupt blocks until SIGINT or SIGTERM.
func waitForInterrupt() {
	ch := make(chan os.Signal, 1)
	ossignal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	defer ossignal.Stop(ch)

	<-ch
}
