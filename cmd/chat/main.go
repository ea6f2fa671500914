package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/gochat/pkg/client"
	"github.com/samsamfire/gochat/pkg/config"
)

func main() {
	// Command line arguments
	transport := flag.String("t", "", "transport protocol (tcp|udp), required")
	server := flag.String("s", "", "server IP or hostname, required")
	port := flag.Uint("p", config.DefaultPort, "server port")
	timeoutMs := flag.Uint("d", uint(config.DefaultConfirmTimeout/time.Millisecond), "UDP confirmation timeout in ms")
	retries := flag.Int("r", config.DefaultMaxRetries, "UDP max retries")
	configPath := flag.String("c", "", "config file path (INI)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	cfg := config.Default()
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			log.Errorf("%v", err)
			os.Exit(1)
		}
	}
	// Flags given explicitly override config file values
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			cfg.Transport = *transport
		case "s":
			cfg.Server = *server
		case "p":
			cfg.Port = uint16(*port)
		case "d":
			cfg.ConfirmTimeout = time.Duration(*timeoutMs) * time.Millisecond
		case "r":
			cfg.MaxRetries = *retries
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Terminal interrupt is the cancellation token, polled by the
	// event loop, it never touches session state directly
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.NewClient(logger, cfg)
	if err != nil {
		log.Errorf("could not connect to %v : %v", cfg.Address(), err)
		os.Exit(1)
	}
	if err := c.Run(ctx); err != nil {
		log.Errorf("session ended with error : %v", err)
		os.Exit(1)
	}
}
