package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"misdash/pkg/config"
	"misdash/pkg/server"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose logging")

	flag.Parse()
	// Set the log format to include a leading timestamp in ISO8601 format
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.SetLevel(cfg.LogrusLogLevel())
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := server.New(ctx, cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	app.LoadCommitments(ctx)

	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

mainloop:
	for {
		select {
		case <-signalChan:
			log.Info("Signalled, breaking main loop")
			cancel()
			break mainloop
		case err := <-done:
			if err != nil {
				log.Fatalf("ListenAndServe: %v", err)
			}
			return
		}
	}
	if err := <-done; err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
