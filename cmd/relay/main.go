package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"skirmish/internal/app"
	"skirmish/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a relay config file (optional)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadRelay(*configPath, nil)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := app.RunRelay(ctx, cfg, nil); err != nil {
		log.Fatalf("%v", err)
	}
}
