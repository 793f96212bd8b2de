package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"skirmish/internal/identity"
	"skirmish/internal/telemetry"
	"skirmish/logging"
	loggingsinks "skirmish/logging/sinks"
)

// newRouter builds the async logging router and the process-wide metrics
// registry every component shares. The returned close function shuts the
// router down and closes any sink files it opened.
func newRouter(cfg logging.Config) (*logging.Router, *logging.Metrics, func(context.Context) error, error) {
	metrics := &logging.Metrics{}

	var sinks []logging.NamedSink
	var files []io.Closer
	if cfg.HasSink("console") {
		sinks = append(sinks, logging.NamedSink{
			Name: "console",
			Sink: loggingsinks.NewConsoleSink(os.Stdout, cfg.Console),
		})
	}
	if cfg.HasSink("json") && cfg.JSON.FilePath != "" {
		file, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("app: open log file %s: %w", cfg.JSON.FilePath, err)
		}
		files = append(files, file)
		sinks = append(sinks, logging.NamedSink{
			Name: "json",
			Sink: loggingsinks.NewJSON(file, cfg.JSON.FlushInterval),
		})
	}

	router, err := logging.NewRouter(nil, cfg, sinks)
	if err != nil {
		for _, file := range files {
			file.Close()
		}
		return nil, nil, nil, fmt.Errorf("app: construct logging router: %w", err)
	}

	closeAll := func(ctx context.Context) error {
		err := router.Close(ctx)
		for _, file := range files {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		return err
	}
	return router, metrics, closeAll, nil
}

// loadOrGenerateIdentity loads the keypair stored under dir/<name>/, creating
// and persisting a fresh one when none exists yet.
func loadOrGenerateIdentity(dir, name string, logger telemetry.Logger) (*identity.Identity, error) {
	id, err := identity.Load(dir, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	logger.Printf("no identity under %s/%s, generating a fresh one", dir, name)
	id, err = identity.Generate(name)
	if err != nil {
		return nil, err
	}
	if err := id.Save(dir); err != nil {
		logger.Printf("could not persist generated identity: %v", err)
	}
	return id, nil
}
