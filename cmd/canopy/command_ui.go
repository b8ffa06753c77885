package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"canopy/internal/app"
	"canopy/internal/config"
	"canopy/internal/logging"
	"canopy/internal/store"
)

type UICommand struct {
	stderr    io.Writer
	loadCfg   func() (config.Config, error)
	newClient clientFactory
}

func NewUICommand(stderr io.Writer, loadCfg func() (config.Config, error), newClient clientFactory) *UICommand {
	return &UICommand{
		stderr:    stderr,
		loadCfg:   loadCfg,
		newClient: newClient,
	}
}

func (c *UICommand) Run(args []string) error {
	cfg, err := c.loadCfg()
	if err != nil {
		return err
	}

	logger, closeLog, err := openUILogger(cfg)
	if err != nil {
		fmt.Fprintf(c.stderr, "logging disabled: %v\n", err)
		logger = logging.Nop()
		closeLog = func() {}
	}
	defer closeLog()

	api, err := c.newClient(cfg)
	if err != nil {
		return err
	}

	st := store.New(logger)
	hydrator := store.NewHydrator(st, api, cfg.MaxHydratedSessions(), logger)

	hints, err := openHintStore()
	if err != nil {
		logger.Warn("hint store unavailable", logging.F("error", err))
	}
	defer hints.Close()

	return app.Run(app.Deps{
		Config:   cfg,
		Logger:   logger,
		Client:   api,
		Store:    st,
		Hydrator: hydrator,
		Hints:    hints,
	})
}

// openUILogger writes logs to a file so they never corrupt the
// alternate screen.
func openUILogger(cfg config.Config) (logging.Logger, func(), error) {
	path, err := config.LogPath()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(file, logging.ParseLevel(cfg.LogLevel()))
	return logger, func() { _ = file.Close() }, nil
}

func openHintStore() (*store.HintStore, error) {
	path, err := config.HintDBPath()
	if err != nil {
		return nil, err
	}
	return store.OpenHintStore(path)
}
