package main

import (
	"io"
	"os"

	"canopy/internal/client"
	"canopy/internal/config"
)

type commandRunner interface {
	Run(args []string) error
}

type clientFactory func(cfg config.Config) (*client.Client, error)

type commandWiring struct {
	stdout    io.Writer
	stderr    io.Writer
	loadCfg   func() (config.Config, error)
	newClient clientFactory
	version   string
}

func defaultCommandWiring(stdout, stderr io.Writer) commandWiring {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return commandWiring{
		stdout:    stdout,
		stderr:    stderr,
		loadCfg:   config.Load,
		newClient: newRuntimeClient,
		version:   buildVersion(),
	}
}

func newRuntimeClient(cfg config.Config) (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:  cfg.RuntimeBaseURL(),
		Username: cfg.RuntimeUsername(),
		Token:    cfg.Runtime.Token,
		Timeout:  cfg.RuntimeTimeout(),
	})
}

func buildCommands(wiring commandWiring) map[string]commandRunner {
	return map[string]commandRunner{
		"ui":       NewUICommand(wiring.stderr, wiring.loadCfg, wiring.newClient),
		"sessions": NewSessionsCommand(wiring.stdout, wiring.stderr, wiring.loadCfg, wiring.newClient),
		"projects": NewProjectsCommand(wiring.stdout, wiring.stderr, wiring.loadCfg, wiring.newClient),
		"version":  NewVersionCommand(wiring.stdout, wiring.version),
	}
}
