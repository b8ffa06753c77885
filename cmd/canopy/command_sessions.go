package main

import (
	"context"
	"flag"
	"io"

	"canopy/internal/config"
)

type SessionsCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	loadCfg   func() (config.Config, error)
	newClient clientFactory
}

func NewSessionsCommand(stdout, stderr io.Writer, loadCfg func() (config.Config, error), newClient clientFactory) *SessionsCommand {
	return &SessionsCommand{
		stdout:    stdout,
		stderr:    stderr,
		loadCfg:   loadCfg,
		newClient: newClient,
	}
}

func (c *SessionsCommand) Run(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	directory := fs.String("directory", "", "project directory to list (defaults to all projects)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := c.loadCfg()
	if err != nil {
		return err
	}
	api, err := c.newClient(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()

	directories := []string{*directory}
	if *directory == "" {
		projects, err := api.ListProjects(ctx)
		if err != nil {
			return err
		}
		directories = directories[:0]
		for _, project := range projects {
			directories = append(directories, project.Directory)
		}
	}

	for _, dir := range directories {
		sessions, err := api.ListSessions(ctx, dir)
		if err != nil {
			return err
		}
		printSessions(c.stdout, sessions)
	}
	return nil
}
