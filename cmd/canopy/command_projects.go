package main

import (
	"context"
	"flag"
	"io"

	"canopy/internal/config"
)

type ProjectsCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	loadCfg   func() (config.Config, error)
	newClient clientFactory
}

func NewProjectsCommand(stdout, stderr io.Writer, loadCfg func() (config.Config, error), newClient clientFactory) *ProjectsCommand {
	return &ProjectsCommand{
		stdout:    stdout,
		stderr:    stderr,
		loadCfg:   loadCfg,
		newClient: newClient,
	}
}

func (c *ProjectsCommand) Run(args []string) error {
	fs := flag.NewFlagSet("projects", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
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
	projects, err := api.ListProjects(context.Background())
	if err != nil {
		return err
	}
	printProjects(c.stdout, projects)
	return nil
}
