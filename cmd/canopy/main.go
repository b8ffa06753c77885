package main

import (
	"fmt"
	"os"
)

const usageText = `canopy watches and drives agent sessions on a remote runtime.

Usage:
  canopy <command> [flags]

Commands:
  ui         run the terminal UI (default)
  sessions   list sessions for a project directory
  projects   list known projects
  version    print build version
  help       show help

Flags:
  -h, --help   show help

Examples:
  canopy
  canopy sessions --directory /home/me/src/service
  CANOPY_RUNTIME_URL=http://127.0.0.1:4096 canopy ui
`

func printUsage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	args := os.Args[1:]

	wiring := defaultCommandWiring(os.Stdout, os.Stderr)
	commands := buildCommands(wiring)

	if len(args) == 0 {
		exitOnErr("ui", commands["ui"].Run(nil), wiring.stderr)
		return
	}

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return
	}

	runner, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
	exitOnErr(args[0], runner.Run(args[1:]), wiring.stderr)
}
