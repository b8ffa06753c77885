package main

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"text/tabwriter"

	"canopy/internal/types"
)

func printSessions(output io.Writer, sessions []*types.Session) {
	writer := tabwriter.NewWriter(output, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "KEY\tSTATUS\tPARENT\tTITLE")
	for _, session := range sessions {
		parent := "-"
		if session.ParentKey != "" {
			parent = session.ParentKey
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", session.Key, session.Status, parent, session.Title)
	}
	_ = writer.Flush()
}

func printProjects(output io.Writer, projects []types.Project) {
	writer := tabwriter.NewWriter(output, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tNAME\tDIRECTORY")
	for _, project := range projects {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", project.ID, project.Name, project.Directory)
	}
	_ = writer.Flush()
}

func exitOnErr(label string, err error, stderr io.Writer) {
	if err == nil {
		return
	}
	fmt.Fprintf(stderr, "%s error: %v\n", label, err)
	os.Exit(1)
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		var revision, modified string
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
			case "vcs.modified":
				modified = setting.Value
			}
		}
		if revision != "" {
			if modified == "true" {
				return revision + "-dirty"
			}
			return revision
		}
	}
	return "dev"
}
