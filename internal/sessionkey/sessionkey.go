// Package sessionkey builds and resolves the composite session key that
// disambiguates same-id sessions across projects.
package sessionkey

import (
	"net/url"
	"strings"

	"canopy/internal/types"
)

// Separator between the escaped directory and the remote id. QueryEscape
// never emits a bare colon, so the separator cannot appear inside the
// directory half.
const separator = "::"

type Resolved struct {
	Directory string
	RemoteID  string
	ProjectID string
}

// Build joins a directory and a remote session id into one stable key.
// The same inputs always produce the same key.
func Build(directory, remoteID string) string {
	return url.QueryEscape(strings.TrimSpace(directory)) + separator + strings.TrimSpace(remoteID)
}

// Parse splits a key back into its directory and remote id without
// consulting the project list. Returns ok=false for keys not produced by
// Build.
func Parse(key string) (directory, remoteID string, ok bool) {
	idx := strings.Index(key, separator)
	if idx < 0 {
		return "", "", false
	}
	directory, err := url.QueryUnescape(key[:idx])
	if err != nil {
		return "", "", false
	}
	remoteID = key[idx+len(separator):]
	if remoteID == "" {
		return "", "", false
	}
	return directory, remoteID, true
}

// Resolve maps a key to its directory, remote id and project using the
// given project snapshot. It returns nil when the key is malformed or the
// snapshot does not contain the key's project yet; callers fall back to a
// best-effort guess and retry once fresher project data arrives.
func Resolve(key string, projects []types.Project) *Resolved {
	directory, remoteID, ok := Parse(key)
	if !ok {
		return nil
	}
	for _, project := range projects {
		if project.Directory == directory {
			return &Resolved{Directory: directory, RemoteID: remoteID, ProjectID: project.ID}
		}
	}
	return nil
}
