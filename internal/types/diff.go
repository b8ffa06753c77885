package types

// FileDiff is per-file change stats for a session. The diff list has its
// own lifecycle: refreshed by session.diff events and on-demand fetch,
// independent of message history.
type FileDiff struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}
