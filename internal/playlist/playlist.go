// Package playlist parses .m3u/.pls playlist files into ordered lists of
// existing, readable item paths, with optional Fisher-Yates shuffling,
// and tracks per-zone intermediate (jingle/station-id) playlists that fire
// on a periodic cadence. Playlists are owned by their enclosing Zone and
// are mutated only by the scheduler goroutine (spec.md §3) — there is
// deliberately no internal locking here; callers outside the scheduler
// must only ever read a deep copy (see AudioFileInfo.Snapshot in
// internal/media).
package playlist

import (
	"time"
)

// Fader is the per-playlist amplitude envelope applied at track
// start/end. At least one of FadeInSecs/FadeOutSecs must be > 0 when a
// Fader is present; the config loader enforces this invariant.
type Fader struct {
	FadeInSecs  float64
	FadeOutSecs float64
	MinLevel    float64
	MaxLevel    float64
}

// Playlist is an ordered sequence of existing-file paths plus the
// scheduler's read cursor into it.
type Playlist struct {
	SourcePath string
	Items      []string
	Shuffle    bool
	Cursor     int
	LastMtime  time.Time
	Fader      *Fader
}

// New creates an empty Playlist bound to a source file; call Process to
// populate Items.
func New(sourcePath string) *Playlist {
	return &Playlist{SourcePath: sourcePath}
}

// Intermediate is a Playlist periodically interleaved into a zone (e.g.
// jingles, station IDs) at a fixed cadence and burst size. Composition,
// not struct-embedding-as-inheritance (spec.md §9): it holds a *Playlist
// in a named field and adds the burst-tracking fields on top.
type Intermediate struct {
	PL              *Playlist
	Name            string
	IntervalMinutes int
	ItemsPerFiring  int
	PendingInBurst  int // -1 == armed, not currently firing
	LastFiredAt     time.Time
}

// Ready reports whether the intermediate is due to fire at the given
// instant, using absolute-timestamp arithmetic (the spec explicitly
// requires this instead of the zeroed-date time-of-day comparison the
// C original used, which wraps incorrectly around midnight).
func (ip *Intermediate) Ready(at time.Time) bool {
	return at.After(ip.LastFiredAt.Add(time.Duration(ip.IntervalMinutes) * time.Minute))
}
