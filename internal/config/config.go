// Package config loads and hot-reloads the station's weekly schedule from
// an XML document: WeekSchedule -> DaySchedule(x7) -> Zone -> Playlist /
// IntermediatePlaylist. Parsing mirrors the original cfg_handler.c: read
// the whole file, validate against the (externally supplied) schema, walk
// the tree enforcing zone ordering, and build an in-memory WeekSchedule.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/nkossifidis/audioscheduler/internal/logging"
	"github.com/nkossifidis/audioscheduler/internal/playlist"
)

var log = logging.For(logging.Cfg)

// ErrorKind enumerates the ways loading a config file can fail.
type ErrorKind int

const (
	ErrMalformed ErrorKind = iota
	ErrSchemaViolation
	ErrUnreadable
	ErrEmptyDay
	ErrZonesUnordered
	ErrZonesOverlapping
	ErrIncompleteWeek
)

func (k ErrorKind) String() string {
	switch k {
	case ErrMalformed:
		return "malformed"
	case ErrSchemaViolation:
		return "schema_violation"
	case ErrUnreadable:
		return "unreadable"
	case ErrEmptyDay:
		return "empty_day"
	case ErrZonesUnordered:
		return "zones_unordered"
	case ErrZonesOverlapping:
		return "zones_overlapping"
	case ErrIncompleteWeek:
		return "incomplete_week"
	default:
		return "unknown"
	}
}

// ConfigError is the typed error returned by Load and ReloadIfChanged.
type ConfigError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s (%s): %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("config %s (%s)", e.Kind, e.Path)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// SchemaValidator checks a raw document against the station's XML schema.
// The real schema-validation logic lives outside this module (spec.md §1
// names it an external black-box collaborator); implementations plug in
// via Config.Validator. The default accepts anything syntactically
// well-formed, since encoding/xml already rejected malformed documents by
// the time Validate is called.
type SchemaValidator interface {
	Validate(doc []byte) error
}

type permissiveValidator struct{}

func (permissiveValidator) Validate([]byte) error { return nil }

// Zone is a named time-of-day slot owning a main playlist and optional
// fallback/intermediate playlists.
type Zone struct {
	Name          string
	Start         time.Duration // time-of-day offset from midnight
	Main          *playlist.Playlist
	Fallback      *playlist.Playlist
	Intermediates []*playlist.Intermediate
}

// DaySchedule holds a day's zones, strictly ordered ascending by start.
type DaySchedule struct {
	Zones []*Zone
}

// WeekSchedule indexes days Sunday=0 .. Saturday=6.
type WeekSchedule struct {
	Days [7]*DaySchedule
}

// Config is the live, reloadable configuration.
type Config struct {
	SourcePath string
	LastMtime  time.Time
	Week       *WeekSchedule
	Validator  SchemaValidator
}

// New creates a Config ready for an initial Load.
func New(path string) *Config {
	return &Config{SourcePath: path, Validator: permissiveValidator{}}
}

// Load reads, validates and parses the config file at c.SourcePath,
// replacing c.Week on success.
func (c *Config) Load() (*WeekSchedule, error) {
	fi, err := os.Stat(c.SourcePath)
	if err != nil {
		return nil, &ConfigError{Kind: ErrUnreadable, Path: c.SourcePath, Err: err}
	}
	data, err := os.ReadFile(c.SourcePath)
	if err != nil {
		return nil, &ConfigError{Kind: ErrUnreadable, Path: c.SourcePath, Err: err}
	}

	var doc xmlWeekSchedule
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Kind: ErrMalformed, Path: c.SourcePath, Err: err}
	}

	if c.Validator == nil {
		c.Validator = permissiveValidator{}
	}
	if err := c.Validator.Validate(data); err != nil {
		return nil, &ConfigError{Kind: ErrSchemaViolation, Path: c.SourcePath, Err: err}
	}

	week, err := buildWeek(&doc)
	if err != nil {
		return nil, err
	}

	c.LastMtime = fi.ModTime()
	c.Week = week
	log.Infof("loaded config %s (7 days)", c.SourcePath)
	return week, nil
}

// ReloadStatus is the outcome of ReloadIfChanged.
type ReloadStatus int

const (
	Unchanged ReloadStatus = iota
	Reloaded
	Failed
)

// ReloadIfChanged compares the on-disk mtime against c.LastMtime and
// reloads when it has changed. Unlike the C original (which calls
// cfg_cleanup on the old tree and leaves the scheduler with nothing on
// failure), this implementation keeps serving c.Week on failure — the
// safer alternative the spec explicitly calls out as a live design
// choice (see SPEC_FULL.md §10.2).
func (c *Config) ReloadIfChanged() (ReloadStatus, error) {
	fi, err := os.Stat(c.SourcePath)
	if err != nil {
		return Failed, &ConfigError{Kind: ErrUnreadable, Path: c.SourcePath, Err: err}
	}
	if !fi.ModTime().After(c.LastMtime) {
		return Unchanged, nil
	}

	oldWeek := c.Week
	if _, err := c.Load(); err != nil {
		log.Warnf("reload failed, keeping last-known-good schedule: %v", err)
		c.Week = oldWeek
		return Failed, err
	}
	return Reloaded, nil
}

func buildWeek(doc *xmlWeekSchedule) (*WeekSchedule, error) {
	week := &WeekSchedule{}
	dayElems := map[string]*xmlDay{
		"Sun": doc.Sun, "Mon": doc.Mon, "Tue": doc.Tue, "Wed": doc.Wed,
		"Thu": doc.Thu, "Fri": doc.Fri, "Sat": doc.Sat,
	}
	order := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

	for i, name := range order {
		el := dayElems[name]
		if el == nil {
			return nil, &ConfigError{Kind: ErrIncompleteWeek, Err: fmt.Errorf("missing day %s", name)}
		}
		ds, err := buildDay(el)
		if err != nil {
			return nil, err
		}
		week.Days[i] = ds
	}
	return week, nil
}

func buildDay(el *xmlDay) (*DaySchedule, error) {
	if len(el.Zones) == 0 {
		return nil, &ConfigError{Kind: ErrEmptyDay, Err: fmt.Errorf("day has no zones")}
	}

	ds := &DaySchedule{}
	var prev *Zone
	sawMidnight := false

	for _, zel := range el.Zones {
		start, err := parseTimeOfDay(zel.Start)
		if err != nil {
			return nil, &ConfigError{Kind: ErrMalformed, Err: err}
		}
		if start == 0 {
			sawMidnight = true
		}

		zn, err := buildZone(zel, start)
		if err != nil {
			return nil, err
		}

		if prev != nil {
			switch {
			case zn.Start == prev.Start:
				return nil, &ConfigError{Kind: ErrZonesOverlapping,
					Err: fmt.Errorf("zone %q shares start time with %q", zn.Name, prev.Name)}
			case zn.Start < prev.Start:
				return nil, &ConfigError{Kind: ErrZonesUnordered,
					Err: fmt.Errorf("zone %q starts before %q", zn.Name, prev.Name)}
			}
		}

		ds.Zones = append(ds.Zones, zn)
		prev = zn
	}

	if !sawMidnight {
		log.Warnf("day has no zone starting at 00:00:00")
	}

	return ds, nil
}

func buildZone(zel *xmlZone, start time.Duration) (*Zone, error) {
	if zel.Name == "" {
		return nil, &ConfigError{Kind: ErrSchemaViolation, Err: fmt.Errorf("zone missing Name")}
	}
	if zel.Main == nil {
		return nil, &ConfigError{Kind: ErrSchemaViolation, Err: fmt.Errorf("zone %q missing Main playlist", zel.Name)}
	}

	zn := &Zone{Name: zel.Name, Start: start}

	var err error
	if zn.Main, err = buildPlaylist(zel.Main); err != nil {
		return nil, err
	}
	if zel.Fallback != nil {
		if zn.Fallback, err = buildPlaylist(zel.Fallback); err != nil {
			return nil, err
		}
	}
	for _, iel := range zel.Intermediates {
		ip, err := buildIntermediate(iel)
		if err != nil {
			return nil, err
		}
		zn.Intermediates = append(zn.Intermediates, ip)
	}
	return zn, nil
}

func buildPlaylist(pel *xmlPlaylist) (*playlist.Playlist, error) {
	if pel.Path == "" {
		return nil, &ConfigError{Kind: ErrSchemaViolation, Err: fmt.Errorf("playlist missing Path")}
	}
	pl := playlist.New(pel.Path)
	pl.Shuffle = pel.Shuffle == "true"
	if pel.Fader != nil {
		if pel.Fader.FadeInDurationSecs <= 0 && pel.Fader.FadeOutDurationSecs <= 0 {
			return nil, &ConfigError{Kind: ErrSchemaViolation,
				Err: fmt.Errorf("fader on %q has neither fade-in nor fade-out duration", pel.Path)}
		}
		pl.Fader = &playlist.Fader{
			FadeInSecs:  pel.Fader.FadeInDurationSecs,
			FadeOutSecs: pel.Fader.FadeOutDurationSecs,
			MinLevel:    pel.Fader.MinLevel,
			MaxLevel:    pel.Fader.MaxLevel,
		}
	}
	return pl, nil
}

func buildIntermediate(iel *xmlIntermediate) (*playlist.Intermediate, error) {
	base, err := buildPlaylist(&iel.xmlPlaylist)
	if err != nil {
		return nil, err
	}
	if iel.Name == "" {
		return nil, &ConfigError{Kind: ErrSchemaViolation, Err: fmt.Errorf("intermediate missing Name")}
	}
	if iel.SchedIntervalMins < 1 {
		return nil, &ConfigError{Kind: ErrSchemaViolation, Err: fmt.Errorf("intermediate %q SchedIntervalMins must be >= 1", iel.Name)}
	}
	if iel.NumSchedItems < 1 {
		return nil, &ConfigError{Kind: ErrSchemaViolation, Err: fmt.Errorf("intermediate %q NumSchedItems must be >= 1", iel.Name)}
	}
	return &playlist.Intermediate{
		PL:              base,
		Name:            iel.Name,
		IntervalMinutes: iel.SchedIntervalMins,
		ItemsPerFiring:  iel.NumSchedItems,
		PendingInBurst:  -1, // armed: the first Ready() tick starts a burst
		LastFiredAt:     time.Now(),
	}, nil
}

func parseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time-of-day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// TimeOfDay extracts the time-of-day duration (since local midnight) of
// an instant, for zone/intermediate comparisons.
func TimeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}
