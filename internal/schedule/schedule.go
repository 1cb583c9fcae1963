// Package schedule is the scheduler core: given the live configuration
// and a target instant, it walks week -> day -> zone -> playlist to
// produce the next item the player should queue (scheduler.c's
// sched_get_next). Reloading the config or drawing from a playlist is
// never fatal on its own — only exhausting every fallback is.
package schedule

import (
	"fmt"
	"time"

	"github.com/nkossifidis/audioscheduler/internal/config"
	"github.com/nkossifidis/audioscheduler/internal/logging"
	"github.com/nkossifidis/audioscheduler/internal/media"
	"github.com/nkossifidis/audioscheduler/internal/metrics"
	"github.com/nkossifidis/audioscheduler/internal/playlist"
)

var log = logging.For(logging.Sched)

// probeItem is overridable in tests so playlist-draw logic can be
// exercised without shelling out to ffprobe/ffmpeg on fixture files.
var probeItem = media.Probe

// ScheduleError is the typed error surface for Next: the zone was
// resolved but no playlist in it (intermediate, main or fallback)
// yielded a playable item.
type ScheduleError struct {
	Zone string
	Err  error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("schedule: zone %q: %v", e.Zone, e.Err)
}

func (e *ScheduleError) Unwrap() error { return e.Err }

// Scheduler owns the live Config and produces items on demand. It is
// driven by a single goroutine (the player's scheduling loop); it is
// not safe for concurrent use from multiple goroutines.
type Scheduler struct {
	Cfg *config.Config
}

// New wraps an already-loaded Config.
func New(cfg *config.Config) *Scheduler {
	return &Scheduler{Cfg: cfg}
}

// Next resolves the item to play at the given instant. It reloads the
// config if the file has changed, picks the latest zone whose start
// time is not after the target's time-of-day (the zone boundary is
// inclusive), optionally draws from a due intermediate playlist, and
// otherwise falls through main -> fallback. Besides the case of no
// loaded schedule or no zones for the day, it only returns an error
// when every playlist in the zone failed to yield anything.
func (s *Scheduler) Next(at time.Time) (*media.AudioFileInfo, error) {
	log.Infof("scheduling item for %s", at.Format("Mon 02 Jan 2006, 15:04:05"))

	if _, err := s.Cfg.ReloadIfChanged(); err != nil {
		log.Warnf("reloading config failed: %v", err)
	}

	week := s.Cfg.Week
	if week == nil {
		return nil, fmt.Errorf("no schedule loaded")
	}

	day := week.Days[int(at.Weekday())]
	if day == nil || len(day.Zones) == 0 {
		return nil, fmt.Errorf("no zones scheduled for %s", at.Weekday())
	}

	zn := selectZone(day, at)

	var (
		pl   *playlist.Playlist
		info *media.AudioFileInfo
		err  error
	)

	if ip := dueIntermediate(zn, at); ip != nil {
		info, err = nextFromPlaylist(ip.PL, zn.Name)
		if err == nil {
			log.Debugf("using intermediate playlist %q", ip.Name)
			return info, nil
		}
		log.Warnf("intermediate playlist %q yielded nothing: %v", ip.Name, err)
	}

	pl = zn.Main
	if info, err = nextFromPlaylist(pl, zn.Name); err == nil {
		log.Debugf("using main playlist for zone %q", zn.Name)
		return info, nil
	}
	log.Warnf("main playlist for zone %q yielded nothing: %v", zn.Name, err)

	if zn.Fallback != nil {
		if info, err = nextFromPlaylist(zn.Fallback, zn.Name); err == nil {
			log.Warnf("using fallback playlist for zone %q", zn.Name)
			return info, nil
		}
		log.Warnf("fallback playlist for zone %q yielded nothing: %v", zn.Name, err)
	}

	metrics.IncScheduleFailure(zn.Name)
	return nil, &ScheduleError{Zone: zn.Name, Err: fmt.Errorf("no playlist yielded a playable item")}
}

// selectZone walks the day's zones (stored ascending by Start) from
// the end backwards, returning the last one whose Start is <= the
// target's time-of-day. If none qualifies (e.g. the day's first zone
// doesn't start at midnight and "at" is before it), the first zone of
// the day is used, matching the C original's "nothing scheduled yet,
// use the first zone" fallback.
func selectZone(day *config.DaySchedule, at time.Time) *config.Zone {
	tod := config.TimeOfDay(at)
	for i := len(day.Zones) - 1; i >= 0; i-- {
		zn := day.Zones[i]
		if zn.Start <= tod {
			log.Debugf("considering zone %q at %s -> selected", zn.Name, zn.Start)
			return zn
		}
		log.Debugf("considering zone %q at %s -> not yet", zn.Name, zn.Start)
	}
	log.Warnf("nothing scheduled for now, using first zone of the day")
	return day.Zones[0]
}

// dueIntermediate returns the highest-priority intermediate playlist
// (zones list them highest-priority first) that is due to fire at
// "at", advancing its burst bookkeeping. A due intermediate whose
// burst just completed is closed out (re-armed for the next interval)
// without being used this round, and the scan continues to the next
// intermediate.
func dueIntermediate(zn *config.Zone, at time.Time) *playlist.Intermediate {
	for _, ip := range zn.Intermediates {
		if !ip.Ready(at) {
			continue
		}

		switch {
		case ip.PendingInBurst == -1:
			ip.PendingInBurst = ip.ItemsPerFiring
		case ip.PendingInBurst == 0:
			ip.PendingInBurst = -1
			ip.LastFiredAt = at
			continue
		}

		log.Debugf("intermediate %q: %d items pending in burst", ip.Name, ip.PendingInBurst)
		ip.PendingInBurst--
		return ip
	}
	return nil
}

// nextFromPlaylist reloads pl if its source file changed, advances its
// cursor (re-shuffling on wraparound if requested), and probes the
// first readable entry it finds from the cursor onward. Unreadable or
// unprobeable entries are skipped, not fatal; running out of entries
// without success is.
func nextFromPlaylist(pl *playlist.Playlist, zoneName string) (*media.AudioFileInfo, error) {
	if pl == nil {
		return nil, fmt.Errorf("no playlist configured")
	}

	if err := playlist.ReloadIfChanged(pl); err != nil {
		return nil, fmt.Errorf("reloading playlist %s: %w", pl.SourcePath, err)
	}
	if len(pl.Items) == 0 {
		return nil, fmt.Errorf("playlist %s has no items", pl.SourcePath)
	}

	if pl.Cursor+1 >= len(pl.Items) {
		pl.Cursor = 0
		if pl.Shuffle {
			log.Debugf("re-shuffling playlist %s", pl.SourcePath)
			playlist.Shuffle(pl.Items)
		}
	}

	for idx := pl.Cursor; idx < len(pl.Items); idx++ {
		path := pl.Items[idx]
		info, err := probeItem(path, zoneName, pl.Fader, true)
		if err != nil {
			log.Warnf("failed to load file %s: %v", path, err)
			continue
		}
		pl.Cursor = idx + 1
		return info, nil
	}

	return nil, fmt.Errorf("no readable entry found in %s from cursor %d", pl.SourcePath, pl.Cursor)
}
