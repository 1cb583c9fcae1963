// Package media probes audio files for the tags and duration the
// scheduler and HTTP metadata endpoint need. Non-strict probing trusts
// ffprobe's container duration; strict probing decodes the file end to
// end with ffmpeg, which also warms the page cache for the player's
// subsequent read and catches corrupt streams before they reach the
// ring buffer (media_loader.c's mldr_init_audiofile).
package media

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"github.com/nkossifidis/audioscheduler/internal/logging"
	"github.com/nkossifidis/audioscheduler/internal/playlist"
)

var log = logging.For(logging.Ldr)

// MediaError is the typed error surface for probing failures.
type MediaError struct {
	Path string
	Err  error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media probe failed for %s: %v", e.Path, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

// AudioFileInfo describes one playable item: its tags, ReplayGain
// values and duration, plus the zone/fader context the scheduler drew
// it under. IsCopy marks instances produced by Snapshot, whose string
// fields are independently owned and safe to hand to another
// goroutine (the HTTP metadata endpoint) without racing the
// scheduler's next mutation of the originating Playlist.
type AudioFileInfo struct {
	FilePath        string
	Artist          string
	Album           string
	Title           string
	AlbumID         string
	ReleaseTrackID  string
	AlbumGainDB     float64
	AlbumPeak       float64
	TrackGainDB     float64
	TrackPeak       float64
	DurationSecs    int
	ZoneName        string
	Fader           *playlist.Fader
	IsCopy          bool
}

// Snapshot returns a deep copy of info suitable for handing to another
// goroutine: string fields are copied (sharing Go's immutable string
// data), and Fader is copied by value rather than shared by pointer.
func (info *AudioFileInfo) Snapshot() *AudioFileInfo {
	if info == nil {
		return nil
	}
	cp := *info
	cp.IsCopy = true
	if info.Fader != nil {
		f := *info.Fader
		cp.Fader = &f
	}
	return &cp
}

// Probe builds an AudioFileInfo for path, scoped to zoneName and fdr.
// When strict is false it trusts ffprobe's reported duration; when
// true it decodes the whole file with ffmpeg to compute an exact
// duration and surface decode errors, at the cost of one full read of
// the file (spec.md §4.3 / media_loader.c's strict mode).
func Probe(path, zoneName string, fdr *playlist.Fader, strict bool) (*AudioFileInfo, error) {
	info := &AudioFileInfo{
		FilePath: path,
		ZoneName: zoneName,
		Fader:    fdr,
	}

	if err := readTags(path, info); err != nil {
		log.Warnf("tag read failed for %s: %v", path, err)
	}

	probedSecs, haveProbe, err := probeDurationSecs(path)
	if err != nil {
		return nil, &MediaError{Path: path, Err: err}
	}

	if !strict {
		if haveProbe {
			info.DurationSecs = probedSecs
			return info, nil
		}
		log.Warnf("no duration metadata for %s, falling back to strict decode", path)
	}

	decodedSecs, decodeErrs, err := decodeDurationSecs(path)
	if err != nil {
		return nil, &MediaError{Path: path, Err: err}
	}
	if decodeErrs > 0 {
		return nil, &MediaError{Path: path, Err: fmt.Errorf("%d decoding errors", decodeErrs)}
	}
	if decodedSecs == 0 {
		return nil, &MediaError{Path: path, Err: fmt.Errorf("contains no audio frames")}
	}

	info.DurationSecs = decodedSecs

	if haveProbe {
		const toleranceSecs = 1
		if diff := decodedSecs - probedSecs; diff < -toleranceSecs || diff > toleranceSecs {
			log.Warnf("duration mismatch in %s: metadata=%ds calculated=%ds (tolerance %ds)",
				path, probedSecs, decodedSecs, toleranceSecs)
		}
	} else {
		log.Warnf("no duration metadata in %s", path)
	}

	return info, nil
}

func readTags(path string, info *AudioFileInfo) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return err
	}

	info.Artist = strings.TrimSpace(m.Artist())
	info.Album = strings.TrimSpace(m.Album())
	info.Title = strings.TrimSpace(m.Title())

	raw := m.Raw()
	info.AlbumID = firstNonEmpty(rawString(raw, "MUSICBRAINZ_ALBUMID"), rawString(raw, "MusicBrainz Album Id"))
	info.ReleaseTrackID = firstNonEmpty(rawString(raw, "MUSICBRAINZ_RELEASETRACKID"), rawString(raw, "MusicBrainz Release Track Id"))
	info.AlbumGainDB = replayGainDB(raw, "REPLAYGAIN_ALBUM_GAIN")
	info.AlbumPeak = replayGainValue(raw, "REPLAYGAIN_ALBUM_PEAK")
	info.TrackGainDB = replayGainDB(raw, "REPLAYGAIN_TRACK_GAIN")
	info.TrackPeak = replayGainValue(raw, "REPLAYGAIN_TRACK_PEAK")

	if info.Title == "" {
		info.Title = strings.TrimSuffix(baseName(path), extName(path))
	}
	return nil
}

// rawString performs a case-insensitive lookup into the tag library's
// raw key/value map, since container formats disagree on ARTIST vs.
// artist and ID3 vs. Vorbis-comment casing.
func rawString(raw map[string]interface{}, key string) string {
	if v, ok := raw[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	lower := strings.ToLower(key)
	for k, v := range raw {
		if strings.ToLower(k) == lower {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func replayGainDB(raw map[string]interface{}, key string) float64 {
	s := rawString(raw, key)
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "dB"))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Warnf("invalid ReplayGain value %q for %s", s, key)
		return 0
	}
	return v
}

func replayGainValue(raw map[string]interface{}, key string) float64 {
	s := strings.TrimSpace(rawString(raw, key))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Warnf("invalid ReplayGain value %q for %s", s, key)
		return 0
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func baseName(path string) string {
	i := strings.LastIndexByte(path, '/')
	return path[i+1:]
}

func extName(path string) string {
	b := baseName(path)
	i := strings.LastIndexByte(b, '.')
	if i < 0 {
		return ""
	}
	return b[i:]
}

// probeDurationSecs asks ffprobe for the container-reported duration.
// haveProbe is false when ffprobe has no duration metadata at all,
// which the caller treats as a forced strict decode.
func probeDurationSecs(path string) (secs int, haveProbe bool, err error) {
	cmd := exec.Command("ffprobe",
		"-v", "quiet",
		"-print_format", "default=noprint_wrappers=1:nokey=1",
		"-show_entries", "format=duration",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, false, fmt.Errorf("ffprobe: %w", err)
	}
	s := strings.TrimSpace(string(out))
	if s == "" || s == "N/A" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, nil
	}
	return int(math.Round(f)), true, nil
}

// decodeDurationSecs decodes path end to end through ffmpeg, counting
// frames to derive an exact duration and surfacing stderr decode
// warnings as an error count (mldr_init_audiofile's strict path).
func decodeDurationSecs(path string) (secs int, decodeErrors int, err error) {
	cmd := exec.Command("ffmpeg",
		"-v", "warning",
		"-i", path,
		"-f", "null",
		"-",
	)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, 0, err
	}
	if err := cmd.Start(); err != nil {
		return 0, 0, err
	}

	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(strings.ToLower(line), "error") {
			decodeErrors++
			log.Warnf("ffmpeg decode warning for %s: %s", path, line)
		}
	}

	durSecs, statErr := ffmpegDuration(path)
	waitErr := cmd.Wait()
	if waitErr != nil {
		decodeErrors++
	}
	if statErr != nil {
		return 0, decodeErrors, statErr
	}
	return durSecs, decodeErrors, nil
}

// ffmpegDuration re-probes via ffprobe's packet-level count when the
// container header lacks a duration; this is the same binary already
// required for decoding so it adds no new dependency.
func ffmpegDuration(path string) (int, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-count_frames",
		"-select_streams", "a:0",
		"-show_entries", "stream=nb_read_frames,sample_rate",
		"-print_format", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe frame count: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("unexpected ffprobe frame-count output for %s", path)
	}
	frames, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid frame count: %w", err)
	}
	sampleRate, err := strconv.Atoi(strings.TrimSpace(lines[1]))
	if err != nil || sampleRate == 0 {
		return 0, fmt.Errorf("invalid sample rate: %w", err)
	}
	return int(math.Round(float64(frames) / float64(sampleRate))), nil
}
