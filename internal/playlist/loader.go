package playlist

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	mrand "math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/nkossifidis/audioscheduler/internal/logging"
)

var log = logging.For(logging.Pls)

// PlaylistError is the typed error surface for the playlist loader.
type PlaylistError struct {
	Kind string // "unknown_extension" | "unreadable" | "empty"
	Path string
	Err  error
}

func (e *PlaylistError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("playlist %s (%s): %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("playlist %s (%s)", e.Kind, e.Path)
}

func (e *PlaylistError) Unwrap() error { return e.Err }

// Process fills pl.Items from pl.SourcePath, detecting the format
// (.m3u/.pls) by extension. Unreadable entries are skipped with a
// warning, not treated as fatal; an empty result is fatal. Shuffle is
// applied last, if requested.
func Process(pl *Playlist) error {
	f, err := os.Open(pl.SourcePath)
	if err != nil {
		return &PlaylistError{Kind: "unreadable", Path: pl.SourcePath, Err: err}
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return &PlaylistError{Kind: "unreadable", Path: pl.SourcePath, Err: err}
	}

	var raw []string
	switch strings.ToLower(filepath.Ext(pl.SourcePath)) {
	case ".m3u", ".m3u8":
		raw, err = parseM3U(f)
	case ".pls":
		raw, err = parsePLS(f)
	default:
		return &PlaylistError{Kind: "unknown_extension", Path: pl.SourcePath}
	}
	if err != nil {
		return &PlaylistError{Kind: "unreadable", Path: pl.SourcePath, Err: err}
	}

	base := filepath.Dir(pl.SourcePath)
	items := make([]string, 0, len(raw))
	for _, entry := range raw {
		p := entry
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		if !isReadableFile(p) {
			log.Warnf("skipping unreadable playlist entry: %s", p)
			continue
		}
		items = append(items, p)
	}

	if len(items) == 0 {
		return &PlaylistError{Kind: "empty", Path: pl.SourcePath, Err: fmt.Errorf("no readable entries")}
	}

	pl.Items = items
	pl.Cursor = 0
	pl.LastMtime = fi.ModTime()

	if pl.Shuffle {
		Shuffle(pl.Items)
	}
	return nil
}

// ReloadIfChanged re-parses the playlist file if its mtime has advanced,
// discarding any cursor state (spec.md §4.2).
func ReloadIfChanged(pl *Playlist) error {
	fi, err := os.Stat(pl.SourcePath)
	if err != nil {
		return &PlaylistError{Kind: "unreadable", Path: pl.SourcePath, Err: err}
	}
	if !fi.ModTime().After(pl.LastMtime) {
		return nil
	}
	return Process(pl)
}

func parseM3U(f *os.File) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func parsePLS(f *os.File) ([]string, error) {
	entries := map[int]string{}
	maxIdx := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "File") {
			continue
		}
		line = strings.TrimPrefix(line, "File")
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(line[:eq], "%d", &idx); err != nil {
			continue
		}
		entries[idx] = line[eq+1:]
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for i := 1; i <= maxIdx; i++ {
		if v, ok := entries[i]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func isReadableFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Shuffle performs an in-place Fisher-Yates (Durstenfeld) shuffle using
// a CSPRNG (crypto/rand, which goes through the platform getrandom/
// /dev/urandom path), falling back to a seeded math/rand source only if
// the CSPRNG is unavailable — mirroring the getrandom -> /dev/urandom ->
// seeded-PRNG fallback chain in spec.md §4.2.
func Shuffle(items []string) {
	n := len(items)
	for i := n - 1; i > 0; i-- {
		j, err := cryptoRandInt(i + 1)
		if err != nil {
			j = fallbackRand().Intn(i + 1)
		}
		items[i], items[j] = items[j], items[i]
	}
}

func cryptoRandInt(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	max := big.NewInt(int64(n))
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func fallbackRand() *mrand.Rand {
	var seed int64
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = 1
	}
	return mrand.New(mrand.NewSource(seed))
}
