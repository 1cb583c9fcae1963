// Package metaserver exposes the player's current/next track as a
// small JSON document over HTTP, grounded on meta_handler.c: a
// per-second-bucketed response cache that only re-reads the player's
// full track info when the current track is expected to change
// (next_update = last_update + remaining-of-current + 1s), so a poller
// hitting this endpoint every second doesn't force a metadata snapshot
// on every request.
package metaserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"

	"github.com/nkossifidis/audioscheduler/internal/logging"
	"github.com/nkossifidis/audioscheduler/internal/media"
	"github.com/nkossifidis/audioscheduler/internal/metrics"
)

var log = logging.For(logging.Meta)

const nullPlaceholder = "(null)"

// EndpointError is the typed error surface for server lifecycle
// failures (listen, serve, shutdown).
type EndpointError struct {
	Op  string
	Err error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("metaserver: %s: %v", e.Op, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// StateProvider is the slice of Player the endpoint needs: the current
// and next track snapshots plus elapsed playback time, all safe to
// call concurrently.
type StateProvider interface {
	CurrentSnapshot() *media.AudioFileInfo
	NextSnapshot() *media.AudioFileInfo
	Elapsed() int
}

// Server serves the now-playing JSON document and owns the listening
// socket's lifecycle.
type Server struct {
	provider StateProvider
	router   chi.Router

	mu         sync.Mutex
	lastUpdate time.Time
	nextUpdate time.Time
	cur, next  *media.AudioFileInfo
	cached     []byte

	httpServer *http.Server
}

// New builds a Server around a StateProvider (typically a
// *player.Player).
func New(provider StateProvider) *Server {
	s := &Server{provider: provider}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/*", s.handleMeta)
	s.router = r

	return s
}

// Router exposes the underlying chi.Router so callers can mount
// additional endpoints before serving. New already mounts Prometheus's
// /metrics handler.
func (s *Server) Router() chi.Router { return s.router }

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	body := s.refresh(time.Now())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	metrics.IncMetaRequest(http.StatusOK)
}

// refresh mirrors mh_update_response: the formatted body is rebuilt at
// most once per second (to keep Elapsed current), but the underlying
// track snapshots are only re-fetched once the current track is
// expected to have changed.
func (s *Server) refresh(now time.Time) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && now.Unix() == s.lastUpdate.Unix() {
		return s.cached
	}

	elapsed := s.provider.Elapsed()

	if s.cached == nil || now.After(s.nextUpdate) {
		s.cur = s.provider.CurrentSnapshot()
		s.next = s.provider.NextSnapshot()

		remaining := 0
		if s.cur != nil {
			remaining = s.cur.DurationSecs - elapsed
		}
		s.nextUpdate = now.Add(time.Duration(remaining+1) * time.Second)
	}

	s.cached = []byte(formatResponse(s.cur, s.next, elapsed))
	s.lastUpdate = now
	return s.cached
}

// ListenAndServe binds addr with the raw socket options
// meta_handler.c's mh_create_server_socket applies and serves until
// Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := listen(addr)
	if err != nil {
		return &EndpointError{Op: "listen", Err: err}
	}

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	log.Infof("listening on %s", addr)
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return &EndpointError{Op: "serve", Err: err}
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return &EndpointError{Op: "shutdown", Err: err}
	}
	return nil
}

// listen builds a TCP listener with SO_REUSEADDR on the listening
// socket and, per accepted connection, TCP_NODELAY/TCP_QUICKACK/
// SO_LINGER(5s) — we only ever write one small response and never read
// the request body, so we skip Nagle's buffering, skip delayed ACKs,
// and let close wait at most 5 seconds for unsent data.
func listen(addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tunedListener{Listener: ln}, nil
}

type tunedListener struct {
	net.Listener
}

func (l *tunedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return conn, nil
	}

	_ = tc.SetNoDelay(true)
	_ = tc.SetLinger(5)

	if rc, err := tc.SyscallConn(); err == nil {
		_ = rc.Control(func(fd uintptr) {
			_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
		})
	}

	return tc, nil
}

func formatResponse(cur, next *media.AudioFileInfo, elapsed int) string {
	curView := newSongView(cur)
	nextView := newSongView(next)

	return fmt.Sprintf(
		`{"current_song":{"Artist":"%s","Album":"%s","Title":"%s","Path":"%s","Duration":"%d","Elapsed":"%d","Zone":"%s","MusicBrainz Album Id":"%s","MusicBrainz Release Track Id":"%s"},`+
			`"next_song":{"Artist":"%s","Album":"%s","Title":"%s","Path":"%s","Duration":"%d","Zone":"%s","MusicBrainz Album Id":"%s","MusicBrainz Release Track Id":"%s"}}`,
		curView.artist, curView.album, curView.title, curView.path, curView.duration, elapsed, curView.zone, curView.albumID, curView.trackID,
		nextView.artist, nextView.album, nextView.title, nextView.path, nextView.duration, nextView.zone, nextView.albumID, nextView.trackID,
	)
}

type songView struct {
	artist, album, title, path string
	albumID, trackID, zone     string
	duration                   int
}

func newSongView(info *media.AudioFileInfo) songView {
	if info == nil {
		return songView{
			artist: nullPlaceholder, album: nullPlaceholder, title: nullPlaceholder,
			path: nullPlaceholder, albumID: nullPlaceholder, trackID: nullPlaceholder,
			zone: nullPlaceholder,
		}
	}
	return songView{
		artist:   escapeText(info.Artist),
		album:    escapeText(info.Album),
		title:    escapeText(info.Title),
		path:     escapePath(info.FilePath),
		albumID:  orNull(info.AlbumID),
		trackID:  orNull(info.ReleaseTrackID),
		zone:     orNull(info.ZoneName),
		duration: info.DurationSecs,
	}
}

func orNull(s string) string {
	if s == "" {
		return nullPlaceholder
	}
	return s
}

// escapeText handles artist/album/title: quotes and backslashes are
// valid filename characters we'd otherwise need to backslash-escape,
// but for display text we can just substitute a visually similar
// character and avoid the escaping dance entirely.
func escapeText(s string) string {
	if s == "" {
		return nullPlaceholder
	}
	s = strings.ReplaceAll(s, `"`, `'`)
	s = strings.ReplaceAll(s, `\`, `/`)
	return s
}

// escapePath backslash-escapes quotes and backslashes rather than
// substituting them, since the path must remain usable as a real
// filesystem path once a client parses the JSON.
func escapePath(s string) string {
	if s == "" {
		return nullPlaceholder
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\\' || r == '"' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
