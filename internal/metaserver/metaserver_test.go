package metaserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkossifidis/audioscheduler/internal/media"
)

type stubProvider struct {
	cur, next *media.AudioFileInfo
	elapsed   int
}

func (p *stubProvider) CurrentSnapshot() *media.AudioFileInfo { return p.cur }
func (p *stubProvider) NextSnapshot() *media.AudioFileInfo    { return p.next }
func (p *stubProvider) Elapsed() int                          { return p.elapsed }

func TestHandleMetaReturnsCurrentAndNextSong(t *testing.T) {
	provider := &stubProvider{
		cur: &media.AudioFileInfo{
			Artist: "Artist A", Album: "Album A", Title: "Title A",
			FilePath: "/music/a.flac", DurationSecs: 180,
			ZoneName: "daytime", AlbumID: "album-id", ReleaseTrackID: "track-id",
		},
		next: &media.AudioFileInfo{
			Artist: "Artist B", Title: "Title B", FilePath: "/music/b.flac", DurationSecs: 200,
		},
		elapsed: 42,
	}
	s := New(provider)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Artist A", body["current_song"]["Artist"])
	require.Equal(t, "180", body["current_song"]["Duration"])
	require.Equal(t, "42", body["current_song"]["Elapsed"])
	require.Equal(t, "(null)", body["next_song"]["MusicBrainz Album Id"])
	require.Equal(t, "Artist B", body["next_song"]["Artist"])
}

func TestHandleMetaNilTracksRenderNull(t *testing.T) {
	s := New(&stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "(null)", body["current_song"]["Artist"])
	require.Equal(t, "(null)", body["current_song"]["Path"])
}

func TestRefreshReusesCachedResponseWithinSameSecond(t *testing.T) {
	provider := &stubProvider{cur: &media.AudioFileInfo{Artist: "X", DurationSecs: 10}}
	s := New(provider)

	now := time.Now()
	first := s.refresh(now)
	provider.elapsed = 5
	second := s.refresh(now)

	require.Equal(t, first, second, "same-second calls must return the cached bytes without re-reading elapsed")
}

func TestRefreshPicksUpElapsedOnNextSecond(t *testing.T) {
	provider := &stubProvider{cur: &media.AudioFileInfo{Artist: "X", DurationSecs: 3600}}
	s := New(provider)

	now := time.Now()
	first := s.refresh(now)

	provider.elapsed = 7
	second := s.refresh(now.Add(time.Second))

	require.NotEqual(t, first, second)

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(second, &body))
	require.Equal(t, "7", body["current_song"]["Elapsed"])
}

func TestRefreshRefetchesSnapshotsOnlyAfterNextUpdate(t *testing.T) {
	provider := &stubProvider{
		cur:     &media.AudioFileInfo{Artist: "First", DurationSecs: 1},
		elapsed: 0,
	}
	s := New(provider)

	now := time.Now()
	s.refresh(now)

	// Track swaps underneath the provider, but next_update hasn't
	// elapsed yet (duration(1) - elapsed(0) + 1 = 2s out), so the very
	// next call (still within that window) must keep serving "First".
	provider.cur = &media.AudioFileInfo{Artist: "Second", DurationSecs: 5}
	stillCached := s.refresh(now.Add(time.Second))

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(stillCached, &body))
	require.Equal(t, "First", body["current_song"]["Artist"])

	afterWindow := s.refresh(now.Add(3 * time.Second))
	require.NoError(t, json.Unmarshal(afterWindow, &body))
	require.Equal(t, "Second", body["current_song"]["Artist"])
}

func TestEscapeTextSubstitutesQuotesAndBackslashes(t *testing.T) {
	require.Equal(t, `it's ok / fine`, escapeText(`it"s ok \ fine`))
	require.Equal(t, "(null)", escapeText(""))
}

func TestEscapePathBackslashEscapesQuotesAndBackslashes(t *testing.T) {
	require.Equal(t, "C:\\\\music\\\"weird\\\".mp3", escapePath(`C:\music"weird".mp3`))
	require.Equal(t, "(null)", escapePath(""))
}
