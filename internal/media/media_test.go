package media

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkossifidis/audioscheduler/internal/playlist"
)

func TestSnapshotIsIndependentCopy(t *testing.T) {
	orig := &AudioFileInfo{
		FilePath: "/music/a.mp3",
		Artist:   "Artist",
		Fader:    &playlist.Fader{FadeInSecs: 2},
	}

	snap := orig.Snapshot()
	require.True(t, snap.IsCopy)
	require.Equal(t, orig.FilePath, snap.FilePath)

	snap.Artist = "Changed"
	snap.Fader.FadeInSecs = 99
	require.Equal(t, "Artist", orig.Artist)
	require.Equal(t, 2.0, orig.Fader.FadeInSecs)
}

func TestSnapshotNilFader(t *testing.T) {
	orig := &AudioFileInfo{FilePath: "/music/a.mp3"}
	snap := orig.Snapshot()
	require.Nil(t, snap.Fader)
}

func TestSnapshotNil(t *testing.T) {
	var info *AudioFileInfo
	require.Nil(t, info.Snapshot())
}

func TestRawStringCaseInsensitive(t *testing.T) {
	raw := map[string]interface{}{"replaygain_track_gain": "-3.5 dB"}
	require.Equal(t, "-3.5 dB", rawString(raw, "REPLAYGAIN_TRACK_GAIN"))
}

func TestReplayGainDBParsesSuffix(t *testing.T) {
	raw := map[string]interface{}{"REPLAYGAIN_TRACK_GAIN": "-6.20 dB"}
	require.InDelta(t, -6.20, replayGainDB(raw, "REPLAYGAIN_TRACK_GAIN"), 0.001)
}

func TestReplayGainDBMissingIsZero(t *testing.T) {
	raw := map[string]interface{}{}
	require.Equal(t, 0.0, replayGainDB(raw, "REPLAYGAIN_TRACK_GAIN"))
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "b", firstNonEmpty("", "b", "c"))
	require.Equal(t, "", firstNonEmpty("", ""))
}
