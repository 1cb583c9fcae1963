package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkossifidis/audioscheduler/internal/logging"
)

func TestParseDefaults(t *testing.T) {
	opts, err := Parse([]string{"schedule.xml"})
	require.NoError(t, err)
	require.Equal(t, logging.LevelWarn, opts.Level)
	require.Equal(t, uint32(0), opts.Mask)
	require.Equal(t, 9670, opts.Port)
	require.Equal(t, "schedule.xml", opts.ConfigPath)
}

func TestParseAllFlags(t *testing.T) {
	opts, err := Parse([]string{"-d", "4", "-m", "ff", "-p", "9090", "schedule.xml"})
	require.NoError(t, err)
	require.Equal(t, logging.LevelDebug, opts.Level)
	require.Equal(t, uint32(0xff), opts.Mask)
	require.Equal(t, 9090, opts.Port)
}

func TestParseRejectsOutOfRangeLevel(t *testing.T) {
	_, err := Parse([]string{"-d", "9", "schedule.xml"})
	require.Error(t, err)
}

func TestParseRejectsMissingConfigPath(t *testing.T) {
	_, err := Parse([]string{"-d", "2"})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNoConfigPath)
}

func TestParseRejectsExtraPositionalArgs(t *testing.T) {
	_, err := Parse([]string{"schedule.xml", "extra"})
	require.Error(t, err)
}
