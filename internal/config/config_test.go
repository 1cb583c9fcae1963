package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const validDoc = `<?xml version="1.0"?>
<WeekSchedule>
  <Sun><Zone Name="z1" Start="00:00:00"><Main Path="m.m3u"/></Zone></Sun>
  <Mon><Zone Name="z1" Start="00:00:00"><Main Path="m.m3u"/></Zone></Mon>
  <Tue><Zone Name="z1" Start="00:00:00"><Main Path="m.m3u"/></Zone></Tue>
  <Wed><Zone Name="z1" Start="00:00:00"><Main Path="m.m3u"/></Zone></Wed>
  <Thu><Zone Name="z1" Start="00:00:00"><Main Path="m.m3u"/></Zone></Thu>
  <Fri><Zone Name="z1" Start="00:00:00"><Main Path="m.m3u"/></Zone></Fri>
  <Sat>
    <Zone Name="morning" Start="00:00:00"><Main Path="m.m3u"/></Zone>
    <Zone Name="evening" Start="18:00:00">
      <Main Path="m.m3u" Shuffle="true"/>
      <Intermediate Name="jingles" Path="j.m3u" SchedIntervalMins="15" NumSchedItems="2"/>
    </Zone>
  </Sat>
</WeekSchedule>`

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "schedule.xml")
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o644))
	return p
}

func TestLoadValidWeek(t *testing.T) {
	p := writeConfig(t, validDoc)
	c := New(p)
	week, err := c.Load()
	require.NoError(t, err)
	require.Len(t, week.Days[6].Zones, 2)
	require.Equal(t, "morning", week.Days[6].Zones[0].Name)
	require.Equal(t, "evening", week.Days[6].Zones[1].Name)
	require.Equal(t, 18*time.Hour, week.Days[6].Zones[1].Start)
	require.Len(t, week.Days[6].Zones[1].Intermediates, 1)
	require.Equal(t, -1, week.Days[6].Zones[1].Intermediates[0].PendingInBurst)
}

func TestLoadIncompleteWeek(t *testing.T) {
	doc := `<WeekSchedule><Sun><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Sun></WeekSchedule>`
	p := writeConfig(t, doc)
	_, err := New(p).Load()
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, ErrIncompleteWeek, cerr.Kind)
}

func TestLoadEmptyDay(t *testing.T) {
	doc := `<WeekSchedule>
  <Sun></Sun><Mon><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Mon>
  <Tue><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Tue>
  <Wed><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Wed>
  <Thu><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Thu>
  <Fri><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Fri>
  <Sat><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Sat>
</WeekSchedule>`
	p := writeConfig(t, doc)
	_, err := New(p).Load()
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, ErrEmptyDay, cerr.Kind)
}

func TestLoadZonesUnordered(t *testing.T) {
	doc := `<WeekSchedule>
  <Sun>
    <Zone Name="a" Start="10:00:00"><Main Path="m.m3u"/></Zone>
    <Zone Name="b" Start="05:00:00"><Main Path="m.m3u"/></Zone>
  </Sun>
  <Mon><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Mon>
  <Tue><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Tue>
  <Wed><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Wed>
  <Thu><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Thu>
  <Fri><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Fri>
  <Sat><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Sat>
</WeekSchedule>`
	p := writeConfig(t, doc)
	_, err := New(p).Load()
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, ErrZonesUnordered, cerr.Kind)
}

func TestFaderInvariantRejectsZeroDurations(t *testing.T) {
	doc := `<WeekSchedule>
  <Sun><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"><Fader FadeInDurationSecs="0" FadeOutDurationSecs="0"/></Main></Zone></Sun>
  <Mon><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Mon>
  <Tue><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Tue>
  <Wed><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Wed>
  <Thu><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Thu>
  <Fri><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Fri>
  <Sat><Zone Name="z" Start="00:00:00"><Main Path="m.m3u"/></Zone></Sat>
</WeekSchedule>`
	p := writeConfig(t, doc)
	_, err := New(p).Load()
	require.Error(t, err)
}

func TestReloadIfChangedKeepsLastKnownGoodOnFailure(t *testing.T) {
	p := writeConfig(t, validDoc)
	c := New(p)
	week, err := c.Load()
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte("not xml at all <<<"), 0o644))

	status, err := c.ReloadIfChanged()
	require.Error(t, err)
	require.Equal(t, Failed, status)
	require.Same(t, week, c.Week)
}

func TestReloadIfChangedUnchanged(t *testing.T) {
	p := writeConfig(t, validDoc)
	c := New(p)
	_, err := c.Load()
	require.NoError(t, err)

	status, err := c.ReloadIfChanged()
	require.NoError(t, err)
	require.Equal(t, Unchanged, status)
}

type zoneShape struct {
	Name  string
	Start time.Duration
}

func zoneShapes(day *DaySchedule) []zoneShape {
	shapes := make([]zoneShape, len(day.Zones))
	for i, z := range day.Zones {
		shapes[i] = zoneShape{Name: z.Name, Start: z.Start}
	}
	return shapes
}

func TestLoadPreservesZoneOrderAcrossTheWeek(t *testing.T) {
	p := writeConfig(t, validDoc)
	week, err := New(p).Load()
	require.NoError(t, err)

	want := []zoneShape{{Name: "morning", Start: 0}, {Name: "evening", Start: 18 * time.Hour}}
	got := zoneShapes(week.Days[6])
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Saturday zone shape mismatch (-want +got):\n%s", diff)
	}

	for i := 0; i < 6; i++ {
		want := []zoneShape{{Name: "z1", Start: 0}}
		if diff := cmp.Diff(want, zoneShapes(week.Days[i])); diff != "" {
			t.Errorf("day %d zone shape mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	d, err := parseTimeOfDay("06:30:00")
	require.NoError(t, err)
	require.Equal(t, 6*time.Hour+30*time.Minute, d)

	_, err = parseTimeOfDay("not-a-time")
	require.Error(t, err)
}
