package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/provider"
)

var raceStart = time.Date(2026, 6, 7, 13, 0, 0, 0, time.UTC)

func monaco() model.Race {
	return model.Race{ID: "r1", Name: "Monaco Grand Prix", Country: "Monaco", StartTime: raceStart}
}

func TestOverlapBeatsCloserNonOverlap(t *testing.T) {
	events := []provider.OddsEvent{
		{ID: "close", CommenceTime: raceStart.Add(10 * time.Minute), HomeTeam: "Formula 1 Winner"},
		{ID: "named", CommenceTime: raceStart.Add(time.Hour), HomeTeam: "Monaco Grand Prix"},
	}
	ev, ok := BestEvent(monaco(), events)
	require.True(t, ok)
	assert.Equal(t, "named", ev.ID)
}

func TestClosestWinsWithoutOverlap(t *testing.T) {
	events := []provider.OddsEvent{
		{ID: "far", CommenceTime: raceStart.Add(48 * time.Hour)},
		{ID: "near", CommenceTime: raceStart.Add(-30 * time.Minute)},
	}
	ev, ok := BestEvent(monaco(), events)
	require.True(t, ok)
	assert.Equal(t, "near", ev.ID)
}

func TestToleranceRejectsDistantWinner(t *testing.T) {
	events := []provider.OddsEvent{
		{ID: "next-week", CommenceTime: raceStart.Add(7 * 24 * time.Hour), HomeTeam: "Monaco Grand Prix"},
	}
	_, ok := BestEvent(monaco(), events)
	assert.False(t, ok)
}

func TestToleranceBoundaryIsInclusive(t *testing.T) {
	start := raceStart.Add(72 * time.Hour)
	_, ok := Best(Target{Label: "x", Start: raceStart}, []Candidate{{Label: "y", Start: &start}}, OddsPolicy)
	assert.True(t, ok)
}

func TestTiesGoToFirstCandidate(t *testing.T) {
	a := raceStart.Add(time.Hour)
	b := raceStart.Add(-time.Hour)
	m, ok := Best(Target{Start: raceStart}, []Candidate{{Start: &a}, {Start: &b}}, OddsPolicy)
	require.True(t, ok)
	assert.Equal(t, 0, m.Index)
}

func TestUntimedCandidatesIgnored(t *testing.T) {
	_, ok := Best(Target{Label: "monaco", Start: raceStart}, []Candidate{{Label: "monaco"}}, OddsPolicy)
	assert.False(t, ok)
}

func TestLabelsOverlap(t *testing.T) {
	assert.True(t, LabelsOverlap("monaco grand prix monaco", "monaco grand prix"))
	assert.True(t, LabelsOverlap("monaco", "monaco grand prix monaco"))
	assert.False(t, LabelsOverlap("", "monaco"))
	assert.False(t, LabelsOverlap("spain", "austria"))
}

func TestBestSessionPrefersNamedMeeting(t *testing.T) {
	near := raceStart.Add(-24 * time.Hour)
	named := raceStart.Add(2 * 24 * time.Hour)
	sessions := []provider.Session{
		{Key: 1, MeetingName: "Spanish Grand Prix", CountryName: "Spain", Start: &near},
		{Key: 2, MeetingName: "Monaco Grand Prix", Location: "Monte Carlo", CountryName: "Monaco", Start: &named},
	}
	s, ok := BestSession(monaco(), sessions)
	require.True(t, ok)
	assert.Equal(t, 2, s.Key)
}

func TestBestSessionRejectsOtherSeasonWeekend(t *testing.T) {
	far := raceStart.Add(-30 * 24 * time.Hour)
	_, ok := BestSession(monaco(), []provider.Session{{Key: 1, MeetingName: "Monaco Grand Prix", Start: &far}})
	assert.False(t, ok)
}
