// Package matcher pairs internal races with provider events and sessions
// by start-time proximity, biased toward candidates whose descriptive
// label overlaps the race's.
package matcher

import (
	"strings"
	"time"

	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/provider"
)

// Policy tunes scoring for one kind of candidate.
type Policy struct {
	// OverlapBonus is subtracted from the time distance when labels overlap.
	OverlapBonus time.Duration
	// Tolerance rejects the winner when its raw time distance exceeds it.
	// Zero disables the check.
	Tolerance time.Duration
}

var (
	// OddsPolicy pairs races with bookmaker events.
	OddsPolicy = Policy{OverlapBonus: 6 * time.Hour, Tolerance: 72 * time.Hour}
	// SessionPolicy pairs races with result sessions. The bonus outweighs
	// any plausible time distance, so a name match always wins.
	SessionPolicy = Policy{OverlapBonus: 30 * 24 * time.Hour, Tolerance: 7 * 24 * time.Hour}
)

// Target is the race side of a match.
type Target struct {
	Label string
	Start time.Time
}

// Candidate is one provider-side option.
type Candidate struct {
	Label string
	Start *time.Time
}

// Match is the chosen candidate.
type Match struct {
	Index    int
	Score    int64
	Distance time.Duration
	Overlap  bool
}

// Best returns the minimum-score candidate, ties going to the earlier
// index. ok is false when there are no timed candidates or the winner is
// farther than the policy tolerance.
func Best(target Target, candidates []Candidate, p Policy) (Match, bool) {
	targetLabel := model.NormalizeLabel(target.Label)
	best := Match{Index: -1}

	for i, c := range candidates {
		if c.Start == nil {
			continue
		}
		dist := absDuration(c.Start.Sub(target.Start))
		overlap := LabelsOverlap(targetLabel, model.NormalizeLabel(c.Label))
		score := dist.Milliseconds()
		if overlap {
			score -= p.OverlapBonus.Milliseconds()
		}
		if best.Index < 0 || score < best.Score {
			best = Match{Index: i, Score: score, Distance: dist, Overlap: overlap}
		}
	}

	if best.Index < 0 {
		return Match{}, false
	}
	if p.Tolerance > 0 && best.Distance > p.Tolerance {
		return Match{}, false
	}
	return best, true
}

// LabelsOverlap reports whether either normalized label contains the
// other. Empty labels never overlap.
func LabelsOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// RaceOddsLabel is the race label compared against bookmaker events.
func RaceOddsLabel(r model.Race) string {
	return r.Name + " " + r.Country
}

// EventLabel is the descriptive label of a bookmaker event.
func EventLabel(e provider.OddsEvent) string {
	return e.HomeTeam + " " + e.AwayTeam
}

// RaceSessionLabel is the race label compared against result sessions.
func RaceSessionLabel(r model.Race) string {
	return provider.StripGrandPrix(r.Name)
}

// SessionLabel is the descriptive label of a result session.
func SessionLabel(s provider.Session) string {
	return s.MeetingName + " " + s.Location + " " + s.CountryName
}

// BestEvent picks the bookmaker event for a race.
func BestEvent(r model.Race, events []provider.OddsEvent) (provider.OddsEvent, bool) {
	cands := make([]Candidate, len(events))
	for i := range events {
		start := events[i].CommenceTime
		cands[i] = Candidate{Label: EventLabel(events[i]), Start: &start}
	}
	m, ok := Best(Target{Label: RaceOddsLabel(r), Start: r.StartTime}, cands, OddsPolicy)
	if !ok {
		return provider.OddsEvent{}, false
	}
	return events[m.Index], true
}

// BestSession picks the result session for a race.
func BestSession(r model.Race, sessions []provider.Session) (provider.Session, bool) {
	cands := make([]Candidate, len(sessions))
	for i, s := range sessions {
		cands[i] = Candidate{Label: SessionLabel(s), Start: s.Start}
	}
	m, ok := Best(Target{Label: RaceSessionLabel(r), Start: r.StartTime}, cands, SessionPolicy)
	if !ok {
		return provider.Session{}, false
	}
	return sessions[m.Index], true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
