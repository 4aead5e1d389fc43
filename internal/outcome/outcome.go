// Package outcome decides won/lost/void for a market selection against a
// finalized race classification.
package outcome

import (
	"strings"

	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/provider"
)

// Value is the settled state of a selection.
type Value string

const (
	Won  Value = "won"
	Lost Value = "lost"
	Void Value = "void"
)

// Classification indexes a session's results for evaluation.
type Classification struct {
	byDriver    map[int]provider.SessionResult
	aliases     AliasMap
	fastestLap  int
	haveFastest bool
}

// NewClassification builds the evaluation context for one session.
func NewClassification(results []provider.SessionResult, drivers []provider.Driver, laps []provider.Lap) *Classification {
	byDriver := make(map[int]provider.SessionResult, len(results))
	for _, r := range results {
		byDriver[r.DriverNumber] = r
	}
	fastest, ok := FastestLapDriver(laps)
	return &Classification{
		byDriver:    byDriver,
		aliases:     BuildAliasMap(drivers),
		fastestLap:  fastest,
		haveFastest: ok,
	}
}

// FastestLap returns the fastest-lap driver, if one could be computed.
func (c *Classification) FastestLap() (int, bool) {
	return c.fastestLap, c.haveFastest
}

// Evaluate resolves the selection's driver and applies the market rules.
func (c *Classification) Evaluate(selectionKey string, marketType model.MarketType) Value {
	driver, ok := c.aliases.Resolve(selectionKey)
	if !ok {
		return Void
	}
	return c.EvaluateDriver(selectionKey, marketType, driver)
}

// EvaluateDriver applies the market rules for an already resolved driver:
//  1. no result row: void
//  2. did not start or disqualified: lost
//  3. no classified position: void
//  4. position against the market threshold
func (c *Classification) EvaluateDriver(selectionKey string, marketType model.MarketType, driver int) Value {
	res, ok := c.byDriver[driver]
	if !ok {
		return Void
	}
	if res.DNS || res.DSQ {
		return Lost
	}
	if res.Position == nil {
		return Void
	}
	pos := *res.Position

	switch effectiveType(selectionKey, marketType) {
	case model.MarketRaceWinner:
		return wonIf(pos == 1)
	case model.MarketPodium:
		return wonIf(pos <= 3)
	case model.MarketTop6:
		return wonIf(pos <= 6)
	case model.MarketTop10:
		return wonIf(pos <= 10)
	case model.MarketFastestLap:
		if !c.haveFastest {
			return Void
		}
		return wonIf(c.fastestLap == driver)
	default:
		return Void
	}
}

// effectiveType trusts the stored market type when it is known, then the
// selection key suffix.
func effectiveType(selectionKey string, marketType model.MarketType) model.MarketType {
	switch model.MarketType(strings.ToLower(string(marketType))) {
	case model.MarketRaceWinner, model.MarketPodium, model.MarketTop6, model.MarketTop10, model.MarketFastestLap:
		return model.MarketType(strings.ToLower(string(marketType)))
	}
	if t, ok := model.MarketTypeFromSelectionKey(selectionKey); ok {
		return t
	}
	return ""
}

func wonIf(ok bool) Value {
	if ok {
		return Won
	}
	return Lost
}

// FastestLapDriver returns the driver of the minimum positive lap time.
func FastestLapDriver(laps []provider.Lap) (int, bool) {
	best := 0.0
	driver := 0
	found := false
	for _, l := range laps {
		if l.Duration == nil || *l.Duration <= 0 {
			continue
		}
		if !found || *l.Duration < best {
			best = *l.Duration
			driver = l.DriverNumber
			found = true
		}
	}
	return driver, found
}
