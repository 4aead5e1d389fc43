package model

import (
	"regexp"
	"strings"
)

// MarketType names the kind of proposition a market settles on.
type MarketType string

const (
	MarketRaceWinner MarketType = "race_winner"
	MarketPodium     MarketType = "podium_finish"
	MarketTop6       MarketType = "top_6_finish"
	MarketTop10      MarketType = "top_10_finish"
	MarketFastestLap MarketType = "fastest_lap"
)

// SelectionSuffix is the selection-key suffix for a market type.
func (t MarketType) SelectionSuffix() string {
	switch t {
	case MarketPodium:
		return "_podium"
	case MarketTop6:
		return "_top6"
	case MarketTop10:
		return "_top10"
	case MarketFastestLap:
		return "_fastest_lap"
	default:
		return "_win"
	}
}

// MarketTypeForProviderKey maps a provider market key (e.g. "outrights",
// "podium_finish") onto a market type by substring.
func MarketTypeForProviderKey(key string) MarketType {
	k := strings.ToLower(key)
	switch {
	case strings.Contains(k, "podium"):
		return MarketPodium
	case strings.Contains(k, "fastest"):
		return MarketFastestLap
	case strings.Contains(k, "top_6"), strings.Contains(k, "top6"):
		return MarketTop6
	case strings.Contains(k, "top_10"), strings.Contains(k, "top10"):
		return MarketTop10
	default:
		return MarketRaceWinner
	}
}

// selectionSuffixes in stripping order.
var selectionSuffixes = []string{"_win", "_podium", "_top6", "_top_6", "_top10", "_top_10", "_fastest_lap"}

// StripSelectionSuffix removes market suffixes from a normalized key.
func StripSelectionSuffix(key string) string {
	for _, s := range selectionSuffixes {
		key = strings.TrimSuffix(key, s)
	}
	return key
}

// MarketTypeFromSelectionKey infers the market type from a key suffix.
func MarketTypeFromSelectionKey(key string) (MarketType, bool) {
	k := strings.ToLower(key)
	switch {
	case strings.HasSuffix(k, "_fastest_lap"):
		return MarketFastestLap, true
	case strings.HasSuffix(k, "_win"):
		return MarketRaceWinner, true
	case strings.HasSuffix(k, "_podium"):
		return MarketPodium, true
	case strings.HasSuffix(k, "_top6"), strings.HasSuffix(k, "_top_6"):
		return MarketTop6, true
	case strings.HasSuffix(k, "_top10"), strings.HasSuffix(k, "_top_10"):
		return MarketTop10, true
	}
	return "", false
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeKey lowercases s and joins alphanumeric runs with underscores.
// "Max Verstappen" becomes "max_verstappen".
func NormalizeKey(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// NormalizeLabel lowercases s and joins alphanumeric runs with single
// spaces, for fuzzy label comparison.
func NormalizeLabel(s string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(s), " "))
}

// NormalizeSlug lowercases s and joins alphanumeric runs with hyphens.
func NormalizeSlug(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// SelectionKey builds the stable selection key for a participant name.
func SelectionKey(name string, t MarketType) string {
	return NormalizeKey(name) + t.SelectionSuffix()
}
