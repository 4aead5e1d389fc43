package provider

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/albapepper/pitlane/internal/model"
)

var grandPrixRe = regexp.MustCompile(`(?i)grand prix`)

// StripGrandPrix removes every "grand prix" from name, case-insensitively.
func StripGrandPrix(name string) string {
	return strings.TrimSpace(grandPrixRe.ReplaceAllString(name, ""))
}

// RaceSlug builds "<season>-<name>-grand-prix" from a race name, falling
// back to the round number when the name is only "Grand Prix".
func RaceSlug(season, round int, name string) string {
	base := model.NormalizeSlug(StripGrandPrix(name))
	if base == "" {
		base = fmt.Sprintf("round-%d", round)
	}
	return fmt.Sprintf("%d-%s-grand-prix", season, base)
}
