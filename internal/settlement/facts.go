package settlement

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/albapepper/pitlane/internal/model"
)

// Result-fact keys understood by the engine besides "selection:<key>".
const (
	KeyWinningSelection  = "winning_selection_key"
	KeyWinningSelections = "winning_selection_keys"
	KeyVoidSelection     = "void_selection_key"
	KeyVoidSelections    = "void_selection_keys"
	selectionPrefix      = "selection:"
)

// Outcome is the set of winning and void selection keys of one revision.
type Outcome struct {
	Revision int
	Winning  map[string]bool
	Void     map[string]bool
}

// Empty reports whether neither set has a member.
func (o Outcome) Empty() bool {
	return len(o.Winning) == 0 && len(o.Void) == 0
}

// WinningKeys returns the winning selections sorted.
func (o Outcome) WinningKeys() []string { return sortedKeys(o.Winning) }

// VoidKeys returns the void selections sorted.
func (o Outcome) VoidKeys() []string { return sortedKeys(o.Void) }

// BetStatus decides a selection. Void takes precedence over won.
func (o Outcome) BetStatus(selectionKey string) model.BetStatus {
	switch {
	case o.Void[selectionKey]:
		return model.BetVoid
	case o.Winning[selectionKey]:
		return model.BetWon
	default:
		return model.BetLost
	}
}

// LatestOutcome reads the facts of the highest revision present. ok is
// false when there are no facts at all.
func LatestOutcome(facts []model.RaceResult) (Outcome, bool) {
	if len(facts) == 0 {
		return Outcome{}, false
	}
	latest := facts[0].Revision
	for _, f := range facts[1:] {
		if f.Revision > latest {
			latest = f.Revision
		}
	}

	out := Outcome{Revision: latest, Winning: map[string]bool{}, Void: map[string]bool{}}
	for _, f := range facts {
		if f.Revision != latest {
			continue
		}
		applyFact(out, f)
	}
	return out, true
}

func applyFact(out Outcome, f model.RaceResult) {
	key := strings.ToLower(strings.TrimSpace(f.ResultKey))
	raw := strings.TrimSpace(f.ResultValue)

	switch {
	case key == KeyWinningSelection:
		addKey(out.Winning, raw)
	case key == KeyWinningSelections:
		for _, k := range parseSelectionList(raw) {
			out.Winning[k] = true
		}
	case key == KeyVoidSelection:
		addKey(out.Void, raw)
	case key == KeyVoidSelections:
		for _, k := range parseSelectionList(raw) {
			out.Void[k] = true
		}
	case strings.HasPrefix(key, selectionPrefix):
		selection := strings.TrimSpace(f.ResultKey)[len(selectionPrefix):]
		if selection == "" {
			return
		}
		switch strings.ToLower(raw) {
		case "won", "win", "true", "1":
			out.Winning[selection] = true
		case "void":
			out.Void[selection] = true
		}
	}
}

func addKey(set map[string]bool, k string) {
	if k != "" {
		set[k] = true
	}
}

// parseSelectionList accepts a JSON array or a comma separated list.
func parseSelectionList(raw string) []string {
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		var items []any
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			var out []string
			for _, item := range items {
				if s := strings.TrimSpace(toString(item)); s != "" {
					out = append(out, s)
				}
			}
			return out
		}
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
