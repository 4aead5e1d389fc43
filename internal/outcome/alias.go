package outcome

import (
	"strings"

	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/provider"
)

// AliasMap maps normalized driver aliases to driver numbers.
type AliasMap map[string]int

// BuildAliasMap indexes each driver under their full name, last name,
// acronym and every token of the full name. Later drivers win collisions.
func BuildAliasMap(drivers []provider.Driver) AliasMap {
	m := make(AliasMap, len(drivers)*4)
	for _, d := range drivers {
		full := model.NormalizeKey(d.FullName)
		for _, alias := range []string{full, model.NormalizeKey(d.LastName), model.NormalizeKey(d.Acronym)} {
			if alias != "" {
				m[alias] = d.Number
			}
		}
		if strings.Contains(full, "_") {
			for _, tok := range strings.Split(full, "_") {
				if tok != "" {
					m[tok] = d.Number
				}
			}
		}
	}
	return m
}

// Resolve maps a selection key to a driver number. The market suffix is
// stripped, then token prefixes are tried longest first, then each token
// on its own.
func (m AliasMap) Resolve(selectionKey string) (int, bool) {
	base := model.StripSelectionSuffix(model.NormalizeKey(selectionKey))
	var tokens []string
	for _, t := range strings.Split(base, "_") {
		if t != "" {
			tokens = append(tokens, t)
		}
	}

	for size := len(tokens); size >= 1; size-- {
		if n, ok := m[strings.Join(tokens[:size], "_")]; ok {
			return n, true
		}
	}
	for _, t := range tokens {
		if n, ok := m[t]; ok {
			return n, true
		}
	}
	return 0, false
}
