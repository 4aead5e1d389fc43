package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/pitlane/internal/model"
)

func fact(key, value string, rev int) model.RaceResult {
	return model.RaceResult{RaceID: "r", ResultKey: key, ResultValue: value, Revision: rev}
}

func TestLatestOutcomeUsesMaxRevisionOnly(t *testing.T) {
	out, ok := LatestOutcome([]model.RaceResult{
		fact("selection:norris_win", "won", 1),
		fact("selection:verstappen_win", "won", 2),
		fact("selection:piastri_win", "void", 2),
	})
	require.True(t, ok)
	assert.Equal(t, 2, out.Revision)
	assert.Equal(t, []string{"verstappen_win"}, out.WinningKeys())
	assert.Equal(t, []string{"piastri_win"}, out.VoidKeys())
}

func TestLatestOutcomeEncodings(t *testing.T) {
	out, ok := LatestOutcome([]model.RaceResult{
		fact("WINNING_SELECTION_KEY", " a_win ", 1),
		fact("winning_selection_keys", `["b_win", " c_win ", ""]`, 1),
		fact("void_selection_key", "d_win", 1),
		fact("void_selection_keys", "e_win, f_win,,", 1),
		fact("selection:g_win", "TRUE", 1),
		fact("selection:h_win", "1", 1),
		fact("selection:i_win", "win", 1),
		fact("selection:j_win", "lost", 1),
		fact("selection:", "won", 1),
	})
	require.True(t, ok)
	assert.Equal(t, []string{"a_win", "b_win", "c_win", "g_win", "h_win", "i_win"}, out.WinningKeys())
	assert.Equal(t, []string{"d_win", "e_win", "f_win"}, out.VoidKeys())
}

func TestParseSelectionListFallsBackToCommas(t *testing.T) {
	assert.Equal(t, []string{"[a_win", "b_win]"}, parseSelectionList("[a_win, b_win]"))
	assert.Equal(t, []string{"a_win", "b_win"}, parseSelectionList(`["a_win","b_win"]`))
	assert.Nil(t, parseSelectionList(""))
}

func TestLatestOutcomeNoFacts(t *testing.T) {
	_, ok := LatestOutcome(nil)
	assert.False(t, ok)

	out, ok := LatestOutcome([]model.RaceResult{fact("selection:a_win", "lost", 1)})
	require.True(t, ok)
	assert.True(t, out.Empty())
}

func TestBetStatusVoidBeatsWon(t *testing.T) {
	out := Outcome{Winning: map[string]bool{"a": true}, Void: map[string]bool{"a": true}}
	assert.Equal(t, model.BetVoid, out.BetStatus("a"))
	assert.Equal(t, model.BetLost, out.BetStatus("b"))
}
