package league

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/store/memstore"
)

var joined = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

func member(user, points string, day int) model.LeagueMember {
	return model.LeagueMember{
		LeagueID:     "league-1",
		UserID:       user,
		Role:         "member",
		SeasonPoints: decimal.RequireFromString(points),
		JoinedAt:     joined.AddDate(0, 0, day),
	}
}

func TestStandingsShareRanksOnTies(t *testing.T) {
	st := memstore.New(nil)
	st.AddMember(member("carol", "12.5", 3))
	st.AddMember(member("alice", "40", 1))
	st.AddMember(member("bob", "12.5", 2))
	st.AddMember(member("dave", "-3.25", 0))

	rows, err := NewService(st).Standings(context.Background(), "league-1", "dave")
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "alice", rows[0].UserID)
	assert.Equal(t, 1, rows[0].Rank)
	assert.True(t, rows[0].PointsFromLeader.IsZero())

	assert.Equal(t, "bob", rows[1].UserID)
	assert.Equal(t, 2, rows[1].Rank)
	assert.Equal(t, "carol", rows[2].UserID)
	assert.Equal(t, 2, rows[2].Rank)
	assert.Equal(t, "27.50", rows[2].PointsFromLeader.StringFixed(2))

	assert.Equal(t, 4, rows[3].Rank)
	assert.Equal(t, "43.25", rows[3].PointsFromLeader.StringFixed(2))
}

func TestStandingsRequireMembership(t *testing.T) {
	st := memstore.New(nil)
	st.AddMember(member("alice", "10", 0))

	_, err := NewService(st).Standings(context.Background(), "league-1", "mallory")
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, Rank(nil))
}
