// Package league computes league standings from member season points.
package league

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/albapepper/pitlane/internal/betting"
	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/store"
)

// Standing is one row of a league table.
type Standing struct {
	Rank             int             `json:"rank"`
	UserID           string          `json:"user_id"`
	Role             string          `json:"role"`
	SeasonPoints     decimal.Decimal `json:"season_points"`
	PointsFromLeader decimal.Decimal `json:"points_from_leader"`
}

// Service reads league tables.
type Service struct {
	store store.Store
}

// NewService creates a standings service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Standings returns the league table. Only members may read it.
func (s *Service) Standings(ctx context.Context, leagueID, viewerID string) ([]Standing, error) {
	if _, err := betting.RequireMembership(ctx, s.store, leagueID, viewerID); err != nil {
		return nil, err
	}
	members, err := s.store.LeagueMembers(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("load members of league %s: %w", leagueID, err)
	}
	return Rank(members), nil
}

// Rank turns members already ordered by points (desc) and join time into
// standings. Equal points share the rank of the first member holding them.
func Rank(members []model.LeagueMember) []Standing {
	out := make([]Standing, 0, len(members))
	if len(members) == 0 {
		return out
	}
	leader := members[0].SeasonPoints
	for i, m := range members {
		rank := i + 1
		if i > 0 && members[i-1].SeasonPoints.Equal(m.SeasonPoints) {
			rank = out[i-1].Rank
		}
		out = append(out, Standing{
			Rank:             rank,
			UserID:           m.UserID,
			Role:             m.Role,
			SeasonPoints:     m.SeasonPoints,
			PointsFromLeader: model.Round2(leader.Sub(m.SeasonPoints)),
		})
	}
	return out
}
