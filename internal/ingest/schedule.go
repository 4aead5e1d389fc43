package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/matcher"
	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/provider"
	"github.com/albapepper/pitlane/internal/store"
)

// ScheduleAndOdds upserts the season's races and refreshes the markets of
// every race that is still open or locked.
func (s *Service) ScheduleAndOdds(ctx context.Context, season int) (*ScheduleResult, error) {
	start := time.Now()
	result := &ScheduleResult{Season: season, OddsEnabled: s.odds != nil}

	races, providerName, err := s.fetchSchedule(ctx, season, result)
	if err != nil {
		return result, err
	}
	result.ScheduleProvider = providerName

	now := s.clock.Now()
	for _, r := range races {
		if err := s.store.UpsertRace(ctx, toRow(r, now), now); err != nil {
			return result, fmt.Errorf("upsert race %d/%d: %w", r.Season, r.Round, err)
		}
		result.RacesUpserted++
	}
	s.logger.Info("Schedule ingested", "season", season, "provider", providerName, "races", result.RacesUpserted)

	if s.odds == nil {
		s.logger.Info("Odds provider not configured, skipping markets")
		return result, nil
	}
	if err := s.ingestOdds(ctx, season, result); err != nil {
		return result, err
	}

	s.logger.Info("Schedule and odds run complete", "summary", result.Summary(), "duration", time.Since(start))
	return result, nil
}

// fetchSchedule tries the primary provider and falls back when it errors or
// returns nothing.
func (s *Service) fetchSchedule(ctx context.Context, season int, result *ScheduleResult) ([]provider.ScheduledRace, string, error) {
	races, err := s.schedule.Season(ctx, season)
	if err == nil && len(races) > 0 {
		return races, s.schedule.Name(), nil
	}
	if err != nil {
		s.logger.Warn("Primary schedule provider failed", "provider", s.schedule.Name(), "error", err)
		result.AddErrorf("%s: %v", s.schedule.Name(), err)
	}
	if s.fallback == nil {
		if err != nil {
			return nil, "", apperr.Upstream(err, "schedule provider %s failed", s.schedule.Name())
		}
		return nil, s.schedule.Name(), nil
	}

	fallbackRaces, ferr := s.fallback.Season(ctx, season)
	if ferr != nil {
		result.AddErrorf("%s: %v", s.fallback.Name(), ferr)
		if err != nil {
			return nil, "", apperr.Upstream(ferr, "all schedule providers failed for season %d", season)
		}
		return nil, s.schedule.Name(), nil
	}
	s.logger.Info("Using fallback schedule provider", "provider", s.fallback.Name(), "races", len(fallbackRaces))
	return fallbackRaces, s.fallback.Name(), nil
}

func toRow(r provider.ScheduledRace, now time.Time) model.RaceRow {
	lock := r.LockTime()
	return model.RaceRow{
		Season:          r.Season,
		Round:           r.Round,
		Slug:            r.Slug,
		Name:            r.Name,
		Country:         r.Country,
		Circuit:         r.Circuit,
		VenueName:       r.VenueName,
		City:            r.City,
		Description:     r.Description,
		ImageURL:        r.ImageURL,
		BannerURL:       r.BannerURL,
		PosterURL:       r.PosterURL,
		HighlightsURL:   r.HighlightsURL,
		SportsDBEventID: r.SportsDBEventID,
		StartTime:       r.StartTime,
		LockTime:        lock,
		Status:          model.ScheduleStatus(lock, now),
	}
}

func (s *Service) ingestOdds(ctx context.Context, season int, result *ScheduleResult) error {
	races, err := s.store.RacesBySeason(ctx, season)
	if err != nil {
		return fmt.Errorf("load season %d races: %w", season, err)
	}

	var open []model.Race
	for _, r := range races {
		if r.Status == model.RaceScheduled || r.Status == model.RaceLocked {
			open = append(open, r)
		}
	}
	result.RacesConsidered = len(open)
	if len(open) == 0 {
		return nil
	}

	events, err := s.odds.Events(ctx)
	if err != nil {
		s.logger.Warn("Odds events fetch failed", "error", err)
		result.AddErrorf("%s events: %v", s.odds.Name(), err)
		return nil
	}

	now := s.clock.Now()
	for _, race := range open {
		match := RaceMatch{RaceID: race.ID, RaceName: race.Name}

		event, ok := matcher.BestEvent(race, events)
		if !ok {
			match.Skipped = "no matching odds event"
			result.Matches = append(result.Matches, match)
			continue
		}
		match.EventID = event.ID

		quotes, err := s.odds.EventQuotes(ctx, event.ID, now)
		if err != nil {
			match.Skipped = "odds fetch failed: " + err.Error()
			result.AddErrorf("race %s event %s: %v", race.ID, event.ID, err)
			result.Matches = append(result.Matches, match)
			continue
		}
		if len(quotes) == 0 {
			match.Skipped = "no priced selections"
			result.Matches = append(result.Matches, match)
			continue
		}
		if len(quotes) > MaxMarketsPerRace {
			quotes = quotes[:MaxMarketsPerRace]
		}

		deactivated, err := s.replaceMarkets(ctx, race.ID, quotes)
		if err != nil {
			return err
		}
		match.Markets = len(quotes)
		match.Deactivate = deactivated
		result.Matches = append(result.Matches, match)
		result.RacesPriced++
		result.MarketRows += len(quotes)

		s.logger.Debug("Markets refreshed", "race_id", race.ID, "event_id", event.ID, "markets", len(quotes))
	}
	return nil
}

// replaceMarkets deactivates the provider's current generation for a race
// and writes the fresh one in a single transaction.
func (s *Service) replaceMarkets(ctx context.Context, raceID string, quotes []provider.MarketQuote) (int, error) {
	var deactivated int
	err := s.store.InTx(ctx, func(tx store.Store) error {
		n, err := tx.DeactivateMarkets(ctx, raceID, s.odds.Name())
		if err != nil {
			return fmt.Errorf("deactivate markets for race %s: %w", raceID, err)
		}
		deactivated = n
		for _, q := range quotes {
			m := model.Market{
				RaceID:           raceID,
				Provider:         q.Provider,
				ProviderMarketID: q.ProviderMarketID,
				MarketType:       q.MarketType,
				SelectionKey:     q.SelectionKey,
				SelectionLabel:   q.SelectionLabel,
				DecimalOdds:      model.Round4(q.DecimalOdds),
				IsActive:         true,
				FetchedAt:        q.FetchedAt,
			}
			if err := tx.UpsertMarket(ctx, m); err != nil {
				return fmt.Errorf("upsert market %s for race %s: %w", q.SelectionKey, raceID, err)
			}
		}
		return nil
	})
	return deactivated, err
}
