package ingest

import (
	"context"
	"fmt"
	"strconv"

	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/config"
	"github.com/albapepper/pitlane/internal/matcher"
	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/outcome"
	"github.com/albapepper/pitlane/internal/store"
)

// ResultKeyPrefix prefixes per-selection result facts.
const ResultKeyPrefix = "selection:"

// Results pairs a race with its finalized result session, evaluates every
// market selection of the race and appends the outcomes as a new result
// revision. A race that is not finished yet yields a Deferred error.
func (s *Service) Results(ctx context.Context, raceID string) (*ResultIngest, error) {
	if s.resultsProvider != config.ResultsProviderOpenF1 || s.results == nil {
		return nil, apperr.Invalid(apperr.CodeInvalidRequest, "unsupported results provider %q", s.resultsProvider)
	}

	race, err := s.store.GetRace(ctx, raceID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if race.StartTime.After(now) {
		return nil, apperr.Deferred(apperr.CodeNotFinalized, "race %s has not started", raceID).
			WithDetail("start_time", race.StartTime)
	}

	sessions, err := s.results.RaceSessions(ctx, race.Season, race.Country)
	if err != nil {
		return nil, apperr.Upstream(err, "list result sessions for race %s", raceID)
	}
	session, ok := matcher.BestSession(race, sessions)
	if !ok {
		return nil, apperr.Deferred(apperr.CodeNoSession, "no result session matches race %s yet", raceID).
			WithDetail("candidates", len(sessions))
	}
	if !session.Finalized(now) {
		return nil, apperr.Deferred(apperr.CodeNotFinalized, "result session is not finalized yet").
			WithDetail("session_key", session.Key)
	}

	classification, err := s.results.SessionResults(ctx, session.Key)
	if err != nil {
		return nil, apperr.Upstream(err, "fetch results of session %d", session.Key)
	}
	if len(classification) == 0 {
		return nil, apperr.Deferred(apperr.CodeNotFinalized, "session has no classification rows yet").
			WithDetail("session_key", session.Key)
	}
	drivers, err := s.results.Drivers(ctx, session.Key)
	if err != nil {
		return nil, apperr.Upstream(err, "fetch drivers of session %d", session.Key)
	}
	laps, err := s.results.Laps(ctx, session.Key)
	if err != nil {
		s.logger.Warn("Lap fetch failed, fastest lap markets will void", "session_key", session.Key, "error", err)
		laps = nil
	}

	markets, err := s.store.MarketsForRace(ctx, raceID, true)
	if err != nil {
		return nil, fmt.Errorf("load markets for race %s: %w", raceID, err)
	}

	eval := outcome.NewClassification(classification, drivers, laps)
	source := s.results.Name() + ":session_result:" + strconv.Itoa(session.Key)
	facts := evaluateMarkets(eval, markets)

	ingest := &ResultIngest{
		RaceID:     raceID,
		Ingested:   true,
		Finalized:  true,
		SessionKey: session.Key,
		Revision:   race.ResultRevision,
	}
	if len(facts) == 0 {
		s.logger.Info("No markets to evaluate", "race_id", raceID, "session_key", session.Key)
		return ingest, nil
	}

	next := race.ResultRevision + 1
	err = s.store.InTx(ctx, func(tx store.Store) error {
		for _, f := range facts {
			f.RaceID = raceID
			f.Source = source
			f.Revision = next
			f.CreatedAt = now
			if err := tx.InsertRaceResult(ctx, f); err != nil {
				return fmt.Errorf("insert result %s: %w", f.ResultKey, err)
			}
		}
		ok, err := tx.BumpResultRevision(ctx, raceID, race.ResultRevision, next)
		if err != nil {
			return fmt.Errorf("bump result revision of race %s: %w", raceID, err)
		}
		if !ok {
			return apperr.Conflict(apperr.CodeRevisionConflict,
				"result revision of race %s moved during ingestion", raceID).
				WithDetail("expected_revision", race.ResultRevision)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ingest.Revision = next
	ingest.InsertedRows = len(facts)
	s.logger.Info("Results ingested", "race_id", raceID, "summary", ingest.Summary())
	return ingest, nil
}

// evaluateMarkets produces one fact per distinct selection key, keeping the
// first market seen for a key.
func evaluateMarkets(eval *outcome.Classification, markets []model.Market) []model.RaceResult {
	seen := make(map[string]bool, len(markets))
	var facts []model.RaceResult
	for _, m := range markets {
		if seen[m.SelectionKey] {
			continue
		}
		seen[m.SelectionKey] = true
		facts = append(facts, model.RaceResult{
			ResultKey:   ResultKeyPrefix + m.SelectionKey,
			ResultValue: string(eval.Evaluate(m.SelectionKey, m.MarketType)),
		})
	}
	return facts
}
