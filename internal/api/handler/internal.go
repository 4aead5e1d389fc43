package handler

import (
	"net/http"
	"strconv"

	"github.com/albapepper/pitlane/internal/api/respond"
	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/cache"
	"github.com/albapepper/pitlane/internal/sweep"
)

// Season bounds accepted by the schedule ingest endpoint.
const (
	minSeason = 2026
	maxSeason = 2100
)

// IngestSchedule refreshes a season's races and odds.
// @Summary Ingest schedule and odds
// @Description Upserts the season's races from the schedule providers and refreshes market odds for open races.
// @Tags internal
// @Produce json
// @Security InternalSecret
// @Param season query int false "Season (2026-2100), defaults to the current year"
// @Success 200 {object} ingest.ScheduleResult
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /internal/schedule/ingest [post]
func (h *Handler) IngestSchedule(w http.ResponseWriter, r *http.Request) {
	season := h.clock.Now().Year()
	if s := r.URL.Query().Get("season"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < minSeason || v > maxSeason {
			respond.WriteError(w, http.StatusBadRequest, apperr.CodeInvalidRequest,
				"season must be an integer between 2026 and 2100")
			return
		}
		season = v
	}

	result, err := h.schedule.ScheduleAndOdds(r.Context(), season)
	if err != nil {
		h.logger.Error("Schedule ingest failed", "season", season, "error", err)
		respond.WriteAppError(w, err)
		return
	}
	h.cache.InvalidatePrefix(cache.PrefixRaces)
	h.cache.InvalidatePrefix(cache.PrefixMarkets)
	respond.WriteJSONObject(w, http.StatusOK, result)
}

// IngestResults appends a result revision for a race.
// @Summary Ingest race results
// @Description Matches the race to its result session and records per-selection outcomes. Answers 202 while the session is not final.
// @Tags internal
// @Produce json
// @Security InternalSecret
// @Param raceID path string true "Race ID (uuid)"
// @Success 200 {object} ingest.ResultIngest
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /internal/races/{raceID}/ingest-results [post]
func (h *Handler) IngestResults(w http.ResponseWriter, r *http.Request) {
	raceID, ok := raceIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.results.Results(r.Context(), raceID)
	if apperr.IsDeferred(err) {
		body := map[string]interface{}{
			"race_id":   raceID,
			"ingested":  false,
			"finalized": false,
			"code":      apperr.CodeOf(err),
			"message":   err.Error(),
		}
		if ae, ok := apperr.As(err); ok {
			for k, v := range ae.Details {
				body[k] = v
			}
		}
		respond.WriteJSONObject(w, http.StatusAccepted, body)
		return
	}
	if err != nil {
		h.logger.Error("Result ingest failed", "race_id", raceID, "error", err)
		respond.WriteAppError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, result)
}

// SettleRace settles a race against its latest results.
// @Summary Settle race
// @Description Settles all pending bets of a race, updates league points and records league winners.
// @Tags internal
// @Produce json
// @Security InternalSecret
// @Param raceID path string true "Race ID (uuid)"
// @Success 200 {object} settlement.Summary
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /internal/races/{raceID}/settle [post]
func (h *Handler) SettleRace(w http.ResponseWriter, r *http.Request) {
	raceID, ok := raceIDParam(w, r)
	if !ok {
		return
	}

	summary, err := h.settler.Settle(r.Context(), raceID)
	if err != nil {
		respond.WriteAppError(w, err)
		return
	}
	if !summary.AlreadySettled {
		h.cache.InvalidatePrefix(cache.PrefixRaces)
	}
	respond.WriteJSONObject(w, http.StatusOK, summary)
}

// RunSweep ingests and settles every started, unsettled race.
// @Summary Run settlement sweep
// @Tags internal
// @Produce json
// @Security InternalSecret
// @Param max query int false "Maximum races (1-20)"
// @Success 200 {object} sweep.RunResult
// @Failure 401 {object} respond.ErrorResponse
// @Router /internal/cron/settle-races [post]
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	opts := sweep.Options{}
	if h.cfg != nil {
		opts.Max = h.cfg.SweepBatchSize
		opts.Workers = h.cfg.SweepWorkers
	}
	if s := r.URL.Query().Get("max"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 20 {
			respond.WriteError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "max must be between 1 and 20")
			return
		}
		opts.Max = v
	}

	result, err := h.sweeper.Run(r.Context(), opts)
	if err != nil {
		h.logger.Error("Settlement sweep failed", "error", err)
		respond.WriteAppError(w, err)
		return
	}
	if result.SettledCount > 0 || result.LockedRaces > 0 {
		h.cache.InvalidatePrefix(cache.PrefixRaces)
	}
	respond.WriteJSONObject(w, http.StatusOK, result)
}

// SweepHealth reports the settlement backlog.
// @Summary Settlement health
// @Tags internal
// @Produce json
// @Security InternalSecret
// @Success 200 {object} sweep.HealthReport
// @Router /internal/cron/settle-races/health [get]
func (h *Handler) SweepHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Health(r.Context())
	if err != nil {
		respond.WriteAppError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, report)
}
