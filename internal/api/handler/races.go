package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/albapepper/pitlane/internal/api/respond"
	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/cache"
	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/store"
)

const maxRaceListLimit = 200

// ListRaces returns races ordered by start time.
// @Summary List races
// @Description Returns races filtered by status and season, ordered by start time.
// @Tags races
// @Produce json
// @Param status query string false "Race status" Enums(scheduled, locked, settling, settled)
// @Param season query int false "Season year"
// @Param limit query int false "Maximum rows (1-200)" default(100)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/races [get]
func (h *Handler) ListRaces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RaceFilter{Limit: 100}

	if s := q.Get("status"); s != "" {
		filter.Status = model.RaceStatus(s)
		if !filter.Status.Valid() {
			respond.WriteError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "Unknown race status")
			return
		}
	}
	if s := q.Get("season"); s != "" {
		season, err := strconv.Atoi(s)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "season must be an integer")
			return
		}
		filter.Season = season
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > maxRaceListLimit {
			respond.WriteError(w, http.StatusBadRequest, apperr.CodeInvalidRequest,
				fmt.Sprintf("limit must be between 1 and %d", maxRaceListLimit))
			return
		}
		filter.Limit = limit
	}

	cacheKey := fmt.Sprintf("%s%s:%d:%d", cache.PrefixRaces, filter.Status, filter.Season, filter.Limit)
	if h.serveCached(w, r, cacheKey, cache.TTLRaces) {
		return
	}

	races, err := h.store.ListRaces(r.Context(), filter)
	if err != nil {
		h.logger.Error("List races failed", "error", err)
		respond.WriteAppError(w, err)
		return
	}
	views := make([]RaceView, len(races))
	for i, race := range races {
		views[i] = raceView(race)
	}
	h.writeCached(w, cacheKey, cache.TTLRaces, map[string]interface{}{"races": views})
}

// GetRaceMarkets returns the markets of a race.
// @Summary Race markets
// @Description Returns the active markets of a race, or all of them with include_inactive=true.
// @Tags races
// @Produce json
// @Param raceID path string true "Race ID (uuid)"
// @Param include_inactive query bool false "Include deactivated markets"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/races/{raceID}/markets [get]
func (h *Handler) GetRaceMarkets(w http.ResponseWriter, r *http.Request) {
	raceID, ok := raceIDParam(w, r)
	if !ok {
		return
	}
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))

	cacheKey := fmt.Sprintf("%s%s:%t", cache.PrefixMarkets, raceID, includeInactive)
	if h.serveCached(w, r, cacheKey, cache.TTLMarkets) {
		return
	}

	race, err := h.store.GetRace(r.Context(), raceID)
	if err != nil {
		respond.WriteAppError(w, err)
		return
	}
	markets, err := h.store.MarketsForRace(r.Context(), raceID, includeInactive)
	if err != nil {
		h.logger.Error("Load markets failed", "race_id", raceID, "error", err)
		respond.WriteAppError(w, err)
		return
	}
	views := make([]MarketView, len(markets))
	for i, m := range markets {
		views[i] = marketView(m)
	}
	h.writeCached(w, cacheKey, cache.TTLMarkets, map[string]interface{}{
		"race":    raceView(race),
		"markets": views,
	})
}

// raceIDParam reads and validates the {raceID} path parameter.
func raceIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	return uuidParam(w, r, "raceID", "race")
}

func uuidParam(w http.ResponseWriter, r *http.Request, name, label string) (string, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "Invalid "+label+" id")
		return "", false
	}
	return id.String(), true
}

func (h *Handler) serveCached(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration) bool {
	data, etag, ok := h.cache.Get(key)
	if !ok {
		return false
	}
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return true
	}
	respond.WriteJSON(w, data, etag, ttl, true)
	return true
}

func (h *Handler) writeCached(w http.ResponseWriter, key string, ttl time.Duration, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		respond.WriteAppError(w, err)
		return
	}
	etag := h.cache.Set(key, data, ttl)
	respond.WriteJSON(w, data, etag, ttl, false)
}
