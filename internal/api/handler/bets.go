package handler

import (
	"encoding/json"
	"net/http"

	"github.com/albapepper/pitlane/internal/api/respond"
	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/auth"
	"github.com/albapepper/pitlane/internal/betting"
)

const maxBetSlipBytes = 64 << 10

// PlaceBets places a bet slip on a race for the authenticated user.
// @Summary Place bets
// @Description Places up to 20 bets on open markets of a race within one league. The pending stake per user, league and race may not exceed 100.
// @Tags bets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param raceID path string true "Race ID (uuid)"
// @Param body body betting.PlaceRequest true "Bet slip"
// @Success 201 {object} betting.Placement
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/races/{raceID}/bets [post]
func (h *Handler) PlaceBets(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, apperr.CodeUnauthorized, "Unauthorized")
		return
	}
	raceID, ok := raceIDParam(w, r)
	if !ok {
		return
	}

	var req betting.PlaceRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBetSlipBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "Invalid JSON payload", err.Error())
		return
	}

	placement, err := h.betting.Place(r.Context(), userID, raceID, req)
	if err != nil {
		respond.WriteAppError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusCreated, placement)
}

// MyBets lists the authenticated user's bets on a race.
// @Summary My bets on a race
// @Tags bets
// @Produce json
// @Security BearerAuth
// @Param raceID path string true "Race ID (uuid)"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/races/{raceID}/bets/me [get]
func (h *Handler) MyBets(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, apperr.CodeUnauthorized, "Unauthorized")
		return
	}
	raceID, ok := raceIDParam(w, r)
	if !ok {
		return
	}

	bets, err := h.betting.UserBets(r.Context(), userID, raceID)
	if err != nil {
		respond.WriteAppError(w, err)
		return
	}
	views := make([]BetView, len(bets))
	for i, b := range bets {
		views[i] = betView(b)
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"race_id": raceID,
		"bets":    views,
	})
}

// GetStandings returns a league table to one of its members.
// @Summary League standings
// @Tags leagues
// @Produce json
// @Security BearerAuth
// @Param leagueID path string true "League ID (uuid)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Router /api/v1/leagues/{leagueID}/standings [get]
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, apperr.CodeUnauthorized, "Unauthorized")
		return
	}
	leagueID, ok := uuidParam(w, r, "leagueID", "league")
	if !ok {
		return
	}

	standings, err := h.leagues.Standings(r.Context(), leagueID, userID)
	if err != nil {
		respond.WriteAppError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"standings": standings})
}
