package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/albapepper/pitlane/internal/model"
)

// RaceView is the public representation of a race.
type RaceView struct {
	ID             string           `json:"id"`
	Season         int              `json:"season"`
	Round          int              `json:"round"`
	Slug           string           `json:"slug"`
	Name           string           `json:"name"`
	Country        string           `json:"country,omitempty"`
	Circuit        string           `json:"circuit,omitempty"`
	VenueName      string           `json:"venue_name,omitempty"`
	City           string           `json:"city,omitempty"`
	Description    string           `json:"description,omitempty"`
	ImageURL       string           `json:"image_url,omitempty"`
	BannerURL      string           `json:"banner_url,omitempty"`
	PosterURL      string           `json:"poster_url,omitempty"`
	HighlightsURL  string           `json:"highlights_url,omitempty"`
	StartTime      time.Time        `json:"start_time"`
	LockTime       time.Time        `json:"lock_time"`
	Status         model.RaceStatus `json:"status"`
	ResultRevision int              `json:"result_revision"`
}

func raceView(r model.Race) RaceView {
	return RaceView{
		ID:             r.ID,
		Season:         r.Season,
		Round:          r.Round,
		Slug:           r.Slug,
		Name:           r.Name,
		Country:        r.Country,
		Circuit:        r.Circuit,
		VenueName:      r.VenueName,
		City:           r.City,
		Description:    r.Description,
		ImageURL:       r.ImageURL,
		BannerURL:      r.BannerURL,
		PosterURL:      r.PosterURL,
		HighlightsURL:  r.HighlightsURL,
		StartTime:      r.StartTime,
		LockTime:       r.LockTime,
		Status:         r.Status,
		ResultRevision: r.ResultRevision,
	}
}

// MarketView is the public representation of a market.
type MarketView struct {
	ID             string           `json:"id"`
	MarketType     model.MarketType `json:"market_type"`
	SelectionKey   string           `json:"selection_key"`
	SelectionLabel string           `json:"selection_label"`
	DecimalOdds    decimal.Decimal  `json:"decimal_odds"`
	IsActive       bool             `json:"is_active"`
	Provider       string           `json:"provider"`
	FetchedAt      time.Time        `json:"fetched_at"`
}

func marketView(m model.Market) MarketView {
	return MarketView{
		ID:             m.ID,
		MarketType:     m.MarketType,
		SelectionKey:   m.SelectionKey,
		SelectionLabel: m.SelectionLabel,
		DecimalOdds:    m.DecimalOdds,
		IsActive:       m.IsActive,
		Provider:       m.Provider,
		FetchedAt:      m.FetchedAt,
	}
}

// BetView is a user's bet as shown back to them.
type BetView struct {
	ID                  string           `json:"id"`
	LeagueID            string           `json:"league_id"`
	MarketID            string           `json:"market_id"`
	SelectionKey        string           `json:"selection_key"`
	Stake               decimal.Decimal  `json:"stake"`
	DecimalOddsSnapshot decimal.Decimal  `json:"decimal_odds_snapshot"`
	Status              model.BetStatus  `json:"status"`
	GrossReturn         *decimal.Decimal `json:"gross_return"`
	NetProfit           *decimal.Decimal `json:"net_profit"`
	PlacedAt            time.Time        `json:"placed_at"`
	SettledAt           *time.Time       `json:"settled_at"`
}

func betView(b model.Bet) BetView {
	return BetView{
		ID:                  b.ID,
		LeagueID:            b.LeagueID,
		MarketID:            b.MarketID,
		SelectionKey:        b.SelectionKey,
		Stake:               b.Stake,
		DecimalOddsSnapshot: b.DecimalOddsSnapshot,
		Status:              b.Status,
		GrossReturn:         b.GrossReturn,
		NetProfit:           b.NetProfit,
		PlacedAt:            b.PlacedAt,
		SettledAt:           b.SettledAt,
	}
}
