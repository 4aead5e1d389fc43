// Package memstore is an in-memory store.Store used by tests and local
// dry runs. Transactions hold a single lock and restore a snapshot when
// the callback fails, so rollback behaves like the PostgreSQL store.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/clock"
	"github.com/albapepper/pitlane/internal/model"
	"github.com/albapepper/pitlane/internal/store"
)

type seasonRound struct {
	season, round int
}

type pair struct {
	a, b string
}

type marketKey struct {
	provider, providerMarketID, selectionKey string
}

type data struct {
	races      map[string]*model.Race
	raceKeys   map[seasonRound]string
	markets    map[string]*model.Market
	marketKeys map[marketKey]string
	results    []model.RaceResult
	bets       map[string]*model.Bet
	members    map[pair]*model.LeagueMember
	winners    map[pair]model.RaceLeagueWinner
}

func newData() *data {
	return &data{
		races:      map[string]*model.Race{},
		raceKeys:   map[seasonRound]string{},
		markets:    map[string]*model.Market{},
		marketKeys: map[marketKey]string{},
		bets:       map[string]*model.Bet{},
		members:    map[pair]*model.LeagueMember{},
		winners:    map[pair]model.RaceLeagueWinner{},
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.races {
		r := *v
		c.races[k] = &r
	}
	for k, v := range d.raceKeys {
		c.raceKeys[k] = v
	}
	for k, v := range d.markets {
		m := *v
		c.markets[k] = &m
	}
	for k, v := range d.marketKeys {
		c.marketKeys[k] = v
	}
	c.results = append([]model.RaceResult(nil), d.results...)
	for k, v := range d.bets {
		b := *v
		c.bets[k] = &b
	}
	for k, v := range d.members {
		m := *v
		c.members[k] = &m
	}
	for k, v := range d.winners {
		c.winners[k] = v
	}
	return c
}

// Store implements store.Store in memory.
type Store struct {
	mu     *sync.Mutex
	d      *data
	held   bool
	clock  clock.Clock
	faults map[string]error
}

// New returns an empty store. A nil clock means the system clock.
func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.System{}
	}
	return &Store{mu: &sync.Mutex{}, d: newData(), clock: clk, faults: map[string]error{}}
}

func (s *Store) lock() func() {
	if s.held {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// SetFault makes every call to the named method fail with err until
// cleared with a nil err. Used to exercise rollback paths.
func (s *Store) SetFault(method string, err error) {
	unlock := s.lock()
	defer unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

func (s *Store) fault(method string) error {
	return s.faults[method]
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.held {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	tx := &Store{mu: s.mu, d: s.d, held: true, clock: s.clock, faults: s.faults}
	if err := fn(tx); err != nil {
		*s.d = *snapshot
		return err
	}
	return nil
}

// --------------------------------------------------------------------------
// Seeding helpers for tests
// --------------------------------------------------------------------------

// AddRace inserts a race as-is, assigning an ID when empty.
func (s *Store) AddRace(r model.Race) model.Race {
	unlock := s.lock()
	defer unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = model.RaceScheduled
	}
	if r.LockTime.IsZero() {
		r.LockTime = r.StartTime.Add(-model.LockLead)
	}
	s.d.races[r.ID] = &r
	s.d.raceKeys[seasonRound{r.Season, r.Round}] = r.ID
	return r
}

// AddMarket inserts a market, assigning an ID when empty.
func (s *Store) AddMarket(m model.Market) model.Market {
	unlock := s.lock()
	defer unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	s.d.markets[m.ID] = &m
	s.d.marketKeys[marketKey{m.Provider, m.ProviderMarketID, m.SelectionKey}] = m.ID
	return m
}

// AddBet inserts a bet, assigning an ID and pending status when empty.
func (s *Store) AddBet(b model.Bet) model.Bet {
	unlock := s.lock()
	defer unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.BetPending
	}
	s.d.bets[b.ID] = &b
	return b
}

// AddMember inserts a league membership.
func (s *Store) AddMember(m model.LeagueMember) {
	unlock := s.lock()
	defer unlock()
	if m.Role == "" {
		m.Role = "member"
	}
	s.d.members[pair{m.LeagueID, m.UserID}] = &m
}

// AddResult appends a result fact.
func (s *Store) AddResult(r model.RaceResult) {
	unlock := s.lock()
	defer unlock()
	s.d.results = append(s.d.results, r)
}

// Bet returns a bet by ID.
func (s *Store) Bet(id string) (model.Bet, bool) {
	unlock := s.lock()
	defer unlock()
	b, ok := s.d.bets[id]
	if !ok {
		return model.Bet{}, false
	}
	return *b, true
}

// RaceBets returns every bet of a race in placement order.
func (s *Store) RaceBets(raceID string) []model.Bet {
	unlock := s.lock()
	defer unlock()
	return s.filterBets(func(b *model.Bet) bool { return b.RaceID == raceID })
}

// --------------------------------------------------------------------------
// Races
// --------------------------------------------------------------------------

func (s *Store) GetRace(ctx context.Context, id string) (model.Race, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.fault("GetRace"); err != nil {
		return model.Race{}, err
	}
	r, ok := s.d.races[id]
	if !ok {
		return model.Race{}, apperr.NotFound(apperr.CodeRaceNotFound, "race %s not found", id)
	}
	return *r, nil
}

func (s *Store) sortedRaces(keep func(*model.Race) bool, less func(a, b *model.Race) bool) []model.Race {
	var out []*model.Race
	for _, r := range s.d.races {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	races := make([]model.Race, len(out))
	for i, r := range out {
		races[i] = *r
	}
	return races
}

func byStart(a, b *model.Race) bool {
	if a.StartTime.Equal(b.StartTime) {
		return a.ID < b.ID
	}
	return a.StartTime.Before(b.StartTime)
}

func (s *Store) RacesBySeason(ctx context.Context, season int) ([]model.Race, error) {
	unlock := s.lock()
	defer unlock()
	return s.sortedRaces(
		func(r *model.Race) bool { return r.Season == season },
		func(a, b *model.Race) bool { return a.Round < b.Round },
	), nil
}

func (s *Store) ListRaces(ctx context.Context, f store.RaceFilter) ([]model.Race, error) {
	unlock := s.lock()
	defer unlock()
	races := s.sortedRaces(func(r *model.Race) bool {
		return (f.Status == "" || r.Status == f.Status) && (f.Season == 0 || r.Season == f.Season)
	}, byStart)
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(races) > limit {
		races = races[:limit]
	}
	return races, nil
}

func (s *Store) UpsertRace(ctx context.Context, row model.RaceRow, now time.Time) error {
	unlock := s.lock()
	defer unlock()
	if err := s.fault("UpsertRace"); err != nil {
		return err
	}

	id, exists := s.d.raceKeys[seasonRound{row.Season, row.Round}]
	if !exists {
		r := &model.Race{
			ID: uuid.NewString(), Season: row.Season, Round: row.Round, Status: row.Status,
		}
		applyRow(r, row)
		r.LockTime = row.LockTime
		r.UpdatedAt = s.clock.Now()
		s.d.races[r.ID] = r
		s.d.raceKeys[seasonRound{row.Season, row.Round}] = r.ID
		return nil
	}

	r := s.d.races[id]
	applyRow(r, row)
	r.LockTime = row.LockTime
	if r.LockTimeOverride != nil {
		r.LockTime = *r.LockTimeOverride
	}
	if r.Status == model.RaceScheduled {
		if r.LockTimeOverride != nil {
			r.Status = model.ScheduleStatus(*r.LockTimeOverride, now)
		} else {
			r.Status = row.Status
		}
	}
	r.UpdatedAt = s.clock.Now()
	return nil
}

func applyRow(r *model.Race, row model.RaceRow) {
	keep := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	r.Slug = row.Slug
	r.Name = row.Name
	keep(&r.Country, row.Country)
	keep(&r.Circuit, row.Circuit)
	keep(&r.VenueName, row.VenueName)
	keep(&r.City, row.City)
	keep(&r.Description, row.Description)
	keep(&r.ImageURL, row.ImageURL)
	keep(&r.BannerURL, row.BannerURL)
	keep(&r.PosterURL, row.PosterURL)
	keep(&r.HighlightsURL, row.HighlightsURL)
	keep(&r.SportsDBEventID, row.SportsDBEventID)
	r.StartTime = row.StartTime
}

func (s *Store) LockDueRaces(ctx context.Context, now time.Time) (int, error) {
	unlock := s.lock()
	defer unlock()
	n := 0
	for _, r := range s.d.races {
		if r.Status == model.RaceScheduled && !r.LockTime.After(now) {
			r.Status = model.RaceLocked
			r.UpdatedAt = s.clock.Now()
			n++
		}
	}
	return n, nil
}

func (s *Store) SweepCandidates(ctx context.Context, now time.Time, limit int) ([]model.Race, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.fault("SweepCandidates"); err != nil {
		return nil, err
	}
	races := s.sortedRaces(func(r *model.Race) bool {
		return (r.Status == model.RaceLocked || r.Status == model.RaceSettling) && !r.StartTime.After(now)
	}, byStart)
	if limit > 0 && len(races) > limit {
		races = races[:limit]
	}
	return races, nil
}

func (s *Store) MarkSettling(ctx context.Context, raceID string) (bool, error) {
	unlock := s.lock()
	defer unlock()
	r, ok := s.d.races[raceID]
	if !ok || r.Status == model.RaceSettled {
		return false, nil
	}
	r.Status = model.RaceSettling
	r.UpdatedAt = s.clock.Now()
	return true, nil
}

func (s *Store) MarkSettled(ctx context.Context, raceID string, revision int) (bool, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.fault("MarkSettled"); err != nil {
		return false, err
	}
	r, ok := s.d.races[raceID]
	if !ok || r.Status != model.RaceSettling {
		return false, nil
	}
	r.Status = model.RaceSettled
	r.ResultRevision = revision
	r.UpdatedAt = s.clock.Now()
	return true, nil
}

func (s *Store) BumpResultRevision(ctx context.Context, raceID string, from, to int) (bool, error) {
	unlock := s.lock()
	defer unlock()
	r, ok := s.d.races[raceID]
	if !ok || r.ResultRevision != from {
		return false, nil
	}
	r.ResultRevision = to
	r.UpdatedAt = s.clock.Now()
	return true, nil
}

// --------------------------------------------------------------------------
// Markets
// --------------------------------------------------------------------------

func (s *Store) MarketsForRace(ctx context.Context, raceID string, includeInactive bool) ([]model.Market, error) {
	unlock := s.lock()
	defer unlock()
	var out []model.Market
	for _, m := range s.d.markets {
		if m.RaceID == raceID && (m.IsActive || includeInactive) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MarketType != b.MarketType {
			return a.MarketType < b.MarketType
		}
		if !a.DecimalOdds.Equal(b.DecimalOdds) {
			return a.DecimalOdds.LessThan(b.DecimalOdds)
		}
		return a.SelectionKey < b.SelectionKey
	})
	return out, nil
}

func (s *Store) DeactivateMarkets(ctx context.Context, raceID, provider string) (int, error) {
	unlock := s.lock()
	defer unlock()
	n := 0
	for _, m := range s.d.markets {
		if m.RaceID == raceID && m.Provider == provider && m.IsActive {
			m.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *Store) UpsertMarket(ctx context.Context, m model.Market) error {
	unlock := s.lock()
	defer unlock()
	if err := s.fault("UpsertMarket"); err != nil {
		return err
	}
	key := marketKey{m.Provider, m.ProviderMarketID, m.SelectionKey}
	if id, ok := s.d.marketKeys[key]; ok {
		existing := s.d.markets[id]
		existing.RaceID = m.RaceID
		existing.MarketType = m.MarketType
		existing.SelectionLabel = m.SelectionLabel
		existing.DecimalOdds = m.DecimalOdds
		existing.IsActive = true
		existing.FetchedAt = m.FetchedAt
		return nil
	}
	m.ID = uuid.NewString()
	m.IsActive = true
	s.d.markets[m.ID] = &m
	s.d.marketKeys[key] = m.ID
	return nil
}

// --------------------------------------------------------------------------
// Results
// --------------------------------------------------------------------------

func (s *Store) RaceResults(ctx context.Context, raceID string) ([]model.RaceResult, error) {
	unlock := s.lock()
	defer unlock()
	var out []model.RaceResult
	for _, r := range s.d.results {
		if r.RaceID == raceID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}

func (s *Store) InsertRaceResult(ctx context.Context, r model.RaceResult) error {
	unlock := s.lock()
	defer unlock()
	if err := s.fault("InsertRaceResult"); err != nil {
		return err
	}
	if _, ok := s.d.races[r.RaceID]; !ok {
		return fmt.Errorf("insert result %s: race %s does not exist", r.ResultKey, r.RaceID)
	}
	s.d.results = append(s.d.results, r)
	return nil
}

// --------------------------------------------------------------------------
// Bets
// --------------------------------------------------------------------------

func (s *Store) filterBets(keep func(*model.Bet) bool) []model.Bet {
	var out []model.Bet
	for _, b := range s.d.bets {
		if keep(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].PlacedAt.Before(out[j].PlacedAt)
	})
	return out
}

func (s *Store) PendingBets(ctx context.Context, raceID string) ([]model.Bet, error) {
	unlock := s.lock()
	defer unlock()
	return s.filterBets(func(b *model.Bet) bool {
		return b.RaceID == raceID && b.Status == model.BetPending
	}), nil
}

func (s *Store) UserRaceBets(ctx context.Context, userID, raceID string) ([]model.Bet, error) {
	unlock := s.lock()
	defer unlock()
	return s.filterBets(func(b *model.Bet) bool {
		return b.UserID == userID && b.RaceID == raceID
	}), nil
}

func (s *Store) SettleBet(ctx context.Context, st store.BetSettlement) (bool, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.fault("SettleBet"); err != nil {
		return false, err
	}
	b, ok := s.d.bets[st.BetID]
	if !ok || b.Status != model.BetPending {
		return false, nil
	}
	gross, net, at := st.GrossReturn, st.NetProfit, st.SettledAt
	b.Status = st.Status
	b.GrossReturn = &gross
	b.NetProfit = &net
	b.SettledAt = &at
	return true, nil
}

func (s *Store) LockBetSlip(ctx context.Context, userID, leagueID, raceID string) error {
	if !s.held {
		return errors.New("bet slip lock requires a transaction")
	}
	return nil
}

func (s *Store) PendingStake(ctx context.Context, userID, leagueID, raceID string) (decimal.Decimal, error) {
	unlock := s.lock()
	defer unlock()
	sum := decimal.Zero
	for _, b := range s.d.bets {
		if b.UserID == userID && b.LeagueID == leagueID && b.RaceID == raceID && b.Status == model.BetPending {
			sum = sum.Add(b.Stake)
		}
	}
	return sum, nil
}

func (s *Store) InsertBet(ctx context.Context, b model.Bet) error {
	unlock := s.lock()
	defer unlock()
	if err := s.fault("InsertBet"); err != nil {
		return err
	}
	if _, ok := s.d.markets[b.MarketID]; !ok {
		return fmt.Errorf("insert bet: market %s does not exist", b.MarketID)
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if _, dup := s.d.bets[b.ID]; dup {
		return fmt.Errorf("insert bet: duplicate id %s", b.ID)
	}
	b.Status = model.BetPending
	s.d.bets[b.ID] = &b
	return nil
}

// --------------------------------------------------------------------------
// Leagues
// --------------------------------------------------------------------------

func (s *Store) GetMember(ctx context.Context, leagueID, userID string) (model.LeagueMember, error) {
	unlock := s.lock()
	defer unlock()
	m, ok := s.d.members[pair{leagueID, userID}]
	if !ok {
		return model.LeagueMember{}, apperr.NotFound(apperr.CodeNotLeagueMember, "user %s is not a member of league %s", userID, leagueID)
	}
	return *m, nil
}

func (s *Store) AddSeasonPoints(ctx context.Context, leagueID, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.fault("AddSeasonPoints"); err != nil {
		return decimal.Zero, err
	}
	m, ok := s.d.members[pair{leagueID, userID}]
	if !ok {
		return decimal.Zero, apperr.NotFound(apperr.CodeNotLeagueMember, "no membership for user %s in league %s", userID, leagueID)
	}
	m.SeasonPoints = model.Round2(m.SeasonPoints.Add(delta))
	return m.SeasonPoints, nil
}

func (s *Store) LeagueMembers(ctx context.Context, leagueID string) ([]model.LeagueMember, error) {
	unlock := s.lock()
	defer unlock()
	var out []model.LeagueMember
	for _, m := range s.d.members {
		if m.LeagueID == leagueID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.SeasonPoints.Equal(b.SeasonPoints) {
			return a.SeasonPoints.GreaterThan(b.SeasonPoints)
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
	return out, nil
}

func (s *Store) UpsertRaceLeagueWinner(ctx context.Context, w model.RaceLeagueWinner) error {
	unlock := s.lock()
	defer unlock()
	if err := s.fault("UpsertRaceLeagueWinner"); err != nil {
		return err
	}
	s.d.winners[pair{w.RaceID, w.LeagueID}] = w
	return nil
}

func (s *Store) RaceLeagueWinners(ctx context.Context, raceID string) ([]model.RaceLeagueWinner, error) {
	unlock := s.lock()
	defer unlock()
	var out []model.RaceLeagueWinner
	for k, w := range s.d.winners {
		if k.a == raceID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeagueID < out[j].LeagueID })
	return out, nil
}

// --------------------------------------------------------------------------
// Health
// --------------------------------------------------------------------------

func (s *Store) RaceStatusCounts(ctx context.Context) (map[model.RaceStatus]int, error) {
	unlock := s.lock()
	defer unlock()
	counts := map[model.RaceStatus]int{}
	for _, r := range s.d.races {
		counts[r.Status]++
	}
	return counts, nil
}

func (s *Store) OverdueRaceIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	unlock := s.lock()
	defer unlock()
	races := s.sortedRaces(func(r *model.Race) bool {
		return (r.Status == model.RaceLocked || r.Status == model.RaceSettling) && !r.StartTime.After(now)
	}, byStart)
	if limit > 0 && len(races) > limit {
		races = races[:limit]
	}
	ids := make([]string, len(races))
	for i, r := range races {
		ids[i] = r.ID
	}
	return ids, nil
}

func (s *Store) PendingBetCount(ctx context.Context, raceIDs []string) (int, error) {
	unlock := s.lock()
	defer unlock()
	want := make(map[string]bool, len(raceIDs))
	for _, id := range raceIDs {
		want[id] = true
	}
	n := 0
	for _, b := range s.d.bets {
		if b.Status == model.BetPending && want[b.RaceID] {
			n++
		}
	}
	return n, nil
}

func (s *Store) LatestSettledRace(ctx context.Context) (*model.Race, error) {
	unlock := s.lock()
	defer unlock()
	races := s.sortedRaces(
		func(r *model.Race) bool { return r.Status == model.RaceSettled },
		func(a, b *model.Race) bool { return a.UpdatedAt.After(b.UpdatedAt) },
	)
	if len(races) == 0 {
		return nil, nil
	}
	return &races[0], nil
}

var _ store.Store = (*Store)(nil)
