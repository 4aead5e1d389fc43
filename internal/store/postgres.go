package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/albapepper/pitlane/internal/apperr"
	"github.com/albapepper/pitlane/internal/db"
	"github.com/albapepper/pitlane/internal/model"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store on a pgx pool using the prepared statements
// registered by package db.
type Postgres struct {
	pool *db.Pool
	q    querier
	inTx bool
}

// NewPostgres wraps a pool.
func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool}
}

func (p *Postgres) Ping(ctx context.Context) error {
	var n int
	return p.q.QueryRow(ctx, db.StmtHealthCheck).Scan(&n)
}

func (p *Postgres) InTx(ctx context.Context, fn func(tx Store) error) error {
	if p.inTx {
		return fn(p)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&Postgres{pool: p.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Races
// --------------------------------------------------------------------------

func scanRace(row pgx.Row) (model.Race, error) {
	var r model.Race
	var status string
	err := row.Scan(&r.ID, &r.Season, &r.Round, &r.Slug, &r.Name,
		&r.Country, &r.Circuit, &r.VenueName, &r.City,
		&r.Description, &r.ImageURL, &r.BannerURL,
		&r.PosterURL, &r.HighlightsURL, &r.SportsDBEventID,
		&r.StartTime, &r.LockTime, &r.LockTimeOverride, &status, &r.ResultRevision, &r.UpdatedAt)
	r.Status = model.RaceStatus(status)
	return r, err
}

func (p *Postgres) queryRaces(ctx context.Context, stmt string, args ...any) ([]model.Race, error) {
	rows, err := p.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var races []model.Race
	for rows.Next() {
		r, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		races = append(races, r)
	}
	return races, rows.Err()
}

func (p *Postgres) GetRace(ctx context.Context, id string) (model.Race, error) {
	r, err := scanRace(p.q.QueryRow(ctx, db.StmtRaceByID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Race{}, apperr.NotFound(apperr.CodeRaceNotFound, "race %s not found", id)
	}
	if err != nil {
		return model.Race{}, fmt.Errorf("get race %s: %w", id, err)
	}
	return r, nil
}

func (p *Postgres) RacesBySeason(ctx context.Context, season int) ([]model.Race, error) {
	races, err := p.queryRaces(ctx, db.StmtRacesBySeason, season)
	if err != nil {
		return nil, fmt.Errorf("races for season %d: %w", season, err)
	}
	return races, nil
}

func (p *Postgres) ListRaces(ctx context.Context, f RaceFilter) ([]model.Race, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	races, err := p.queryRaces(ctx, db.StmtRacesList, string(f.Status), f.Season, limit)
	if err != nil {
		return nil, fmt.Errorf("list races: %w", err)
	}
	return races, nil
}

func (p *Postgres) UpsertRace(ctx context.Context, r model.RaceRow, now time.Time) error {
	_, err := p.q.Exec(ctx, db.StmtRaceUpsert,
		r.Season, r.Round, r.Slug, r.Name, r.Country, r.Circuit, r.VenueName, r.City,
		r.Description, r.ImageURL, r.BannerURL, r.PosterURL, r.HighlightsURL, r.SportsDBEventID,
		r.StartTime, r.LockTime, string(r.Status), now)
	if err != nil {
		return fmt.Errorf("upsert race %d/%d: %w", r.Season, r.Round, err)
	}
	return nil
}

func (p *Postgres) LockDueRaces(ctx context.Context, now time.Time) (int, error) {
	tag, err := p.q.Exec(ctx, db.StmtRacesLockDue, now)
	if err != nil {
		return 0, fmt.Errorf("lock due races: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) SweepCandidates(ctx context.Context, now time.Time, limit int) ([]model.Race, error) {
	races, err := p.queryRaces(ctx, db.StmtSweepCandidates, now, limit)
	if err != nil {
		return nil, fmt.Errorf("sweep candidates: %w", err)
	}
	return races, nil
}

func (p *Postgres) execAffected(ctx context.Context, stmt string, args ...any) (bool, error) {
	tag, err := p.q.Exec(ctx, stmt, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) MarkSettling(ctx context.Context, raceID string) (bool, error) {
	ok, err := p.execAffected(ctx, db.StmtRaceMarkSettling, raceID)
	if err != nil {
		return false, fmt.Errorf("mark race %s settling: %w", raceID, err)
	}
	return ok, nil
}

func (p *Postgres) MarkSettled(ctx context.Context, raceID string, revision int) (bool, error) {
	ok, err := p.execAffected(ctx, db.StmtRaceMarkSettled, raceID, revision)
	if err != nil {
		return false, fmt.Errorf("mark race %s settled: %w", raceID, err)
	}
	return ok, nil
}

func (p *Postgres) BumpResultRevision(ctx context.Context, raceID string, from, to int) (bool, error) {
	ok, err := p.execAffected(ctx, db.StmtRaceBumpRevision, raceID, from, to)
	if err != nil {
		return false, fmt.Errorf("bump result revision of race %s: %w", raceID, err)
	}
	return ok, nil
}

// --------------------------------------------------------------------------
// Markets
// --------------------------------------------------------------------------

func (p *Postgres) MarketsForRace(ctx context.Context, raceID string, includeInactive bool) ([]model.Market, error) {
	rows, err := p.q.Query(ctx, db.StmtMarketsByRace, raceID, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("markets for race %s: %w", raceID, err)
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		var m model.Market
		var mt string
		if err := rows.Scan(&m.ID, &m.RaceID, &m.Provider, &m.ProviderMarketID, &mt,
			&m.SelectionKey, &m.SelectionLabel, &m.DecimalOdds, &m.IsActive, &m.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		m.MarketType = model.MarketType(mt)
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (p *Postgres) DeactivateMarkets(ctx context.Context, raceID, provider string) (int, error) {
	tag, err := p.q.Exec(ctx, db.StmtMarketsDeactivate, raceID, provider)
	if err != nil {
		return 0, fmt.Errorf("deactivate markets for race %s: %w", raceID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) UpsertMarket(ctx context.Context, m model.Market) error {
	_, err := p.q.Exec(ctx, db.StmtMarketUpsert,
		m.RaceID, m.Provider, m.ProviderMarketID, string(m.MarketType),
		m.SelectionKey, m.SelectionLabel, m.DecimalOdds, m.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert market %s/%s: %w", m.ProviderMarketID, m.SelectionKey, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Results
// --------------------------------------------------------------------------

func (p *Postgres) RaceResults(ctx context.Context, raceID string) ([]model.RaceResult, error) {
	rows, err := p.q.Query(ctx, db.StmtRaceResultsByRace, raceID)
	if err != nil {
		return nil, fmt.Errorf("results for race %s: %w", raceID, err)
	}
	defer rows.Close()

	var results []model.RaceResult
	for rows.Next() {
		var r model.RaceResult
		if err := rows.Scan(&r.RaceID, &r.ResultKey, &r.ResultValue, &r.Source, &r.Revision, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan race result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (p *Postgres) InsertRaceResult(ctx context.Context, r model.RaceResult) error {
	_, err := p.q.Exec(ctx, db.StmtRaceResultInsert, r.RaceID, r.ResultKey, r.ResultValue, r.Source, r.Revision, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", r.ResultKey, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Bets
// --------------------------------------------------------------------------

func (p *Postgres) queryBets(ctx context.Context, stmt string, args ...any) ([]model.Bet, error) {
	rows, err := p.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []model.Bet
	for rows.Next() {
		var b model.Bet
		var status string
		if err := rows.Scan(&b.ID, &b.UserID, &b.LeagueID, &b.RaceID, &b.MarketID,
			&b.SelectionKey, &b.Stake, &b.DecimalOddsSnapshot, &status,
			&b.GrossReturn, &b.NetProfit, &b.PlacedAt, &b.SettledAt); err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		b.Status = model.BetStatus(status)
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func (p *Postgres) PendingBets(ctx context.Context, raceID string) ([]model.Bet, error) {
	bets, err := p.queryBets(ctx, db.StmtBetsPendingByRace, raceID)
	if err != nil {
		return nil, fmt.Errorf("pending bets for race %s: %w", raceID, err)
	}
	return bets, nil
}

func (p *Postgres) UserRaceBets(ctx context.Context, userID, raceID string) ([]model.Bet, error) {
	bets, err := p.queryBets(ctx, db.StmtBetsByUserRace, userID, raceID)
	if err != nil {
		return nil, fmt.Errorf("bets of user %s for race %s: %w", userID, raceID, err)
	}
	return bets, nil
}

func (p *Postgres) SettleBet(ctx context.Context, s BetSettlement) (bool, error) {
	ok, err := p.execAffected(ctx, db.StmtBetSettle, s.BetID, string(s.Status), s.GrossReturn, s.NetProfit, s.SettledAt)
	if err != nil {
		return false, fmt.Errorf("settle bet %s: %w", s.BetID, err)
	}
	return ok, nil
}

// LockBetSlip takes a transaction-scoped advisory lock on the
// (user, league, race) triple. Only meaningful inside InTx.
func (p *Postgres) LockBetSlip(ctx context.Context, userID, leagueID, raceID string) error {
	if !p.inTx {
		return errors.New("bet slip lock requires a transaction")
	}
	key := strings.Join([]string{userID, leagueID, raceID}, ":")
	if _, err := p.q.Exec(ctx, db.StmtBetSlipLock, key); err != nil {
		return fmt.Errorf("lock bet slip: %w", err)
	}
	return nil
}

func (p *Postgres) PendingStake(ctx context.Context, userID, leagueID, raceID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := p.q.QueryRow(ctx, db.StmtBetsPendingStake, userID, leagueID, raceID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("pending stake: %w", err)
	}
	return sum, nil
}

func (p *Postgres) InsertBet(ctx context.Context, b model.Bet) error {
	_, err := p.q.Exec(ctx, db.StmtBetInsert,
		b.ID, b.UserID, b.LeagueID, b.RaceID, b.MarketID, b.SelectionKey,
		b.Stake, b.DecimalOddsSnapshot, b.PlacedAt)
	if err != nil {
		return fmt.Errorf("insert bet on market %s: %w", b.MarketID, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Leagues
// --------------------------------------------------------------------------

func scanMember(row pgx.Row) (model.LeagueMember, error) {
	var m model.LeagueMember
	err := row.Scan(&m.LeagueID, &m.UserID, &m.Role, &m.SeasonPoints, &m.JoinedAt)
	return m, err
}

func (p *Postgres) GetMember(ctx context.Context, leagueID, userID string) (model.LeagueMember, error) {
	m, err := scanMember(p.q.QueryRow(ctx, db.StmtMemberGet, leagueID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.LeagueMember{}, apperr.NotFound(apperr.CodeNotLeagueMember, "user %s is not a member of league %s", userID, leagueID)
	}
	if err != nil {
		return model.LeagueMember{}, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (p *Postgres) AddSeasonPoints(ctx context.Context, leagueID, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := p.q.QueryRow(ctx, db.StmtMemberAddPoints, leagueID, userID, delta).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, apperr.NotFound(apperr.CodeNotLeagueMember, "no membership for user %s in league %s", userID, leagueID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("add season points: %w", err)
	}
	return total, nil
}

func (p *Postgres) LeagueMembers(ctx context.Context, leagueID string) ([]model.LeagueMember, error) {
	rows, err := p.q.Query(ctx, db.StmtMembersByLeague, leagueID)
	if err != nil {
		return nil, fmt.Errorf("members of league %s: %w", leagueID, err)
	}
	defer rows.Close()

	var members []model.LeagueMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (p *Postgres) UpsertRaceLeagueWinner(ctx context.Context, w model.RaceLeagueWinner) error {
	_, err := p.q.Exec(ctx, db.StmtWinnerUpsert, w.RaceID, w.LeagueID, w.WinnerUserID, w.RacePoints, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert winner for league %s: %w", w.LeagueID, err)
	}
	return nil
}

func (p *Postgres) RaceLeagueWinners(ctx context.Context, raceID string) ([]model.RaceLeagueWinner, error) {
	rows, err := p.q.Query(ctx, db.StmtWinnersByRace, raceID)
	if err != nil {
		return nil, fmt.Errorf("winners for race %s: %w", raceID, err)
	}
	defer rows.Close()

	var winners []model.RaceLeagueWinner
	for rows.Next() {
		var w model.RaceLeagueWinner
		if err := rows.Scan(&w.RaceID, &w.LeagueID, &w.WinnerUserID, &w.RacePoints, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan winner: %w", err)
		}
		winners = append(winners, w)
	}
	return winners, rows.Err()
}

// --------------------------------------------------------------------------
// Health
// --------------------------------------------------------------------------

func (p *Postgres) RaceStatusCounts(ctx context.Context) (map[model.RaceStatus]int, error) {
	rows, err := p.q.Query(ctx, db.StmtRaceStatusCounts)
	if err != nil {
		return nil, fmt.Errorf("race status counts: %w", err)
	}
	defer rows.Close()

	counts := map[model.RaceStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[model.RaceStatus(status)] = n
	}
	return counts, rows.Err()
}

func (p *Postgres) OverdueRaceIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := p.q.Query(ctx, db.StmtOverdueRaces, now, limit)
	if err != nil {
		return nil, fmt.Errorf("overdue races: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan overdue race: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) PendingBetCount(ctx context.Context, raceIDs []string) (int, error) {
	if len(raceIDs) == 0 {
		return 0, nil
	}
	var n int
	if err := p.q.QueryRow(ctx, db.StmtBetsPendingCount, raceIDs).Scan(&n); err != nil {
		return 0, fmt.Errorf("pending bet count: %w", err)
	}
	return n, nil
}

func (p *Postgres) LatestSettledRace(ctx context.Context) (*model.Race, error) {
	r, err := scanRace(p.q.QueryRow(ctx, db.StmtLatestSettledRace))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest settled race: %w", err)
	}
	return &r, nil
}

var _ Store = (*Postgres)(nil)
