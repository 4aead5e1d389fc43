package db

// Prepared statement names. Callers pass these in place of SQL text.
const (
	StmtHealthCheck = "health_check"

	StmtRaceByID          = "race_by_id"
	StmtRacesBySeason     = "races_by_season"
	StmtRacesList         = "races_list"
	StmtRaceUpsert        = "race_upsert"
	StmtRacesLockDue      = "races_lock_due"
	StmtSweepCandidates   = "sweep_candidates"
	StmtRaceMarkSettling  = "race_mark_settling"
	StmtRaceMarkSettled   = "race_mark_settled"
	StmtRaceBumpRevision  = "race_bump_revision"
	StmtRaceStatusCounts  = "race_status_counts"
	StmtOverdueRaces      = "overdue_races"
	StmtLatestSettledRace = "latest_settled_race"

	StmtMarketsByRace     = "markets_by_race"
	StmtMarketsDeactivate = "markets_deactivate"
	StmtMarketUpsert      = "market_upsert"

	StmtRaceResultsByRace = "race_results_by_race"
	StmtRaceResultInsert  = "race_result_insert"

	StmtBetsPendingByRace = "bets_pending_by_race"
	StmtBetsByUserRace    = "bets_by_user_race"
	StmtBetSettle         = "bet_settle"
	StmtBetInsert         = "bet_insert"
	StmtBetsPendingStake  = "bets_pending_stake"
	StmtBetSlipLock       = "bet_slip_lock"
	StmtBetsPendingCount  = "bets_pending_count"

	StmtMemberGet       = "member_get"
	StmtMemberAddPoints = "member_add_points"
	StmtMembersByLeague = "members_by_league"
	StmtWinnerUpsert    = "winner_upsert"
	StmtWinnersByRace   = "winners_by_race"
)

const raceCols = `id::text, season, round, slug, name,
	COALESCE(country, ''), COALESCE(circuit, ''), COALESCE(venue_name, ''), COALESCE(city, ''),
	COALESCE(race_description, ''), COALESCE(image_url, ''), COALESCE(banner_url, ''),
	COALESCE(poster_url, ''), COALESCE(highlights_url, ''), COALESCE(sportsdb_event_id, ''),
	start_time, lock_time, lock_time_override, status, result_revision, updated_at`

const marketCols = `id::text, race_id::text, provider, provider_market_id, market_type,
	selection_key, selection_label, decimal_odds, is_active, fetched_at`

const betCols = `id::text, user_id::text, league_id::text, race_id::text, market_id::text,
	selection_key, stake, decimal_odds_snapshot, status, gross_return, net_profit, placed_at, settled_at`

const memberCols = `league_id::text, user_id::text, role, season_points, joined_at`

var statements = map[string]string{
	StmtHealthCheck: "SELECT 1",

	// Races
	StmtRaceByID:      "SELECT " + raceCols + " FROM races WHERE id = $1",
	StmtRacesBySeason: "SELECT " + raceCols + " FROM races WHERE season = $1 ORDER BY round",
	StmtRacesList: "SELECT " + raceCols + ` FROM races
		WHERE ($1::text = '' OR status = $1::text) AND ($2::int = 0 OR season = $2::int)
		ORDER BY start_time LIMIT $3`,

	// Status never regresses on re-ingest: anything past scheduled is kept,
	// and result_revision is left alone.
	StmtRaceUpsert: `INSERT INTO races (season, round, slug, name, country, circuit, venue_name, city,
			race_description, image_url, banner_url, poster_url, highlights_url, sportsdb_event_id,
			start_time, lock_time, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
			NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''),
			$15, $16, $17)
		ON CONFLICT (season, round) DO UPDATE SET
			slug = EXCLUDED.slug,
			name = EXCLUDED.name,
			country = COALESCE(EXCLUDED.country, races.country),
			circuit = COALESCE(EXCLUDED.circuit, races.circuit),
			venue_name = COALESCE(EXCLUDED.venue_name, races.venue_name),
			city = COALESCE(EXCLUDED.city, races.city),
			race_description = COALESCE(EXCLUDED.race_description, races.race_description),
			image_url = COALESCE(EXCLUDED.image_url, races.image_url),
			banner_url = COALESCE(EXCLUDED.banner_url, races.banner_url),
			poster_url = COALESCE(EXCLUDED.poster_url, races.poster_url),
			highlights_url = COALESCE(EXCLUDED.highlights_url, races.highlights_url),
			sportsdb_event_id = COALESCE(EXCLUDED.sportsdb_event_id, races.sportsdb_event_id),
			start_time = EXCLUDED.start_time,
			lock_time = COALESCE(races.lock_time_override, EXCLUDED.lock_time),
			status = CASE
				WHEN races.status <> 'scheduled' THEN races.status
				WHEN races.lock_time_override IS NOT NULL AND races.lock_time_override > $18 THEN 'scheduled'
				WHEN races.lock_time_override IS NOT NULL THEN 'locked'
				ELSE EXCLUDED.status END,
			updated_at = NOW()`,
	StmtRacesLockDue: `UPDATE races SET status = 'locked', updated_at = NOW()
		WHERE status = 'scheduled' AND lock_time <= $1`,
	StmtSweepCandidates: "SELECT " + raceCols + ` FROM races
		WHERE status IN ('locked', 'settling') AND start_time <= $1
		ORDER BY start_time ASC LIMIT $2`,
	StmtRaceMarkSettling: `UPDATE races SET status = 'settling', updated_at = NOW()
		WHERE id = $1 AND status <> 'settled'`,
	StmtRaceMarkSettled: `UPDATE races SET status = 'settled', result_revision = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'settling'`,
	StmtRaceBumpRevision: `UPDATE races SET result_revision = $3, updated_at = NOW()
		WHERE id = $1 AND result_revision = $2`,
	StmtRaceStatusCounts: "SELECT status, COUNT(*) FROM races GROUP BY status",
	StmtOverdueRaces: `SELECT id::text FROM races
		WHERE status IN ('locked', 'settling') AND start_time <= $1
		ORDER BY start_time ASC LIMIT $2`,
	StmtLatestSettledRace: "SELECT " + raceCols + ` FROM races
		WHERE status = 'settled' ORDER BY updated_at DESC LIMIT 1`,

	// Markets
	StmtMarketsByRace: "SELECT " + marketCols + ` FROM markets
		WHERE race_id = $1 AND (is_active OR $2::bool)
		ORDER BY market_type, decimal_odds, selection_key`,
	StmtMarketsDeactivate: `UPDATE markets SET is_active = FALSE
		WHERE race_id = $1 AND provider = $2 AND is_active`,
	StmtMarketUpsert: `INSERT INTO markets (race_id, provider, provider_market_id, market_type,
			selection_key, selection_label, decimal_odds, is_active, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
		ON CONFLICT (provider, provider_market_id, selection_key) DO UPDATE SET
			race_id = EXCLUDED.race_id,
			market_type = EXCLUDED.market_type,
			selection_label = EXCLUDED.selection_label,
			decimal_odds = EXCLUDED.decimal_odds,
			is_active = TRUE,
			fetched_at = EXCLUDED.fetched_at`,

	// Results
	StmtRaceResultsByRace: `SELECT race_id::text, result_key, result_value, source, revision, created_at
		FROM race_results WHERE race_id = $1 ORDER BY revision, id`,
	StmtRaceResultInsert: `INSERT INTO race_results (race_id, result_key, result_value, source, revision, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,

	// Bets
	StmtBetsPendingByRace: "SELECT " + betCols + ` FROM bets
		WHERE race_id = $1 AND status = 'pending' ORDER BY placed_at, id`,
	StmtBetsByUserRace: "SELECT " + betCols + ` FROM bets
		WHERE user_id = $1 AND race_id = $2 ORDER BY placed_at, id`,
	StmtBetSettle: `UPDATE bets SET status = $2, gross_return = $3, net_profit = $4, settled_at = $5
		WHERE id = $1 AND status = 'pending'`,
	StmtBetInsert: `INSERT INTO bets (id, user_id, league_id, race_id, market_id, selection_key,
			stake, decimal_odds_snapshot, status, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9)`,
	StmtBetsPendingStake: `SELECT COALESCE(SUM(stake), 0) FROM bets
		WHERE user_id = $1 AND league_id = $2 AND race_id = $3 AND status = 'pending'`,
	StmtBetSlipLock:      "SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))",
	StmtBetsPendingCount: "SELECT COUNT(*) FROM bets WHERE status = 'pending' AND race_id::text = ANY($1::text[])",

	// Leagues
	StmtMemberGet: "SELECT " + memberCols + " FROM league_members WHERE league_id = $1 AND user_id = $2",
	StmtMemberAddPoints: `UPDATE league_members SET season_points = ROUND(season_points + $3, 2)
		WHERE league_id = $1 AND user_id = $2 RETURNING season_points`,
	StmtMembersByLeague: "SELECT " + memberCols + ` FROM league_members
		WHERE league_id = $1 ORDER BY season_points DESC, joined_at ASC, user_id ASC`,
	StmtWinnerUpsert: `INSERT INTO race_league_winners (race_id, league_id, winner_user_id, race_points, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (race_id, league_id) DO UPDATE SET
			winner_user_id = EXCLUDED.winner_user_id,
			race_points = EXCLUDED.race_points,
			updated_at = EXCLUDED.updated_at`,
	StmtWinnersByRace: `SELECT race_id::text, league_id::text, winner_user_id::text, race_points, updated_at
		FROM race_league_winners WHERE race_id = $1 ORDER BY league_id`,
}
