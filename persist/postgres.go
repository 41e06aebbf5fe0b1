package persist

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v4/stdlib" // register the pgx database/sql driver
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

var ErrPlayerNotFound = eris.New("player not found")

const schema = `
CREATE TABLE IF NOT EXISTS players (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	wins          INT  NOT NULL DEFAULT 0,
	losses        INT  NOT NULL DEFAULT 0,
	total_matches INT  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS matches (
	id               BIGSERIAL PRIMARY KEY,
	team_alpha_score INT  NOT NULL,
	team_bravo_score INT  NOT NULL,
	winner_team      TEXT NOT NULL,
	ended_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS match_players (
	player_id BIGINT NOT NULL REFERENCES players (id),
	match_id  BIGINT NOT NULL REFERENCES matches (id),
	team      TEXT   NOT NULL,
	PRIMARY KEY (player_id, match_id)
);
`

// PostgresStore is the relational MatchStore. Open it with a pgx DSN.
type PostgresStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func OpenPostgres(dsn string, log zerolog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "open postgres")
	}
	return &PostgresStore{db: db, log: log}, nil
}

// NewPostgresStore wraps an existing handle; used by tests.
func NewPostgresStore(db *sql.DB, log zerolog.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

// EnsureSchema creates the stats tables when they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return eris.Wrap(err, "apply schema")
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// SaveMatch records the match and bumps every participant's tallies in one
// transaction.
func (s *PostgresStore) SaveMatch(ctx context.Context, result MatchResult) (SaveOutcome, error) {
	winnerTeam := Winner(result.Score)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveOutcome{}, eris.Wrap(err, "begin save match")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var matchID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO matches (team_alpha_score, team_bravo_score, winner_team)
		 VALUES ($1, $2, $3) RETURNING id`,
		result.Score.Alpha, result.Score.Bravo, winnerTeam,
	).Scan(&matchID)
	if err != nil {
		return SaveOutcome{}, eris.Wrap(err, "insert match")
	}

	for _, mp := range result.Players {
		playerID, err := s.getOrCreatePlayer(ctx, tx, mp.Name)
		if err != nil {
			return SaveOutcome{}, err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO match_players (player_id, match_id, team) VALUES ($1, $2, $3)`,
			playerID, matchID, string(mp.Team),
		); err != nil {
			return SaveOutcome{}, eris.Wrapf(err, "link player %s to match", mp.Name)
		}

		won := winnerTeam != WinnerDraw && string(mp.Team) == winnerTeam
		lost := winnerTeam != WinnerDraw && string(mp.Team) != winnerTeam
		if _, err := tx.ExecContext(ctx,
			`UPDATE players
			 SET wins = wins + $1, losses = losses + $2, total_matches = total_matches + 1
			 WHERE id = $3`,
			boolToInt(won), boolToInt(lost), playerID,
		); err != nil {
			return SaveOutcome{}, eris.Wrapf(err, "update tallies for %s", mp.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return SaveOutcome{}, eris.Wrap(err, "commit save match")
	}
	return SaveOutcome{MatchID: matchID, WinnerTeam: winnerTeam}, nil
}

func (s *PostgresStore) getOrCreatePlayer(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO players (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "get or create player %s", name)
	}
	return id, nil
}

// PlayerStats looks up one player's aggregate record by name.
func (s *PostgresStore) PlayerStats(ctx context.Context, name string) (PlayerStats, error) {
	var stats PlayerStats
	err := s.db.QueryRowContext(ctx,
		`SELECT name, wins, losses, total_matches FROM players WHERE name = $1`,
		name,
	).Scan(&stats.Name, &stats.Wins, &stats.Losses, &stats.TotalMatches)
	if err == sql.ErrNoRows {
		return PlayerStats{}, eris.Wrapf(ErrPlayerNotFound, "name %s", name)
	}
	if err != nil {
		return PlayerStats{}, eris.Wrapf(err, "query stats for %s", name)
	}
	return stats, nil
}

// Rankings returns the leaderboard ordered by wins, then total matches.
func (s *PostgresStore) Rankings(ctx context.Context, limit int) ([]PlayerStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, wins, losses, total_matches
		 FROM players
		 ORDER BY wins DESC, total_matches DESC, name ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "query rankings")
	}
	defer rows.Close()

	var out []PlayerStats
	for rows.Next() {
		var stats PlayerStats
		if err := rows.Scan(&stats.Name, &stats.Wins, &stats.Losses, &stats.TotalMatches); err != nil {
			return nil, eris.Wrap(err, "scan ranking row")
		}
		out = append(out, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate rankings")
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ MatchStore = (*PostgresStore)(nil)
