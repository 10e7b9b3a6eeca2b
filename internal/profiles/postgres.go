package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the store can be exercised with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps profiles in a single table with the profile body as
// jsonb. It is the highest-priority backend when a database URL is
// configured.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgresStore verifies the connection before returning the store.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("profile_db")}, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, platform string) (*schemas.InterfaceProfile, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT profile FROM platform_profiles WHERE name = $1`, platform,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, schemas.NewProfileNotFound(platform)
	}
	if err != nil {
		return nil, fmt.Errorf("query profile %s: %w", platform, err)
	}
	var profile schemas.InterfaceProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", platform, err)
	}
	if profile.Name == "" {
		profile.Name = platform
	}
	return &profile, nil
}

func (s *PostgresStore) ListPlatforms(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM platform_profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list platforms: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan platform name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate platforms: %w", err)
	}
	return names, nil
}

// SavePositions stores the position set under the profile's
// interface_positions key, creating a minimal profile row when none exists.
func (s *PostgresStore) SavePositions(ctx context.Context, platform string, positions schemas.PositionSet) error {
	profile, err := s.GetProfile(ctx, platform)
	if err != nil {
		if !schemas.IsProfileNotFound(err) {
			return err
		}
		profile = &schemas.InterfaceProfile{Name: platform}
	}
	profile.Positions = positions.Clone()

	body, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", platform, err)
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO platform_profiles (name, profile, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (name) DO UPDATE SET
            profile = EXCLUDED.profile,
            updated_at = EXCLUDED.updated_at;
    `, platform, body)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", platform, err)
	}
	s.log.Info("Positions saved",
		zap.String("platform", platform),
		zap.Int("elements", len(positions)))
	return nil
}
