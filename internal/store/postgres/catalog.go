// Package postgres provides the Postgres-backed catalog store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medifacil/backend/internal/catalog"
	"github.com/medifacil/backend/internal/store"
)

// Config controls the connection pool and the full-text dictionary used for
// ranking. Connection settings are passed in explicitly; the store reads no
// process-wide state.
type Config struct {
	DSN             string
	Language        string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// CatalogStore implements store.Catalog on top of pgxpool.
//
// Expected schema:
//
//	CREATE TABLE medicines (
//		url TEXT PRIMARY KEY,
//		pharma TEXT NOT NULL,
//		name TEXT NOT NULL,
//		price NUMERIC,
//		url_image TEXT NOT NULL DEFAULT '',
//		availability TEXT NOT NULL DEFAULT '',
//		ingest_date DATE NOT NULL
//	);
//	CREATE TABLE pharmas (
//		pharma TEXT PRIMARY KEY,
//		location TEXT NOT NULL,
//		link_logo TEXT NOT NULL,
//		link TEXT NOT NULL
//	);
type CatalogStore struct {
	pool     pgxPool
	language string
}

var validLanguage = regexp.MustCompile(`^[a-z_]+$`)

// New connects a CatalogStore using the provided config.
func New(ctx context.Context, cfg Config) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newWithPool(pool, cfg.Language)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, language string) (*CatalogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newWithPool(pool, language)
}

func newWithPool(pool pgxPool, language string) (*CatalogStore, error) {
	if language == "" {
		language = "spanish"
	}
	if !validLanguage.MatchString(language) {
		return nil, fmt.Errorf("invalid text search language %q", language)
	}
	return &CatalogStore{pool: pool, language: language}, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertListing inserts or overwrites one catalog row keyed by URL. The
// conflict clause leaves url and pharma untouched on update.
func (s *CatalogStore) UpsertListing(ctx context.Context, listing catalog.Listing) error {
	query := `
INSERT INTO medicines (url, pharma, name, price, url_image, availability, ingest_date)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (url)
DO UPDATE SET
	name = EXCLUDED.name,
	price = EXCLUDED.price,
	url_image = EXCLUDED.url_image,
	availability = EXCLUDED.availability,
	ingest_date = EXCLUDED.ingest_date`

	_, err := s.pool.Exec(ctx, query,
		listing.URL,
		listing.Pharma,
		listing.Name,
		listing.Price,
		listing.ImageURL,
		listing.Availability,
		listing.IngestDate,
	)
	if err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}

// BestMatches issues the per-pharmacy top-1 ranked lookup for one term.
// Ranking is delegated to ts_rank_cd over the catalog language; rank ties
// break by most recent ingest_date, then url, so results are deterministic.
func (s *CatalogStore) BestMatches(ctx context.Context, term string) ([]catalog.Listing, error) {
	tsquery := BuildTSQuery(term)
	if tsquery == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`
SELECT pharma, name, price, url, url_image, availability, ingest_date
FROM (
	SELECT
		pharma, name, price, url, url_image, availability, ingest_date,
		ROW_NUMBER() OVER (
			PARTITION BY pharma
			ORDER BY ts_rank_cd(to_tsvector('%[1]s', name), query) DESC,
				ingest_date DESC,
				url ASC
		) AS rn
	FROM medicines, to_tsquery('%[1]s', $1) query
	WHERE to_tsvector('%[1]s', name) @@ query
) ranked
WHERE rn = 1
ORDER BY pharma`, s.language)

	rows, err := s.pool.Query(ctx, query, tsquery)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	defer rows.Close()

	var matches []catalog.Listing
	for rows.Next() {
		var m catalog.Listing
		if err := rows.Scan(
			&m.Pharma,
			&m.Name,
			&m.Price,
			&m.URL,
			&m.ImageURL,
			&m.Availability,
			&m.IngestDate,
		); err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match rows: %w", err)
	}
	return matches, nil
}

// GetPharmacy fetches reference metadata for one pharmacy.
func (s *CatalogStore) GetPharmacy(ctx context.Context, pharma string) (catalog.Pharmacy, error) {
	query := `
SELECT pharma, location, link_logo, link
FROM pharmas
WHERE pharma = $1`

	var p catalog.Pharmacy
	err := s.pool.QueryRow(ctx, query, pharma).Scan(&p.Name, &p.Location, &p.LinkLogo, &p.Link)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Pharmacy{}, store.ErrNotFound
		}
		return catalog.Pharmacy{}, fmt.Errorf("get pharmacy %q: %w", pharma, err)
	}
	return p, nil
}

var tsTokenJunk = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// BuildTSQuery turns a free-text term into a permissive OR query: whitespace
// tokens stripped of tsquery syntax characters and joined with "|". An empty
// result means the term had no usable tokens.
func BuildTSQuery(term string) string {
	var tokens []string
	for _, tok := range strings.Fields(term) {
		tok = tsTokenJunk.ReplaceAllString(tok, "")
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return strings.Join(tokens, " | ")
}
