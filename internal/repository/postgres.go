package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"propsearch/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const listingColumns = `property_id, title, description, property_type, status, price, bedrooms, bathrooms,
	square_feet, city, state, neighborhood, amenities, year_built, days_on_market, listing_agent,
	created_at, updated_at`

var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// postgresColumns maps predicate fields onto table columns
var postgresColumns = map[model.Field]string{
	model.FieldPrice:        "price",
	model.FieldBedrooms:     "bedrooms",
	model.FieldBathrooms:    "bathrooms",
	model.FieldSquareFeet:   "square_feet",
	model.FieldCity:         "city",
	model.FieldState:        "state",
	model.FieldNeighborhood: "neighborhood",
	model.FieldPropertyType: "property_type",
	model.FieldStatus:       "status",
	model.FieldAmenities:    "amenities",
}

// PostgresRepository is a pgvector-backed PropertyIndex
type PostgresRepository struct {
	db    *sqlx.DB
	table string
}

// listingRow is the flat scan target for a listing row
type listingRow struct {
	PropertyID    string          `db:"property_id"`
	Title         string          `db:"title"`
	Description   string          `db:"description"`
	PropertyType  string          `db:"property_type"`
	Status        string          `db:"status"`
	Price         int64           `db:"price"`
	Bedrooms      float64         `db:"bedrooms"`
	Bathrooms     float64         `db:"bathrooms"`
	SquareFeet    *int64          `db:"square_feet"`
	City          string          `db:"city"`
	State         string          `db:"state"`
	Neighborhood  string          `db:"neighborhood"`
	Amenities     model.JSONArray `db:"amenities"`
	YearBuilt     *int            `db:"year_built"`
	DaysOnMarket  int             `db:"days_on_market"`
	ListingAgent  string          `db:"listing_agent"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
	SemanticScore float64         `db:"semantic_score"`
}

func (r *listingRow) toListing() model.PropertyListing {
	return model.PropertyListing{
		Title:       r.Title,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Metadata: model.PropertyMetadata{
			PropertyID:   r.PropertyID,
			PropertyType: model.PropertyType(r.PropertyType),
			Status:       model.ListingStatus(r.Status),
			Price:        r.Price,
			Bedrooms:     r.Bedrooms,
			Bathrooms:    r.Bathrooms,
			SquareFeet:   r.SquareFeet,
			City:         r.City,
			State:        r.State,
			Neighborhood: r.Neighborhood,
			Amenities:    r.Amenities,
			YearBuilt:    r.YearBuilt,
			DaysOnMarket: r.DaysOnMarket,
			ListingAgent: r.ListingAgent,
		},
	}
}

// NewPostgresRepository connects to PostgreSQL and configures the pool
func NewPostgresRepository(dsn, table string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db, table: table}, nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// EnsureSchema creates the vector extension and listing table when missing.
// No ANN index is created, so every query is an exact scan and the WHERE clause
// is applied before LIMIT.
func (r *PostgresRepository) EnsureSchema(ctx context.Context, dimensions int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			property_id    TEXT PRIMARY KEY,
			title          TEXT NOT NULL DEFAULT '',
			description    TEXT NOT NULL DEFAULT '',
			property_type  TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'active',
			price          BIGINT NOT NULL,
			bedrooms       DOUBLE PRECISION NOT NULL DEFAULT 0,
			bathrooms      DOUBLE PRECISION NOT NULL DEFAULT 0,
			square_feet    BIGINT,
			city           TEXT NOT NULL,
			state          TEXT NOT NULL,
			neighborhood   TEXT NOT NULL DEFAULT '',
			amenities      JSONB NOT NULL DEFAULT '[]'::jsonb,
			year_built     INTEGER,
			days_on_market INTEGER NOT NULL DEFAULT 0,
			listing_agent  TEXT NOT NULL DEFAULT '',
			embedding      vector(%d) NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, r.table, dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_city_idx ON %s (LOWER(city))`, r.table, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_amenities_idx ON %s USING GIN (amenities)`, r.table, r.table),
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert writes listings and their vectors in one transaction
func (r *PostgresRepository) Upsert(ctx context.Context, listings []model.IndexedListing) error {
	if len(listings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (property_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			property_type = EXCLUDED.property_type,
			status = EXCLUDED.status,
			price = EXCLUDED.price,
			bedrooms = EXCLUDED.bedrooms,
			bathrooms = EXCLUDED.bathrooms,
			square_feet = EXCLUDED.square_feet,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			neighborhood = EXCLUDED.neighborhood,
			amenities = EXCLUDED.amenities,
			year_built = EXCLUDED.year_built,
			days_on_market = EXCLUDED.days_on_market,
			listing_agent = EXCLUDED.listing_agent,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at`, r.table, listingColumns))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, item := range listings {
		l := item.Listing
		m := l.Metadata
		_, err := stmt.ExecContext(ctx,
			m.PropertyID, l.Title, l.Description, string(m.PropertyType), string(m.Status),
			m.Price, m.Bedrooms, m.Bathrooms, m.SquareFeet, m.City, m.State, m.Neighborhood,
			m.Amenities, m.YearBuilt, m.DaysOnMarket, m.ListingAgent, l.CreatedAt, l.UpdatedAt,
			pgvector.NewVector(item.Vector),
		)
		if err != nil {
			return fmt.Errorf("property_id %s: %w", m.PropertyID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query returns the top-k listings by cosine similarity among rows matching the predicate
func (r *PostgresRepository) Query(ctx context.Context, q model.VectorQuery) ([]model.Candidate, error) {
	query, args, err := r.buildVectorQuery(q)
	if err != nil {
		return nil, err
	}

	var rows []listingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	candidates := make([]model.Candidate, 0, len(rows))
	for i := range rows {
		candidates = append(candidates, model.Candidate{
			Listing:       rows[i].toListing(),
			SemanticScore: rows[i].SemanticScore,
		})
	}
	SortCandidates(candidates)
	return candidates, nil
}

func (r *PostgresRepository) buildVectorQuery(q model.VectorQuery) (string, []interface{}, error) {
	args := []interface{}{pgvector.NewVector(q.Vector)}
	where, args, err := buildPredicateSQL(q.Predicate, args)
	if err != nil {
		return "", nil, err
	}

	args = append(args, q.MinScore)
	where = append(where, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", len(args)))
	args = append(args, q.TopK)

	query := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS semantic_score
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $1 ASC, property_id ASC
		LIMIT $%d`, listingColumns, r.table, strings.Join(where, " AND "), len(args))
	return query, args, nil
}

// buildPredicateSQL renders each clause as a parameterised condition, numbering
// placeholders after the arguments already in args.
func buildPredicateSQL(p model.Predicate, args []interface{}) ([]string, []interface{}, error) {
	var where []string
	for _, c := range p.Clauses {
		column, ok := postgresColumns[c.Field]
		if !ok {
			return nil, nil, fmt.Errorf("%w: field %q", ErrUnsupportedClause, c.Field)
		}
		switch c.Op {
		case model.OpEq:
			args = append(args, c.Text)
			where = append(where, fmt.Sprintf("LOWER(%s) = $%d", column, len(args)))
		case model.OpGte:
			args = append(args, c.Number)
			where = append(where, fmt.Sprintf("%s >= $%d", column, len(args)))
		case model.OpLte:
			args = append(args, c.Number)
			where = append(where, fmt.Sprintf("%s <= $%d", column, len(args)))
		case model.OpContainsAll:
			raw, err := json.Marshal(c.Values)
			if err != nil {
				return nil, nil, err
			}
			args = append(args, string(raw))
			where = append(where, fmt.Sprintf("%s @> $%d::jsonb", column, len(args)))
		default:
			return nil, nil, fmt.Errorf("%w: op %q", ErrUnsupportedClause, c.Op)
		}
	}
	if len(where) == 0 {
		where = append(where, "TRUE")
	}
	return where, args, nil
}

// Get returns one listing by property id
func (r *PostgresRepository) Get(ctx context.Context, id string) (*model.PropertyListing, error) {
	var row listingRow
	query := fmt.Sprintf(`SELECT %s, 0::float8 AS semantic_score FROM %s WHERE property_id = $1`, listingColumns, r.table)
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	listing := row.toListing()
	return &listing, nil
}

// Delete removes listings by property id
func (r *PostgresRepository) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE property_id = ANY($1)`, r.table)
	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to delete listings: %w", err)
	}
	return nil
}

// Stats counts indexed listings
func (r *PostgresRepository) Stats(ctx context.Context) (*model.IndexStats, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)); err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}
	return &model.IndexStats{Backend: "postgres", TotalProperties: total}, nil
}
