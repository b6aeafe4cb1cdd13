package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/mattn/go-sqlite3"
	"gwi.com/course-assistant/internal/logger"
	"gwi.com/course-assistant/internal/utils"
)

var ErrDuplicate = errors.New("record already exists")

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Collection is a named set of embedded documents with metadata.
type Collection interface {
	Insert(ctx context.Context, records ...Record) error
	Upsert(ctx context.Context, records ...Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Query(ctx context.Context, vector []float32, n int, where map[string]any) ([]Match, error)
	Count(ctx context.Context) (int, error)
	All(ctx context.Context) ([]Record, error)
	Reset(ctx context.Context) error
}

// SQLiteStore owns the database handle shared by its collections.
type SQLiteStore struct {
	db     *sql.DB
	logger *logger.Logger
}

func NewSQLiteStore(dataSourceName string, log *logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db, logger: log}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Collection returns the collection stored in table name, creating it if needed.
func (s *SQLiteStore) Collection(ctx context.Context, name string) (*SQLiteCollection, error) {
	if !tableName.MatchString(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}
	c := &SQLiteCollection{db: s.db, name: name, logger: s.logger.With("collection", name)}
	if err := c.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema for %s: %w", name, err)
	}
	return c, nil
}

type SQLiteCollection struct {
	db     *sql.DB
	name   string
	logger *logger.Logger
}

func (c *SQLiteCollection) initSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
        id TEXT PRIMARY KEY,
        document TEXT NOT NULL,
        metadata_json TEXT NOT NULL DEFAULT '{}',
        embedding_json TEXT, -- JSON array of float32
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );`, c.name)
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

func (c *SQLiteCollection) Insert(ctx context.Context, records ...Record) error {
	return c.write(ctx, "INSERT", records)
}

func (c *SQLiteCollection) Upsert(ctx context.Context, records ...Record) error {
	return c.write(ctx, "INSERT OR REPLACE", records)
}

func (c *SQLiteCollection) write(ctx context.Context, verb string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"%s INTO %s (id, document, metadata_json, embedding_json, created_at) VALUES (?, ?, ?, ?, ?)", verb, c.name))
	if err != nil {
		return fmt.Errorf("failed to prepare %s insert: %w", c.name, err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, rec := range records {
		metaBytes, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", rec.ID, err)
		}
		embeddingBytes, err := json.Marshal(rec.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding for %s: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Document, string(metaBytes), string(embeddingBytes), now); err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) &&
				(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
				return fmt.Errorf("%w: %s", ErrDuplicate, rec.ID)
			}
			return fmt.Errorf("failed to execute %s insert: %w", c.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s insert: %w", c.name, err)
	}
	return nil
}

// Get returns the record with the given id, or nil if there is none.
func (c *SQLiteCollection) Get(ctx context.Context, id string) (*Record, error) {
	row := c.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT id, document, metadata_json, embedding_json, created_at FROM %s WHERE id = ?", c.name), id)
	rec, err := c.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s record: %w", c.name, err)
	}
	return rec, nil
}

// All returns every record in insertion order.
func (c *SQLiteCollection) All(ctx context.Context) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, document, metadata_json, embedding_json, created_at FROM %s ORDER BY rowid", c.name))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.name, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := c.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", c.name, err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", c.name, err)
	}
	return records, nil
}

// Query returns up to n records matching every key in where, ordered by
// ascending cosine distance to vector.
func (c *SQLiteCollection) Query(ctx context.Context, vector []float32, n int, where map[string]any) ([]Match, error) {
	if n <= 0 {
		return nil, nil
	}
	records, err := c.All(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(records))
	for _, rec := range records {
		if !matchesWhere(rec.Metadata, where) {
			continue
		}
		if len(rec.Embedding) == 0 {
			c.logger.Warn("skipping record without embedding", "id", rec.ID)
			continue
		}
		dist, err := utils.CosineDistance(vector, rec.Embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to score record %s: %w", rec.ID, err)
		}
		matches = append(matches, Match{Record: rec, Distance: dist})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}

func (c *SQLiteCollection) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", c.name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.name, err)
	}
	return n, nil
}

// Reset drops and recreates the collection.
func (c *SQLiteCollection) Reset(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", c.name)); err != nil {
		return fmt.Errorf("failed to drop %s: %w", c.name, err)
	}
	if err := c.initSchema(ctx); err != nil {
		return fmt.Errorf("failed to recreate %s: %w", c.name, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *SQLiteCollection) scan(row rowScanner) (*Record, error) {
	var (
		rec           Record
		metadataJSON  string
		embeddingJSON sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Document, &metadataJSON, &embeddingJSON, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", rec.ID, err)
	}
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &rec.Embedding); err != nil {
			c.logger.Warn("failed to unmarshal embedding, record will not be searchable", "id", rec.ID, "error", err)
			rec.Embedding = nil
		}
	}
	return &rec, nil
}

// matchesWhere reports whether meta satisfies every equality in where.
// Numbers compare by value regardless of their Go type.
func matchesWhere(meta, where map[string]any) bool {
	for k, want := range where {
		got, ok := meta[k]
		if !ok {
			return false
		}
		if wf, ok := toFloat(want); ok {
			gf, ok := toFloat(got)
			if !ok || gf != wf {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
