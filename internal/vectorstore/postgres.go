package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresStore is a pgvector-backed Store: an alternative to the Qdrant
// adapter for deployments that already run Postgres and would rather not
// operate a second stateful service for embeddings. One physical table per
// collection, named "vs_<collection>", holds id/vector/metadata columns.
type postgresStore struct {
	pool   *pgxpool.Pool
	metric string // cosine|l2|ip

	mu       sync.Mutex
	prepared map[string]bool
}

// NewPostgres dials dsn (a libpq connection string) and returns a Store that
// persists vectors via the pgvector extension. The extension and per-
// collection tables are created lazily in EnsureCollection.
func NewPostgres(ctx context.Context, dsn, metric string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres vector store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres vector store: %w", err)
	}
	return &postgresStore{
		pool:     pool,
		metric:   strings.ToLower(strings.TrimSpace(metric)),
		prepared: make(map[string]bool),
	}, nil
}

func (p *postgresStore) Close() error {
	p.pool.Close()
	return nil
}

func tableName(collection string) string {
	return "vs_" + strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, strings.ToLower(collection))
}

func (p *postgresStore) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prepared[collection] {
		return nil
	}
	if _, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	vecType := "vector"
	if dimension > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimension)
	}
	table := tableName(collection)
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  vec %s,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb
)`, table, vecType))
	if err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	p.prepared[collection] = true
	return nil
}

func (p *postgresStore) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	table := tableName(collection)
	for _, r := range records {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", r.ID, err)
		}
		_, err = p.pool.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (id, vec, metadata) VALUES ($1, $2::vector, $3)
ON CONFLICT (id) DO UPDATE SET vec = EXCLUDED.vec, metadata = EXCLUDED.metadata
`, table), r.ID, vectorLiteral(r.Vector), metadata)
		if err != nil {
			return fmt.Errorf("postgres upsert into %s: %w", table, err)
		}
	}
	return nil
}

func (p *postgresStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	table := tableName(collection)
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, table), ids)
	if err != nil {
		return fmt.Errorf("postgres delete from %s: %w", table, err)
	}
	return nil
}

// distanceOperator returns the pgvector operator for the store's metric and
// a score expression that normalizes to "higher is closer", matching the
// contract every other Store implementation honors.
func (p *postgresStore) distanceOperator() (op, scoreExpr string) {
	switch p.metric {
	case "l2", "euclidean":
		return "<->", "-(vec <-> $1::vector)"
	case "ip", "dot":
		return "<#>", "-(vec <#> $1::vector)"
	default:
		return "<=>", "1 - (vec <=> $1::vector)"
	}
}

// Query runs the ANN search in Postgres but applies the full Where algebra
// client-side: pgvector gives us ordering and a cheap top-N, but this
// module's nested $and/$or/$in operators have no direct JSONB translation
// worth maintaining for a secondary backend, so we over-fetch and filter in
// Go the same way memoryStore does.
func (p *postgresStore) Query(ctx context.Context, collection string, vector []float32, k int, where Where) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	op, scoreExpr := p.distanceOperator()
	table := tableName(collection)
	overfetch := k * 8
	if overfetch < 200 {
		overfetch = 200
	}
	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, %s AS score, metadata FROM %s ORDER BY vec %s $1::vector LIMIT $2`,
		scoreExpr, table, op,
	), vectorLiteral(vector), overfetch)
	if err != nil {
		return nil, fmt.Errorf("postgres query on %s: %w", table, err)
	}
	defer rows.Close()

	results := make([]Result, 0, k)
	for rows.Next() {
		var id string
		var score float64
		var metadataRaw []byte
		if err := rows.Scan(&id, &score, &metadataRaw); err != nil {
			return nil, fmt.Errorf("scan postgres query row: %w", err)
		}
		metadata, err := decodeMetadata(metadataRaw)
		if err != nil {
			return nil, err
		}
		if !where.Matches(metadata) {
			continue
		}
		results = append(results, Result{ID: id, Score: score, Metadata: metadata})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres query rows on %s: %w", table, err)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Get does not project the vec column: scanning pgvector's native type
// requires registering its codec with pgx, and none of this module's
// callers read the raw vector back from a metadata-only lookup. The
// returned Records carry a nil Vector.
func (p *postgresStore) Get(ctx context.Context, collection string, where Where) ([]Record, error) {
	table := tableName(collection)
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT id, metadata FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("postgres get from %s: %w", table, err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var id string
		var metadataRaw []byte
		if err := rows.Scan(&id, &metadataRaw); err != nil {
			return nil, fmt.Errorf("scan postgres get row: %w", err)
		}
		metadata, err := decodeMetadata(metadataRaw)
		if err != nil {
			return nil, err
		}
		if !where.Matches(metadata) {
			continue
		}
		out = append(out, Record{ID: id, Metadata: metadata})
	}
	return out, rows.Err()
}

func decodeMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return metadata, nil
}

func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}
