package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"quizHelper/core"
	"quizHelper/utils"
)

// PgVectorStore ranks chunks inside PostgreSQL. Rows live in a temporary
// table bound to this connection and disappear when it closes. A pgx.Conn
// handles one query at a time, so every use of conn holds mu.
type PgVectorStore struct {
	mu    sync.Mutex
	conn  *pgx.Conn
	table string
}

func NewPgVectorStore(ctx context.Context, dbURL string) (*PgVectorStore, error) {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("enable pgvector extension: %w", err)
	}
	if err := pgxvec.RegisterTypes(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("register vector types: %w", err)
	}
	return &PgVectorStore{conn: conn, table: "kb_chunks_" + utils.NewID()}, nil
}

func (s *PgVectorStore) Kind() string { return "pgvector" }

func (s *PgVectorStore) tableName() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func (s *PgVectorStore) Upsert(ctx context.Context, chunks []core.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := len(chunks[0].Embedding)
	create := fmt.Sprintf(`
		CREATE TEMP TABLE IF NOT EXISTS %s (
			chunk_index INTEGER PRIMARY KEY,
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.tableName(), dim)
	if _, err := s.conn.Exec(ctx, create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (chunk_index, text, embedding) VALUES ($1, $2, $3)
		ON CONFLICT (chunk_index) DO UPDATE SET text = EXCLUDED.text, embedding = EXCLUDED.embedding`, s.tableName())
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(insert, c.ChunkIndex, c.Text, pgvector.NewVector(c.Embedding))
	}
	br := s.conn.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert chunk %d: %w", chunks[i].ChunkIndex, err)
		}
	}
	return br.Close()
}

func (s *PgVectorStore) Search(ctx context.Context, query []float32, k int) ([]core.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vec := pgvector.NewVector(query)
	rows, err := s.conn.Query(ctx, fmt.Sprintf(`
		SELECT chunk_index, text, 1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1, chunk_index
		LIMIT $2`, s.tableName()), vec, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := make([]core.Hit, 0, k)
	for rows.Next() {
		var h core.Hit
		if err := rows.Scan(&h.ChunkIndex, &h.Text, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortHits(hits)
	return hits, nil
}

func (s *PgVectorStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS "+s.tableName()); err != nil {
		s.conn.Close(ctx)
		return fmt.Errorf("drop table: %w", err)
	}
	return s.conn.Close(ctx)
}
