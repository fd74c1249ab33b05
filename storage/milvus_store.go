package storage

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"quizHelper/core"
	"quizHelper/utils"
)

// milvusMaxVarChar is the largest VARCHAR Milvus accepts.
const milvusMaxVarChar = 65535

// MilvusVectorStore ranks chunks in a Milvus collection created for this
// store and dropped on Close. It uses a FLAT index so results are exact.
type MilvusVectorStore struct {
	mc   client.Client
	coll string
	dim  int
}

func NewMilvusVectorStore(ctx context.Context, addr, username, password string) (*MilvusVectorStore, error) {
	mc, err := client.NewClient(ctx, client.Config{Address: addr, Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	return &MilvusVectorStore{mc: mc, coll: "kb_" + utils.NewID()}, nil
}

func (s *MilvusVectorStore) Kind() string { return "milvus" }

func (s *MilvusVectorStore) ensureCollection(ctx context.Context, dim int) error {
	if s.dim != 0 {
		if dim != s.dim {
			return &core.DimensionMismatchError{Want: s.dim, Got: dim}
		}
		return nil
	}
	schema := entity.NewSchema().WithName(s.coll).WithDescription("transcript chunks")
	schema.WithField(entity.NewField().WithName("chunk_index").WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
	schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(milvusMaxVarChar))
	schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim)))

	if err := s.mc.CreateCollection(ctx, schema, 1); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	idx, err := entity.NewIndexFlat(entity.COSINE)
	if err != nil {
		return fmt.Errorf("new flat index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	s.dim = dim
	return nil
}

func (s *MilvusVectorStore) Upsert(ctx context.Context, chunks []core.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(chunks[0].Embedding)); err != nil {
		return err
	}

	ids := make([]int64, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	vectors := make([][]float32, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, int64(c.ChunkIndex))
		texts = append(texts, c.Text)
		vectors = append(vectors, c.Embedding)
	}

	if _, err := s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnInt64("chunk_index", ids),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	if err := s.mc.Flush(ctx, s.coll, false); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusVectorStore) Search(ctx context.Context, query []float32, k int) ([]core.Hit, error) {
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, err
	}
	res, err := s.mc.Search(ctx, s.coll, []string{}, "", []string{"text"},
		[]entity.Vector{entity.FloatVector(query)}, "vector", entity.COSINE, k, sp)
	if err != nil {
		return nil, err
	}

	var hits []core.Hit
	for _, r := range res {
		var textCol *entity.ColumnVarChar
		for _, c := range r.Fields {
			if vc, ok := c.(*entity.ColumnVarChar); ok && c.Name() == "text" {
				textCol = vc
			}
		}
		idCol, _ := r.IDs.(*entity.ColumnInt64)
		for i := 0; i < r.ResultCount; i++ {
			h := core.Hit{Score: float64(r.Scores[i])}
			if idCol != nil && i < idCol.Len() {
				h.ChunkIndex = int(idCol.Data()[i])
			}
			if textCol != nil && i < textCol.Len() {
				h.Text = textCol.Data()[i]
			}
			hits = append(hits, h)
		}
	}
	SortHits(hits)
	return hits, nil
}

func (s *MilvusVectorStore) Close(ctx context.Context) error {
	var dropErr error
	if s.dim != 0 {
		dropErr = s.mc.DropCollection(ctx, s.coll)
	}
	if err := s.mc.Close(); err != nil {
		return err
	}
	return dropErr
}
