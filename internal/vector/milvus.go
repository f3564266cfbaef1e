package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Field names for Milvus collections.
const (
	milvusFieldID       = "id"
	milvusFieldText     = "text"
	milvusFieldMetadata = "metadata"
	milvusFieldVector   = "vector"
)

// MilvusStore implements Store on top of the Milvus gRPC SDK. Collections
// use a cosine-metric HNSW index, so search scores are similarities and
// higher is better.
type MilvusStore struct {
	client client.Client
	dim    int
}

func NewMilvusStore(ctx context.Context, addr string, dim int) (*MilvusStore, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: addr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}

	return &MilvusStore{
		client: c,
		dim:    dim,
	}, nil
}

func (s *MilvusStore) Close() error {
	return s.client.Close()
}

func (s *MilvusStore) HasCollection(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.HasCollection(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("failed to check if collection exists: %w", err)
	}
	return exists, nil
}

func (s *MilvusStore) DeleteCollection(ctx context.Context, collection string) error {
	return s.client.DropCollection(ctx, collection)
}

func (s *MilvusStore) ensureCollection(ctx context.Context, collection string, dim int) error {
	exists, err := s.HasCollection(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: collection,
		Description:    "Embedded document chunks",
		Fields: []*entity.Field{
			{
				Name:       milvusFieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       milvusFieldText,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:     milvusFieldMetadata,
				DataType: entity.FieldTypeJSON,
			},
			{
				Name:     milvusFieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", dim),
				},
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, 1); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, 16, 200)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := s.client.CreateIndex(ctx, collection, milvusFieldVector, idx, false); err != nil {
		return fmt.Errorf("failed to create index on vector field: %w", err)
	}

	if err := s.client.LoadCollection(ctx, collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// milvusExpr builds an exact-match boolean expression over JSON metadata keys.
func milvusExpr(filter map[string]interface{}) string {
	parts := make([]string, 0, len(filter))
	for key, value := range filter {
		switch v := value.(type) {
		case string:
			parts = append(parts, fmt.Sprintf(`%s["%s"] == "%s"`, milvusFieldMetadata, key, v))
		default:
			parts = append(parts, fmt.Sprintf(`%s["%s"] == %v`, milvusFieldMetadata, key, v))
		}
	}
	return strings.Join(parts, " and ")
}

func (s *MilvusStore) Search(ctx context.Context, collection string, vectors [][]float32, limit int) (*SearchResult, error) {
	sp, err := entity.NewIndexHNSWSearchParam(100)
	if err != nil {
		return nil, fmt.Errorf("failed to create search parameters: %w", err)
	}

	queryVectors := make([]entity.Vector, len(vectors))
	for i, v := range vectors {
		queryVectors[i] = entity.FloatVector(v)
	}

	raw, err := s.client.Search(
		ctx,
		collection,
		nil,
		"",
		[]string{milvusFieldID, milvusFieldText, milvusFieldMetadata},
		queryVectors,
		milvusFieldVector,
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}

	result := &SearchResult{}
	for _, hits := range raw {
		ids, ok := hits.IDs.(*entity.ColumnVarChar)
		if !ok {
			continue
		}

		texts, _ := hits.Fields.GetColumn(milvusFieldText).(*entity.ColumnVarChar)
		metadatas, _ := hits.Fields.GetColumn(milvusFieldMetadata).(*entity.ColumnJSONBytes)

		for i := 0; i < hits.ResultCount; i++ {
			result.IDs = append(result.IDs, ids.Data()[i])
			result.Distances = append(result.Distances, float64(hits.Scores[i]))

			text := ""
			if texts != nil && i < len(texts.Data()) {
				text = texts.Data()[i]
			}
			result.Documents = append(result.Documents, text)

			metadata := map[string]interface{}{}
			if metadatas != nil && i < len(metadatas.Data()) {
				json.Unmarshal(metadatas.Data()[i], &metadata)
			}
			result.Metadatas = append(result.Metadatas, metadata)
		}
	}
	return result, nil
}

func (s *MilvusStore) Query(ctx context.Context, collection string, filter map[string]interface{}, limit int) (*GetResult, error) {
	exists, err := s.HasCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &GetResult{}, nil
	}

	expr := milvusExpr(filter)
	if expr == "" {
		expr = fmt.Sprintf(`%s != ""`, milvusFieldID)
	}

	opts := []client.SearchQueryOptionFunc{}
	if limit > 0 {
		opts = append(opts, client.WithLimit(int64(limit)))
	}

	raw, err := s.client.Query(
		ctx,
		collection,
		nil,
		expr,
		[]string{milvusFieldID, milvusFieldText, milvusFieldMetadata},
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	var ids, texts *entity.ColumnVarChar
	var metadatas *entity.ColumnJSONBytes
	for _, col := range raw {
		switch col.Name() {
		case milvusFieldID:
			ids, _ = col.(*entity.ColumnVarChar)
		case milvusFieldText:
			texts, _ = col.(*entity.ColumnVarChar)
		case milvusFieldMetadata:
			metadatas, _ = col.(*entity.ColumnJSONBytes)
		}
	}

	result := &GetResult{}
	if ids == nil {
		return result, nil
	}
	for i := range ids.Data() {
		result.IDs = append(result.IDs, ids.Data()[i])

		text := ""
		if texts != nil && i < len(texts.Data()) {
			text = texts.Data()[i]
		}
		result.Documents = append(result.Documents, text)

		metadata := map[string]interface{}{}
		if metadatas != nil && i < len(metadatas.Data()) {
			json.Unmarshal(metadatas.Data()[i], &metadata)
		}
		result.Metadatas = append(result.Metadatas, metadata)
	}
	return result, nil
}

func (s *MilvusStore) Get(ctx context.Context, collection string) (*GetResult, error) {
	return s.Query(ctx, collection, nil, 0)
}

func (s *MilvusStore) Insert(ctx context.Context, collection string, items []Item) error {
	return s.write(ctx, collection, items, false)
}

func (s *MilvusStore) Upsert(ctx context.Context, collection string, items []Item) error {
	return s.write(ctx, collection, items, true)
}

func (s *MilvusStore) write(ctx context.Context, collection string, items []Item, upsert bool) error {
	if len(items) == 0 {
		return nil
	}

	dim := s.dim
	if dim <= 0 {
		dim = len(items[0].Vector)
	}
	if err := s.ensureCollection(ctx, collection, dim); err != nil {
		return err
	}

	ids := make([]string, len(items))
	texts := make([]string, len(items))
	metadatas := make([][]byte, len(items))
	vectors := make([][]float32, len(items))
	for i, item := range items {
		ids[i] = item.ID
		texts[i] = item.Text
		vectors[i] = item.Vector

		metadataBytes := []byte("{}")
		if item.Metadata != nil {
			if data, err := json.Marshal(item.Metadata); err == nil {
				metadataBytes = data
			}
		}
		metadatas[i] = metadataBytes
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(milvusFieldID, ids),
		entity.NewColumnVarChar(milvusFieldText, texts),
		entity.NewColumnJSONBytes(milvusFieldMetadata, metadatas),
		entity.NewColumnFloatVector(milvusFieldVector, dim, vectors),
	}

	var err error
	if upsert {
		_, err = s.client.Upsert(ctx, collection, "", columns...)
	} else {
		_, err = s.client.Insert(ctx, collection, "", columns...)
	}
	if err != nil {
		return fmt.Errorf("failed to write to collection: %w", err)
	}

	if err := s.client.Flush(ctx, collection, false); err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	return nil
}

func (s *MilvusStore) Delete(ctx context.Context, collection string, ids []string, filter map[string]interface{}) error {
	if len(ids) > 0 {
		quoted := make([]string, len(ids))
		for i, id := range ids {
			quoted[i] = fmt.Sprintf("%q", id)
		}
		expr := fmt.Sprintf("%s in [%s]", milvusFieldID, strings.Join(quoted, ", "))
		if err := s.client.Delete(ctx, collection, "", expr); err != nil {
			return fmt.Errorf("failed to delete by ids: %w", err)
		}
	}
	if len(filter) > 0 {
		if err := s.client.Delete(ctx, collection, "", milvusExpr(filter)); err != nil {
			return fmt.Errorf("failed to delete by filter: %w", err)
		}
	}
	return nil
}

func (s *MilvusStore) Reset(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range collections {
		if err := s.client.DropCollection(ctx, col.Name); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", col.Name, err)
		}
	}
	return nil
}
