package models

// ProcessTextForm ingests raw text into a collection.
type ProcessTextForm struct {
	Name           string `json:"name" binding:"required"`
	Content        string `json:"content" binding:"required"`
	CollectionName string `json:"collection_name"`
}

// ProcessWebForm ingests a fetched web page into a collection.
type ProcessWebForm struct {
	URL            string `json:"url" binding:"required,url"`
	CollectionName string `json:"collection_name"`
}

// QueryDocForm queries a single collection. K and R override the global
// query settings when set; Hybrid forces hybrid retrieval on or off.
type QueryDocForm struct {
	CollectionName string   `json:"collection_name" binding:"required"`
	Query          string   `json:"query" binding:"required"`
	K              *int     `json:"k"`
	R              *float64 `json:"r"`
	Hybrid         *bool    `json:"hybrid"`
}

// QueryCollectionForm queries several collections and merges the results.
type QueryCollectionForm struct {
	CollectionNames []string `json:"collection_names" binding:"required"`
	Query           string   `json:"query" binding:"required"`
	K               *int     `json:"k"`
	R               *float64 `json:"r"`
	Hybrid          *bool    `json:"hybrid"`
}

// DeleteEntriesForm removes one file's chunks from a collection.
type DeleteEntriesForm struct {
	CollectionName string `json:"collection_name" binding:"required"`
	FileID         string `json:"file_id" binding:"required"`
}

// EmbeddingConfigForm updates the embedding engine at runtime.
type EmbeddingConfigForm struct {
	Engine    string `json:"embedding_engine"`
	Model     string `json:"embedding_model" binding:"required"`
	URL       string `json:"url"`
	Key       string `json:"key"`
	BatchSize int    `json:"embedding_batch_size"`
}

// QuerySettingsForm updates the retrieval query defaults at runtime.
type QuerySettingsForm struct {
	K      *int     `json:"k"`
	R      *float64 `json:"r"`
	Hybrid *bool    `json:"hybrid"`
}

// ConfigUpdateForm updates the chunking configuration at runtime.
type ConfigUpdateForm struct {
	ChunkSize    *int    `json:"chunk_size"`
	ChunkOverlap *int    `json:"chunk_overlap"`
	TextSplitter *string `json:"text_splitter"`
}
