package services

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Document is one unit of ingested content with its metadata. Splitters
// consume and produce Documents; loaders produce them from raw files.
type Document struct {
	PageContent string
	Metadata    map[string]interface{}
}

// Splitter cuts documents into overlapping chunks for embedding.
type Splitter interface {
	SplitDocuments(docs []Document) ([]Document, error)
}

// NewSplitter resolves the configured splitter name. An empty name means
// character splitting. An unknown name is a configuration error.
func NewSplitter(name string, chunkSize, chunkOverlap int, tiktokenEncoding string) (Splitter, error) {
	switch name {
	case "", "character":
		return &CharacterSplitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}, nil
	case "token":
		return &TokenSplitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap, Encoding: tiktokenEncoding}, nil
	default:
		return nil, fmt.Errorf("unknown text splitter: %s", name)
	}
}

// CharacterSplitter cuts text into fixed-size character windows with
// overlap. Each chunk's metadata records its start offset in the source
// under "start_index".
type CharacterSplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

func (s *CharacterSplitter) SplitDocuments(docs []Document) ([]Document, error) {
	step := s.ChunkSize - s.ChunkOverlap
	if step <= 0 {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", s.ChunkOverlap, s.ChunkSize)
	}

	var chunks []Document
	for _, doc := range docs {
		runes := []rune(doc.PageContent)
		for start := 0; start < len(runes); start += step {
			end := start + s.ChunkSize
			if end > len(runes) {
				end = len(runes)
			}

			content := strings.TrimSpace(string(runes[start:end]))
			if content == "" {
				continue
			}
			chunks = append(chunks, Document{
				PageContent: content,
				Metadata:    chunkMetadata(doc.Metadata, start),
			})

			if end == len(runes) {
				break
			}
		}
	}
	return chunks, nil
}

// TokenSplitter cuts text into fixed-size token windows with overlap,
// using a tiktoken encoding. Start offsets are token positions.
type TokenSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Encoding     string
}

func (s *TokenSplitter) SplitDocuments(docs []Document) ([]Document, error) {
	step := s.ChunkSize - s.ChunkOverlap
	if step <= 0 {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", s.ChunkOverlap, s.ChunkSize)
	}

	encoding := s.Encoding
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %s: %w", encoding, err)
	}

	var chunks []Document
	for _, doc := range docs {
		tokens := enc.Encode(doc.PageContent, nil, nil)
		for start := 0; start < len(tokens); start += step {
			end := start + s.ChunkSize
			if end > len(tokens) {
				end = len(tokens)
			}

			content := strings.TrimSpace(enc.Decode(tokens[start:end]))
			if content == "" {
				continue
			}
			chunks = append(chunks, Document{
				PageContent: content,
				Metadata:    chunkMetadata(doc.Metadata, start),
			})

			if end == len(tokens) {
				break
			}
		}
	}
	return chunks, nil
}

// chunkMetadata copies the source metadata and records the chunk's start
// offset, so concurrent chunks never share a map.
func chunkMetadata(source map[string]interface{}, startIndex int) map[string]interface{} {
	metadata := make(map[string]interface{}, len(source)+1)
	for k, v := range source {
		metadata[k] = v
	}
	metadata["start_index"] = startIndex
	return metadata
}
