package services

import (
	"strings"
	"testing"
)

func TestCharacterSplitterChunksWithOverlap(t *testing.T) {
	splitter := &CharacterSplitter{ChunkSize: 10, ChunkOverlap: 3}

	docs := []Document{{
		PageContent: "abcdefghijklmnopqrstuvwxyz",
		Metadata:    map[string]interface{}{"name": "alphabet"},
	}}

	chunks, err := splitter.SplitDocuments(docs)
	if err != nil {
		t.Fatalf("SplitDocuments failed: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}

	if chunks[0].PageContent != "abcdefghij" {
		t.Errorf("expected first chunk 'abcdefghij', got %q", chunks[0].PageContent)
	}
	if chunks[1].PageContent != "hijklmnopq" {
		t.Errorf("expected second chunk to overlap by 3, got %q", chunks[1].PageContent)
	}

	prev := -1
	for i, chunk := range chunks {
		start, ok := chunk.Metadata["start_index"].(int)
		if !ok {
			t.Fatalf("chunk %d missing start_index", i)
		}
		if start <= prev {
			t.Errorf("chunk %d start_index %d not increasing", i, start)
		}
		prev = start

		if chunk.Metadata["name"] != "alphabet" {
			t.Errorf("chunk %d lost source metadata", i)
		}
	}
}

func TestCharacterSplitterShortDocument(t *testing.T) {
	splitter := &CharacterSplitter{ChunkSize: 100, ChunkOverlap: 10}

	chunks, err := splitter.SplitDocuments([]Document{{PageContent: "short text", Metadata: map[string]interface{}{}}})
	if err != nil {
		t.Fatalf("SplitDocuments failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].PageContent != "short text" {
		t.Errorf("expected single chunk with full content, got %v", chunks)
	}
}

func TestCharacterSplitterSkipsWhitespaceChunks(t *testing.T) {
	splitter := &CharacterSplitter{ChunkSize: 5, ChunkOverlap: 0}

	chunks, err := splitter.SplitDocuments([]Document{{PageContent: "     ", Metadata: map[string]interface{}{}}})
	if err != nil {
		t.Fatalf("SplitDocuments failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks from whitespace-only content, got %d", len(chunks))
	}
}

func TestCharacterSplitterRejectsOverlapNotSmallerThanSize(t *testing.T) {
	splitter := &CharacterSplitter{ChunkSize: 10, ChunkOverlap: 10}

	if _, err := splitter.SplitDocuments([]Document{{PageContent: "text"}}); err == nil {
		t.Fatal("expected error when overlap equals chunk size")
	}
}

func TestCharacterSplitterMetadataNotShared(t *testing.T) {
	splitter := &CharacterSplitter{ChunkSize: 5, ChunkOverlap: 0}

	chunks, err := splitter.SplitDocuments([]Document{{
		PageContent: strings.Repeat("x", 15),
		Metadata:    map[string]interface{}{"name": "doc"},
	}})
	if err != nil {
		t.Fatalf("SplitDocuments failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	chunks[0].Metadata["name"] = "mutated"
	if chunks[1].Metadata["name"] != "doc" {
		t.Error("chunk metadata maps must not be shared")
	}
}

func TestNewSplitterUnknownName(t *testing.T) {
	if _, err := NewSplitter("semantic", 100, 10, ""); err == nil {
		t.Fatal("expected error for unknown splitter name")
	}
}
