package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document is a schemaless record stored by a DBClient.
type Document map[string]any

// ToDocument converts any JSON-encodable value into a Document.
func ToDocument(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// Decode fills v from the document.
func (d Document) Decode(v any) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// ID returns the document's "id" field, if it is a string.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Filter selects documents by equality on dotted field paths, e.g.
// {"status": "running", "pipeline_config.max_iterations": 5}.
// An empty filter matches every document in the collection.
type Filter map[string]any

// QueryResult is what a DBClient query returns.
type QueryResult struct {
	Collection string         `json:"collection"`
	Data       []Document     `json:"data"`
	Count      int            `json:"count"`
	Query      string         `json:"query"`
	Params     map[string]any `json:"params"`
	Timestamp  time.Time      `json:"timestamp"`
}
