// Package models defines core data structures for documents, index results, and catalog status.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	fieldID      = "id"
	fieldContent = "content"
)

// Document is a stored document. On the wire it is a flat JSON object: id and content
// plus any other keys, which are kept in Metadata and written back verbatim.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
}

// DocumentInput is a document as submitted for indexing. Content is nil when the
// submitted object had no content key.
type DocumentInput struct {
	ID       string
	Content  *string
	Metadata map[string]interface{}
}

// MarshalJSON flattens metadata next to id and content.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(d.Metadata)+2)
	for k, v := range d.Metadata {
		out[k] = v
	}
	out[fieldID] = d.ID
	out[fieldContent] = d.Content
	return json.Marshal(out)
}

// UnmarshalJSON reads a flat document object. Content is required.
func (d *Document) UnmarshalJSON(data []byte) error {
	id, content, meta, err := splitFields(data)
	if err != nil {
		return err
	}
	if content == nil {
		return fmt.Errorf("document %q: missing %s", id, fieldContent)
	}
	d.ID, d.Content, d.Metadata = id, *content, meta
	return nil
}

// MarshalJSON flattens metadata next to id and content.
func (in DocumentInput) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(in.Metadata)+2)
	for k, v := range in.Metadata {
		out[k] = v
	}
	if in.ID != "" {
		out[fieldID] = in.ID
	}
	if in.Content != nil {
		out[fieldContent] = *in.Content
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a flat document object. A missing content key is not an error here;
// validation happens when the batch is indexed.
func (in *DocumentInput) UnmarshalJSON(data []byte) error {
	id, content, meta, err := splitFields(data)
	if err != nil {
		return err
	}
	in.ID, in.Content, in.Metadata = id, content, meta
	return nil
}

// NewDocumentInput is a convenience constructor for callers building batches in code.
func NewDocumentInput(id, content string, metadata map[string]interface{}) DocumentInput {
	return DocumentInput{ID: id, Content: &content, Metadata: metadata}
}

func splitFields(data []byte) (id string, content *string, meta map[string]interface{}, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return "", nil, nil, err
	}
	if fields == nil {
		return "", nil, nil, fmt.Errorf("document must be a JSON object")
	}
	if raw, ok := fields[fieldID]; ok {
		switch v := raw.(type) {
		case string:
			id = v
		case nil:
		default:
			return "", nil, nil, fmt.Errorf("document %s must be a string", fieldID)
		}
		delete(fields, fieldID)
	}
	if raw, ok := fields[fieldContent]; ok {
		s, isString := raw.(string)
		if !isString {
			return "", nil, nil, fmt.Errorf("document %q: %s must be a string", id, fieldContent)
		}
		content = &s
		delete(fields, fieldContent)
	}
	if len(fields) > 0 {
		meta = fields
	}
	return id, content, meta, nil
}

// Clone returns a deep copy so callers cannot reach stored metadata.
func (d Document) Clone() Document {
	return Document{ID: d.ID, Content: d.Content, Metadata: cloneMap(d.Metadata)}
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
