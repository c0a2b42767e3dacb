// Package adf reads and writes Atlassian Document Format JSON.
package adf

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

// Version is the only ADF version this package reads and writes.
const Version = 1

// Document is the ADF root as it appears on the wire.
type Document struct {
	Version int     `json:"version"`
	Type    string  `json:"type"`
	Content []*Node `json:"content"`
}

// Node is an ADF node.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []*Mark        `json:"marks,omitempty"`
}

// Mark is a formatting mark on a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Encode validates tree and maps it to the wire structs. Marks are written in
// canonical order.
func Encode(tree *doctree.Node) (*Document, error) {
	if err := doctree.Validate(tree); err != nil {
		return nil, err
	}
	doc := &Document{
		Version: Version,
		Type:    string(doctree.KindDoc),
		Content: make([]*Node, 0, len(tree.Content)),
	}
	for _, c := range tree.Content {
		doc.Content = append(doc.Content, encodeNode(c))
	}
	return doc, nil
}

func encodeNode(n *doctree.Node) *Node {
	out := &Node{
		Type:  string(n.Kind),
		Attrs: copyAttrs(n.Attrs),
		Text:  n.Text,
	}
	if len(n.Marks) > 0 {
		marks := make([]doctree.Mark, len(n.Marks))
		copy(marks, n.Marks)
		doctree.SortMarks(marks)
		for _, m := range marks {
			out.Marks = append(out.Marks, &Mark{Type: string(m.Type), Attrs: copyAttrs(m.Attrs)})
		}
	}
	for _, c := range n.Content {
		out.Content = append(out.Content, encodeNode(c))
	}
	return out
}

func copyAttrs(a doctree.Attrs) map[string]any {
	if len(a) == 0 {
		return nil
	}
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Marshal encodes tree as pretty-printed JSON with two-space indentation.
func Marshal(tree *doctree.Node) ([]byte, error) {
	doc, err := Encode(tree)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
