package adf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

const DefaultMaxDepth = 64

// Unmarshal parses JSON text into generic values. Numbers are kept as
// json.Number so integers survive exactly.
func Unmarshal(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, doctree.ErrEmpty
	}
	if !gjson.ValidBytes(data) {
		return nil, doctree.Errorf(doctree.CodeInvalidJSON, "", "input is not valid JSON")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &doctree.Error{Code: doctree.CodeInvalidJSON, Message: err.Error(), Err: err}
	}
	return v, nil
}

// Detect reports whether data looks like an ADF document: a JSON object
// whose type is "doc".
func Detect(data []byte) bool {
	if !gjson.ValidBytes(data) {
		return false
	}
	r := gjson.ParseBytes(data)
	return r.IsObject() && r.Get("type").String() == string(doctree.KindDoc)
}

// Decoder maps generic JSON values to a document tree. The zero value uses
// DefaultMaxDepth.
type Decoder struct {
	MaxDepth int
}

// Decode maps v with the default limits.
func Decode(v any) (*doctree.Node, error) {
	var d Decoder
	return d.Decode(v)
}

var rootFields = []string{"version", "type", "content"}

// Decode checks the root fields, maps every node and validates the result.
// All missing root fields are reported in a single SchemaViolation.
func (d *Decoder) Decode(v any) (*doctree.Node, error) {
	maxDepth := d.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, doctree.Errorf(doctree.CodeSchemaViolation, doctree.RootPath, "document must be a JSON object, got %s", jsonType(v))
	}

	var missing []string
	for _, f := range rootFields {
		if _, ok := obj[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, doctree.Errorf(doctree.CodeSchemaViolation, doctree.RootPath, "document requires field(s) %s", quoted(missing))
	}
	if err := checkKeys(obj, rootFields, doctree.RootPath); err != nil {
		return nil, err
	}

	version, ok := toInt(obj["version"])
	if !ok {
		return nil, doctree.Errorf(doctree.CodeSchemaViolation, "$.version", "version must be an integer, got %s", jsonType(obj["version"]))
	}
	if version != Version {
		return nil, doctree.Errorf(doctree.CodeUnsupportedVersion, "$.version", "version %d is not supported, expected %d", version, Version)
	}
	if t, _ := obj["type"].(string); t != string(doctree.KindDoc) {
		return nil, doctree.Errorf(doctree.CodeSchemaViolation, "$.type", "root type must be %q", doctree.KindDoc)
	}

	dd := &decoder{maxDepth: maxDepth}
	content, err := dd.children(obj["content"], "$.content", 1)
	if err != nil {
		return nil, err
	}
	root := doctree.NewDoc(content...)
	if err := doctree.Validate(root); err != nil {
		return nil, err
	}
	return root, nil
}

var nodeFields = []string{"type", "attrs", "content", "text", "marks"}

type decoder struct {
	maxDepth int
}

func (d *decoder) children(v any, path string, depth int) ([]*doctree.Node, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, doctree.Errorf(doctree.CodeSchemaViolation, path, "content must be an array, got %s", jsonType(v))
	}
	// path ends in ".content"; child paths are built from the owner path.
	owner := path[:len(path)-len(".content")]
	out := make([]*doctree.Node, 0, len(arr))
	for i, item := range arr {
		n, err := d.node(item, doctree.ChildPath(owner, i), depth)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (d *decoder) node(v any, path string, depth int) (*doctree.Node, error) {
	if depth > d.maxDepth {
		return nil, doctree.Errorf(doctree.CodeDepthExceeded, path, "nesting depth exceeds limit %d", d.maxDepth)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, doctree.Errorf(doctree.CodeSchemaViolation, path, "node must be an object, got %s", jsonType(v))
	}
	raw, present := obj["type"]
	if !present {
		return nil, doctree.Errorf(doctree.CodeSchemaViolation, path, "node requires field \"type\"")
	}
	typ, ok := raw.(string)
	if !ok {
		return nil, doctree.Errorf(doctree.CodeSchemaViolation, path+".type", "type must be a string, got %s", jsonType(raw))
	}
	kind := doctree.Kind(typ)
	if !doctree.IsKnown(kind) {
		return nil, doctree.Errorf(doctree.CodeUnsupportedNodeKind, path, "unknown node kind %q", typ)
	}
	if err := checkKeys(obj, nodeFields, path); err != nil {
		return nil, err
	}

	n := &doctree.Node{Kind: kind}
	if raw, ok := obj["attrs"]; ok {
		attrs, err := decodeAttrs(raw, path+".attrs")
		if err != nil {
			return nil, err
		}
		n.Attrs = attrs
	}
	if raw, ok := obj["text"]; ok {
		text, ok := raw.(string)
		if !ok {
			return nil, doctree.Errorf(doctree.CodeSchemaViolation, path+".text", "text must be a string, got %s", jsonType(raw))
		}
		n.Text = text
	}
	if raw, ok := obj["marks"]; ok {
		marks, err := decodeMarks(raw, path+".marks")
		if err != nil {
			return nil, err
		}
		n.Marks = marks
	}
	if raw, ok := obj["content"]; ok {
		content, err := d.children(raw, path+".content", depth+1)
		if err != nil {
			return nil, err
		}
		n.Content = content
	}
	return n, nil
}

func decodeMarks(v any, path string) ([]doctree.Mark, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, doctree.Errorf(doctree.CodeSchemaViolation, path, "marks must be an array, got %s", jsonType(v))
	}
	marks := make([]doctree.Mark, 0, len(arr))
	for i, item := range arr {
		mp := fmt.Sprintf("%s[%d]", path, i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, doctree.Errorf(doctree.CodeSchemaViolation, mp, "mark must be an object, got %s", jsonType(item))
		}
		if err := checkKeys(obj, []string{"type", "attrs"}, mp); err != nil {
			return nil, err
		}
		typ, _ := obj["type"].(string)
		if !doctree.IsKnownMark(doctree.MarkType(typ)) {
			return nil, doctree.Errorf(doctree.CodeSchemaViolation, mp+".type", "unknown mark type %q", typ)
		}
		m := doctree.Mark{Type: doctree.MarkType(typ)}
		if raw, ok := obj["attrs"]; ok {
			attrs, err := decodeAttrs(raw, mp+".attrs")
			if err != nil {
				return nil, err
			}
			m.Attrs = attrs
		}
		marks = append(marks, m)
	}
	doctree.SortMarks(marks)
	return marks, nil
}

// decodeAttrs converts attribute values to the tree's scalar types. Null
// values are treated as absent.
func decodeAttrs(v any, path string) (doctree.Attrs, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, doctree.Errorf(doctree.CodeSchemaViolation, path, "attrs must be an object, got %s", jsonType(v))
	}
	attrs := make(doctree.Attrs, len(obj))
	for k, raw := range obj {
		switch val := raw.(type) {
		case nil:
			continue
		case string, bool:
			attrs[k] = val
		case json.Number, float64:
			if n, ok := toInt(val); ok {
				attrs[k] = n
			} else {
				attrs[k] = val
			}
		default:
			return nil, doctree.Errorf(doctree.CodeSchemaViolation, path+"."+k, "attribute must be a scalar, got %s", jsonType(raw))
		}
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}

func checkKeys(obj map[string]any, allowed []string, path string) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !slices.Contains(allowed, k) {
			return doctree.Errorf(doctree.CodeSchemaViolation, path+"."+k, "unknown field")
		}
	}
	return nil
}

// toInt accepts json.Number and float64 values that hold an exact integer.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case float64:
		return floatToInt(n)
	case int:
		return n, true
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func quoted(items []string) string {
	var b bytes.Buffer
	for i, s := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", s)
	}
	return b.String()
}
