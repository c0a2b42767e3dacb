package doctree

import (
	"fmt"
	"slices"
	"strings"
)

// RootPath is the path of the document root in error messages.
const RootPath = "$"

// ChildPath returns the path of the i-th child under parent.
func ChildPath(parent string, i int) string {
	return fmt.Sprintf("%s.content[%d]", parent, i)
}

// Validate checks the tree invariants: a single doc root, legal child kinds,
// text only on text nodes, marks only on text nodes, attributes matching the
// kind schema, and exclusive ownership of every node.
func Validate(root *Node) error {
	if root == nil {
		return Errorf(CodeSchemaViolation, RootPath, "document is nil")
	}
	if root.Kind != KindDoc {
		return Errorf(CodeSchemaViolation, RootPath, "root kind must be %q, got %q", KindDoc, root.Kind)
	}
	v := &validator{seen: make(map[*Node]bool)}
	return v.node(root, RootPath)
}

type validator struct {
	seen map[*Node]bool
}

func (v *validator) node(n *Node, path string) error {
	if v.seen[n] {
		return Errorf(CodeSchemaViolation, path, "node is owned by more than one parent")
	}
	v.seen[n] = true

	spec, ok := kindSpecs[n.Kind]
	if !ok {
		return Errorf(CodeUnsupportedNodeKind, path, "unknown node kind %q", n.Kind)
	}

	if n.Kind == KindText {
		if n.Text == "" {
			return Errorf(CodeSchemaViolation, path, "text node must have non-empty text")
		}
		if err := checkMarks(n.Marks, path+".marks"); err != nil {
			return err
		}
	} else {
		if n.Text != "" {
			return Errorf(CodeSchemaViolation, path+".text", "text is only allowed on text nodes")
		}
		if len(n.Marks) > 0 {
			return Errorf(CodeSchemaViolation, path+".marks", "marks are only allowed on text nodes")
		}
	}

	if err := CheckAttrs(n.Kind, n.Attrs, path+".attrs"); err != nil {
		return err
	}

	if len(n.Content) < spec.minChildren {
		return Errorf(CodeSchemaViolation, path+".content", "%s requires at least %d child node(s)", n.Kind, spec.minChildren)
	}
	if spec.maxChildren > 0 && len(n.Content) > spec.maxChildren {
		return Errorf(CodeSchemaViolation, path+".content", "%s allows at most %d child node(s)", n.Kind, spec.maxChildren)
	}

	for i, c := range n.Content {
		cp := ChildPath(path, i)
		if c == nil {
			return Errorf(CodeSchemaViolation, cp, "child node is nil")
		}
		if IsKnown(c.Kind) && !slices.Contains(spec.children, c.Kind) {
			return Errorf(CodeSchemaViolation, cp, "%s is not allowed inside %s", c.Kind, n.Kind)
		}
		if n.Kind == KindCodeBlock && len(c.Marks) > 0 {
			return Errorf(CodeSchemaViolation, cp+".marks", "code block text cannot carry marks")
		}
		if err := v.node(c, cp); err != nil {
			return err
		}
	}
	return nil
}

// CheckAttrs validates attributes against the schema of kind.
func CheckAttrs(kind Kind, attrs Attrs, path string) error {
	spec := kindSpecs[kind]
	if err := checkAttrSpec(spec.attrs, attrs, path, string(kind)); err != nil {
		return err
	}
	if kind == KindMedia {
		switch attrs["type"] {
		case "external":
			if _, ok := attrs["url"]; !ok {
				return Errorf(CodeSchemaViolation, path, "external media requires attribute \"url\"")
			}
		case "file":
			if _, ok := attrs["id"]; !ok {
				return Errorf(CodeSchemaViolation, path, "file media requires attribute \"id\"")
			}
		}
	}
	return nil
}

// CheckMarkAttrs validates the attributes of a mark.
func CheckMarkAttrs(t MarkType, attrs Attrs, path string) error {
	specs, ok := markSpecs[t]
	if !ok {
		return Errorf(CodeSchemaViolation, path, "unknown mark type %q", t)
	}
	return checkAttrSpec(specs, attrs, path, string(t))
}

func checkMarks(marks []Mark, path string) error {
	seen := make(map[MarkType]bool, len(marks))
	for i, m := range marks {
		mp := fmt.Sprintf("%s[%d]", path, i)
		if seen[m.Type] {
			return Errorf(CodeSchemaViolation, mp, "duplicate mark %q", m.Type)
		}
		seen[m.Type] = true
		if err := CheckMarkAttrs(m.Type, m.Attrs, mp+".attrs"); err != nil {
			return err
		}
	}
	return nil
}

func checkAttrSpec(specs map[string]attrSpec, attrs Attrs, path, owner string) error {
	var missing []string
	for name, s := range specs {
		if _, ok := attrs[name]; !ok && s.required {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return Errorf(CodeSchemaViolation, path, "%s requires attribute(s) %s", owner, quoteList(missing))
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		s, ok := specs[name]
		if !ok {
			return Errorf(CodeSchemaViolation, path+"."+name, "unknown attribute for %s", owner)
		}
		if err := s.check(attrs[name], path+"."+name); err != nil {
			return err
		}
	}
	return nil
}

func (s attrSpec) check(v any, path string) error {
	switch s.typ {
	case attrInt:
		n, ok := v.(int)
		if !ok {
			return Errorf(CodeSchemaViolation, path, "expected %s, got %T", s.typ, v)
		}
		if n < s.min || (s.max > 0 && n > s.max) {
			if s.max > 0 {
				return Errorf(CodeSchemaViolation, path, "value %d out of range %d-%d", n, s.min, s.max)
			}
			return Errorf(CodeSchemaViolation, path, "value %d must be at least %d", n, s.min)
		}
	case attrString:
		str, ok := v.(string)
		if !ok {
			return Errorf(CodeSchemaViolation, path, "expected %s, got %T", s.typ, v)
		}
		if s.enum != nil && !slices.Contains(s.enum, str) {
			return Errorf(CodeSchemaViolation, path, "value %q must be one of %s", str, quoteList(s.enum))
		}
	case attrBool:
		if _, ok := v.(bool); !ok {
			return Errorf(CodeSchemaViolation, path, "expected %s, got %T", s.typ, v)
		}
	}
	return nil
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}
