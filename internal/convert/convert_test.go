package convert

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dgallion1/wikiadf/internal/doctree"
)

func newConverter() *Converter {
	return New(Options{MaxDepth: 64, MaxInputBytes: 1 << 20}, nil)
}

func TestConvert_MarkupHeadingToADF(t *testing.T) {
	res, err := newConverter().Convert("h1. Hello, world!", MarkupToStructured)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("expected status ok, got %s", res.Status)
	}
	if got := gjson.Get(res.Target, "version").Int(); got != 1 {
		t.Errorf("expected version 1, got %d", got)
	}
	if got := gjson.Get(res.Target, "content.0.type").String(); got != "heading" {
		t.Errorf("expected heading, got %q", got)
	}
	if got := gjson.Get(res.Target, "content.0.attrs.level").Int(); got != 1 {
		t.Errorf("expected level 1, got %d", got)
	}
	if got := gjson.Get(res.Target, "content.0.content.0.text").String(); got != "Hello, world!" {
		t.Errorf("expected text %q, got %q", "Hello, world!", got)
	}
	if !strings.HasPrefix(res.Target, "{\n  \"version\": 1,") {
		t.Errorf("expected two-space indented output, got %q", res.Target)
	}
}

func TestConvert_ADFHeadingToMarkup(t *testing.T) {
	src := `{"version":1,"type":"doc","content":[{"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"hello world"}]}]}`
	res, err := newConverter().Convert(src, StructuredToMarkup)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if res.Target != "h1. hello world" {
		t.Fatalf("expected %q, got %q", "h1. hello world", res.Target)
	}
	if res.Stats.Kinds[doctree.KindHeading] != 1 {
		t.Errorf("expected stats to count the heading, got %+v", res.Stats)
	}
}

func TestConvert_MissingRootFields(t *testing.T) {
	_, err := newConverter().Convert(`{"type":"doc"}`, StructuredToMarkup)
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if cerr.Kind != doctree.CodeSchemaViolation {
		t.Errorf("expected SchemaViolation, got %s", cerr.Kind)
	}
	for _, field := range []string{"version", "content"} {
		if !strings.Contains(cerr.Message, field) {
			t.Errorf("expected message to name %q, got %q", field, cerr.Message)
		}
	}
	if !errors.Is(err, doctree.ErrSchemaViolation) {
		t.Error("expected errors.Is to reach the underlying code")
	}
}

func TestConvert_TableCannotReturnToMarkup(t *testing.T) {
	c := newConverter()
	res, err := c.Convert("||a||b||\n|1|2|", MarkupToStructured)
	if err != nil {
		t.Fatalf("markup to ADF: %v", err)
	}
	_, err = c.Convert(res.Target, StructuredToMarkup)
	cerr := AsError(err)
	if cerr == nil || cerr.Kind != doctree.CodeUnsupportedNodeKind {
		t.Fatalf("expected UnsupportedNodeKind, got %v", err)
	}
	if cerr.Path != "$.content[0]" {
		t.Errorf("expected path of the table, got %q", cerr.Path)
	}
}

func TestConvert_EmptySource(t *testing.T) {
	c := newConverter()
	for _, mode := range []Mode{MarkupToStructured, StructuredToMarkup} {
		for _, src := range []string{"", "   ", "\n\t"} {
			res, err := c.Convert(src, mode)
			if err != nil {
				t.Fatalf("%s %q: unexpected error %v", mode, src, err)
			}
			if res.Status != StatusEmpty || res.Tree != nil || res.Target != "" {
				t.Errorf("%s %q: expected empty result, got %+v", mode, src, res)
			}
		}
	}
}

func TestConvert_MarkupWithoutBlocks(t *testing.T) {
	res, err := newConverter().Convert("{{}}", MarkupToStructured)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if res.Status != StatusEmpty || res.Tree != nil || res.Target != "" {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestConvert_ErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		src  string
		mode Mode
		want doctree.Code
	}{
		{"invalid json", `{"version":`, StructuredToMarkup, doctree.CodeInvalidJSON},
		{"unsupported version", `{"version":3,"type":"doc","content":[]}`, StructuredToMarkup, doctree.CodeUnsupportedVersion},
		{"deep markup", strings.Repeat("#", 1000) + " x", MarkupToStructured, doctree.CodeDepthExceeded},
		{"too large", strings.Repeat("a", 2<<20), MarkupToStructured, doctree.CodeInputTooLarge},
	}

	c := newConverter()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Convert(tc.src, tc.mode)
			if res.Status != StatusError {
				t.Errorf("expected status error, got %s", res.Status)
			}
			if got := AsError(err); got == nil || got.Kind != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
		})
	}
}

func TestConvert_UnknownMode(t *testing.T) {
	_, err := newConverter().Convert("x", Mode("sideways"))
	if !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"wiki-to-adf", MarkupToStructured, true},
		{" ADF-TO-WIKI ", StructuredToMarkup, true},
		{"adf", StructuredToMarkup, true},
		{"wiki", MarkupToStructured, true},
		{"both", "", false},
	}
	for _, tc := range tests {
		got, err := ParseMode(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("ParseMode(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestAsError_PlainError(t *testing.T) {
	err := AsError(errors.New("boom"))
	if err.Kind != doctree.CodeParseError || err.Message != "boom" {
		t.Fatalf("unexpected mapping %+v", err)
	}
	if AsError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestSession_ModeSwitchClearsState(t *testing.T) {
	s := NewSession(newConverter(), MarkupToStructured)
	if _, err := s.Update("h1. Title"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if s.Preview() == nil || s.Target() == "" {
		t.Fatal("expected preview and target after update")
	}

	s.SetMode(MarkupToStructured)
	if s.Preview() == nil {
		t.Fatal("setting the same mode must keep state")
	}

	s.SetMode(StructuredToMarkup)
	if s.Mode() != StructuredToMarkup {
		t.Fatalf("expected mode %s, got %s", StructuredToMarkup, s.Mode())
	}
	if s.Source() != "" || s.Target() != "" || s.Preview() != nil || s.Err() != nil {
		t.Fatal("expected mode switch to discard all state")
	}
}

func TestSession_FailureClearsPreview(t *testing.T) {
	s := NewSession(newConverter(), StructuredToMarkup)
	if _, err := s.Update(`{"version":1,"type":"doc","content":[{"type":"rule"}]}`); err != nil {
		t.Fatalf("update: %v", err)
	}
	if s.Target() != "----" {
		t.Fatalf("expected rule markup, got %q", s.Target())
	}

	_, err := s.Update(`{"version":1`)
	if err == nil {
		t.Fatal("expected error")
	}
	if s.Preview() != nil || s.Target() != "" {
		t.Error("expected failure to clear preview and target")
	}
	if s.Err() == nil || s.Err().Kind != doctree.CodeInvalidJSON {
		t.Errorf("expected InvalidJson to be kept, got %v", s.Err())
	}

	if _, err := s.Update(""); err != nil {
		t.Fatalf("update empty: %v", err)
	}
	if s.Status() != StatusEmpty || s.Err() != nil {
		t.Errorf("expected empty status and cleared error, got %s %v", s.Status(), s.Err())
	}
}

func TestCache_HitReturnsIndependentCopy(t *testing.T) {
	cache := NewCache(8, time.Minute)
	c := New(Options{}, cache)

	first, err := c.Convert("h1. Title", MarkupToStructured)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	first.Tree.Content[0].Attrs["level"] = 5

	second, err := c.Convert("h1. Title", MarkupToStructured)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if lvl, _ := second.Tree.Content[0].IntAttr("level"); lvl != 1 {
		t.Fatalf("cached tree was mutated through a previous result, level=%d", lvl)
	}
	st := cache.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Entries != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	cache := NewCache(2, time.Minute)
	cache.Put(MarkupToStructured, "a", Result{Status: StatusOK})
	time.Sleep(time.Millisecond)
	cache.Put(MarkupToStructured, "b", Result{Status: StatusOK})
	time.Sleep(time.Millisecond)
	cache.Put(MarkupToStructured, "c", Result{Status: StatusOK})

	if _, ok := cache.Get(MarkupToStructured, "a"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	if _, ok := cache.Get(MarkupToStructured, "c"); !ok {
		t.Error("expected newest entry to be cached")
	}
}

func TestCache_CleanupAndJanitor(t *testing.T) {
	cache := NewCache(8, 10*time.Millisecond)
	cache.Put(StructuredToMarkup, "x", Result{Status: StatusOK})

	cache.Start(context.Background(), 5*time.Millisecond)
	defer cache.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for cache.Stats().Entries > 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor did not remove expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCache_NilIsUsable(t *testing.T) {
	var cache *Cache
	cache.Put(MarkupToStructured, "x", Result{})
	if _, ok := cache.Get(MarkupToStructured, "x"); ok {
		t.Error("nil cache must never hit")
	}
	cache.Cleanup()
	cache.Stop()
}
