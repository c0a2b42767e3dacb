package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/wikiadf/internal/adf"
	"github.com/dgallion1/wikiadf/internal/convert"
	"github.com/dgallion1/wikiadf/internal/doctree"
	"github.com/dgallion1/wikiadf/internal/importer"
	"github.com/dgallion1/wikiadf/internal/wiki"
)

type importResult struct {
	ImportID  string          `json:"import_id,omitempty"`
	Filename  string          `json:"filename"`
	Status    convert.Status  `json:"status"`
	ADF       json.RawMessage `json:"adf,omitempty"`
	Wiki      string          `json:"wiki,omitempty"`
	WikiError *convert.Error  `json:"wiki_error,omitempty"`
	Stats     *doctree.Stats  `json:"stats,omitempty"`
	Error     *convert.Error  `json:"error,omitempty"`
}

// importData converts one uploaded file. With target "wiki" the document is
// also serialized as wiki markup; a serialization failure is reported next to
// the ADF rather than failing the import.
func (s *Server) importData(filename string, data []byte, target string) importResult {
	format := strings.ToLower(filepath.Ext(filename))
	start := time.Now()
	res := importResult{
		ImportID: uuid.NewString(),
		Filename: filename,
	}

	opts := importer.Options{MaxDepth: s.cfg.MaxDepth, FallbackPdftotext: s.cfg.PDFFallbackPdftotext}
	tree, err := importer.Import(bytes.NewReader(data), filename, opts)
	switch {
	case errors.Is(err, doctree.ErrEmpty):
		res.Status = convert.StatusEmpty
	case err != nil:
		res.Status = convert.StatusError
		res.Error = convert.AsError(err)
	default:
		raw, merr := adf.Marshal(tree)
		if merr != nil {
			res.Status = convert.StatusError
			res.Error = convert.AsError(merr)
			break
		}
		stats := doctree.Summarize(tree)
		res.Status = convert.StatusOK
		res.ADF = raw
		res.Stats = &stats
		if target == "wiki" {
			text, werr := wiki.Serialize(tree)
			if werr != nil {
				res.WikiError = convert.AsError(werr)
			} else {
				res.Wiki = text
			}
		}
	}

	s.metrics.ObserveImport(format, string(res.Status), time.Since(start))
	if res.Error != nil {
		s.log.Info("import failed", "filename", filename, "kind", res.Error.Kind, "error", res.Error.Message)
	}
	return res
}

var errTooLarge = errors.New("file exceeds max size")

// readUpload reads at most MaxUploadBytes of an uploaded file.
func (s *Server) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w (%d bytes)", errTooLarge, s.cfg.MaxUploadBytes)
	}
	return data, nil
}

func importTarget(r *http.Request) (string, error) {
	target := strings.ToLower(r.FormValue("target"))
	switch target {
	case "", "adf":
		return "adf", nil
	case "wiki":
		return target, nil
	}
	return "", fmt.Errorf("unknown target %q, expected adf or wiki", target)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	target, err := importTarget(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	file.Close()

	filename := sanitizeFilename(header.Filename)
	if !importer.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := s.readUpload(header)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, errTooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		jsonError(w, err.Error(), code)
		return
	}

	res := s.importData(filename, data, target)
	code := http.StatusOK
	if res.Status != convert.StatusOK {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, res)
}

func (s *Server) handleBatchImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	target, err := importTarget(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	// Read and check every file first; conversions then run with bounded
	// concurrency and keep upload order.
	results := make([]importResult, len(files))
	var pending []batchItem
	for i, fh := range files {
		filename := sanitizeFilename(fh.Filename)
		if !importer.IsSupportedExtension(filename) {
			results[i] = importResult{
				Filename: filename,
				Status:   convert.StatusError,
				Error: &convert.Error{
					Kind:    doctree.CodeParseError,
					Message: fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)),
				},
			}
			continue
		}

		data, err := s.readUpload(fh)
		if err != nil {
			kind := doctree.CodeParseError
			if errors.Is(err, errTooLarge) {
				kind = doctree.CodeInputTooLarge
			}
			results[i] = importResult{
				Filename: filename,
				Status:   convert.StatusError,
				Error:    &convert.Error{Kind: kind, Message: err.Error(), Err: err},
			}
			continue
		}
		pending = append(pending, batchItem{idx: i, filename: filename, data: data})
	}
	s.importAll(r.Context(), pending, target, results)

	writeJSON(w, http.StatusOK, map[string]any{"imports": results})
}

type batchItem struct {
	idx      int
	filename string
	data     []byte
}

// importAll converts items with at most ImportWorkers running at once and
// stores each result at its item's index.
func (s *Server) importAll(ctx context.Context, items []batchItem, target string, results []importResult) {
	type itemResult struct {
		idx int
		res importResult
	}
	out := make(chan itemResult, len(items))
	sem := make(chan struct{}, max(s.cfg.ImportWorkers, 1))

	for _, item := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			out <- itemResult{idx: item.idx, res: importResult{
				Filename: item.filename,
				Status:   convert.StatusError,
				Error:    convert.AsError(ctx.Err()),
			}}
			continue
		}
		go func(item batchItem) {
			defer func() { <-sem }()
			out <- itemResult{idx: item.idx, res: s.importData(item.filename, item.data, target)}
		}(item)
	}

	for range items {
		r := <-out
		results[r.idx] = r.res
	}
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
