package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dgallion1/wikiadf/internal/convert"
	"github.com/dgallion1/wikiadf/internal/doctree"
	"github.com/dgallion1/wikiadf/internal/preview"
	"github.com/dgallion1/wikiadf/internal/wiki"
)

type convertRequest struct {
	Mode    string `json:"mode"`
	Source  string `json:"source"`
	Preview bool   `json:"preview,omitempty"`
}

type convertResponse struct {
	Status  convert.Status `json:"status"`
	Mode    convert.Mode   `json:"mode"`
	Target  string         `json:"target,omitempty"`
	Stats   *doctree.Stats `json:"stats,omitempty"`
	Preview string         `json:"preview,omitempty"`
	Error   *convert.Error `json:"error,omitempty"`
}

// decodeConvertRequest reads the JSON body. JSON escaping can double the
// size of a source, so the body limit is twice the input limit plus slack.
func (s *Server) decodeConvertRequest(w http.ResponseWriter, r *http.Request) (convertRequest, convert.Mode, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxInputBytes)*2+64*1024)

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return req, "", false
	}
	mode, err := convert.ParseMode(req.Mode)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return req, "", false
	}
	return req, mode, true
}

// convert runs one conversion and records it.
func (s *Server) convert(req convertRequest, mode convert.Mode) (convert.Result, *convert.Error) {
	start := time.Now()
	res, err := s.conv.Convert(req.Source, mode)
	cerr := convert.AsError(err)
	kind := ""
	if cerr != nil {
		kind = string(cerr.Kind)
		res.Status = convert.StatusError
	}
	s.metrics.ObserveConversion(mode, res.Status, kind, len(req.Source), time.Since(start))
	return res, cerr
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	req, mode, ok := s.decodeConvertRequest(w, r)
	if !ok {
		return
	}

	res, cerr := s.convert(req, mode)
	if cerr != nil {
		s.log.Debug("conversion failed", "mode", mode, "kind", cerr.Kind, "path", cerr.Path)
		writeJSON(w, http.StatusUnprocessableEntity, convertResponse{
			Status: convert.StatusError,
			Mode:   mode,
			Error:  cerr,
		})
		return
	}

	resp := convertResponse{Status: res.Status, Mode: mode}
	if res.Status == convert.StatusOK {
		resp.Target = res.Target
		resp.Stats = &res.Stats
		if req.Preview {
			html, err := preview.HTML(res.Tree)
			if err != nil {
				jsonError(w, "render preview: "+err.Error(), http.StatusInternalServerError)
				return
			}
			resp.Preview = html
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePreview returns the HTML rendering of the converted document. An
// empty source renders an empty fragment.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, mode, ok := s.decodeConvertRequest(w, r)
	if !ok {
		return
	}

	res, cerr := s.convert(req, mode)
	if cerr != nil {
		writeJSON(w, http.StatusUnprocessableEntity, convertResponse{
			Status: convert.StatusError,
			Mode:   mode,
			Error:  cerr,
		})
		return
	}

	tree := res.Tree
	if tree == nil {
		tree = doctree.NewDoc()
	}
	html, err := preview.HTML(tree)
	if err != nil {
		jsonError(w, "render preview: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

func (s *Server) handleCompat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"constructs": wiki.Compatibility})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cache": s.cache.Stats(),
		"limits": map[string]any{
			"max_input_bytes":  s.cfg.MaxInputBytes,
			"max_upload_bytes": s.cfg.MaxUploadBytes,
			"max_depth":        s.cfg.MaxDepth,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
