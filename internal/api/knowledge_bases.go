package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Harvey-AU/knowledge-crawler/internal/jobs"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

// AddURLsRequest is the body of POST /v1/knowledge-bases/{name}/urls
type AddURLsRequest struct {
	URLs []string `json:"urls"`
}

// KnowledgeBasesHandler handles POST and GET on /v1/knowledge-bases
func (h *Handler) KnowledgeBasesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createKnowledgeBase(w, r)
	case http.MethodGet:
		h.listKnowledgeBases(w, r)
	default:
		MethodNotAllowed(w, r)
	}
}

// KnowledgeBaseHandler handles /v1/knowledge-bases/{name} and
// /v1/knowledge-bases/{name}/urls
func (h *Handler) KnowledgeBaseHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/knowledge-bases/"), "/")
	if path == "" {
		h.KnowledgeBasesHandler(w, r)
		return
	}

	parts := strings.Split(path, "/")
	name := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			MethodNotAllowed(w, r)
			return
		}
		h.getKnowledgeBase(w, r, name)
	case len(parts) == 2 && parts[1] == "urls":
		if r.Method != http.MethodPost {
			MethodNotAllowed(w, r)
			return
		}
		h.addURLs(w, r, name)
	default:
		NotFound(w, r, "Endpoint not found")
	}
}

func (h *Handler) createKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	var req jobs.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	kb, err := h.Service.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	loggerWithRequest(r).Info().
		Str("knowledge_base", kb.Name).
		Int("seeds", len(kb.URLs)).
		Str("status", string(kb.Status)).
		Msg("Knowledge base created")

	WriteCreated(w, r, kb, "Knowledge base created")
}

func (h *Handler) listKnowledgeBases(w http.ResponseWriter, r *http.Request) {
	kbs, err := h.Service.List(r.Context())
	if err != nil {
		DatabaseError(w, r, err)
		return
	}
	if kbs == nil {
		kbs = []jobs.KnowledgeBase{}
	}

	WriteSuccess(w, r, map[string]any{
		"knowledge_bases": kbs,
		"count":           len(kbs),
	}, "")
}

func (h *Handler) getKnowledgeBase(w http.ResponseWriter, r *http.Request, name string) {
	kb, err := h.Service.Get(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteSuccess(w, r, kb, "")
}

func (h *Handler) addURLs(w http.ResponseWriter, r *http.Request, name string) {
	var req AddURLsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.URLs) == 0 {
		ValidationError(w, r, "urls must not be empty")
		return
	}

	added, err := h.Service.AddURLs(r.Context(), name, req.URLs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	message := "Crawl started for new URLs"
	if len(added) == 0 {
		message = "All URLs already belong to the knowledge base"
	}

	WriteAccepted(w, r, map[string]any{
		"name":  name,
		"added": added,
	}, message)
}

// decodeJSON reads a bounded JSON body into v, writing a 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected request body")
		BadRequest(w, r, "Invalid JSON request body")
		return false
	}
	return true
}
