package api

import (
	"net/http"
)

// PredictRequest is the body of POST /v1/predict
type PredictRequest struct {
	URL   string `json:"url"`
	Depth *int   `json:"depth"`
}

// PredictHandler classifies a site and estimates its crawl size
func (h *Handler) PredictHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r)
		return
	}
	if h.Predictor == nil {
		ServiceUnavailable(w, r, "Prediction is not configured")
		return
	}

	var req PredictRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		ValidationError(w, r, "url is required")
		return
	}
	if req.Depth == nil || *req.Depth < 0 {
		ValidationError(w, r, "depth must be a non-negative integer")
		return
	}

	prediction, err := h.Predictor.Predict(r.Context(), req.URL, *req.Depth)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteSuccess(w, r, prediction, "")
}
