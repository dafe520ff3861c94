package api

import "net/http"

// feedbackSmart handles POST /feedback/smart
func (s *Server) feedbackSmart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeedbackText string `json:"feedback_text"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.learner.Learn(r.Context(), req.FeedbackText)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// feedbackView handles GET /feedback/view
func (s *Server) feedbackView(w http.ResponseWriter, r *http.Request) {
	view, err := s.learner.View(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
