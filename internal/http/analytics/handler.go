package analytics

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/timebank/internal/analytics"
	"github.com/MrJamesThe3rd/timebank/internal/http/auth"
	"github.com/MrJamesThe3rd/timebank/internal/http/respond"
)

type Handler struct {
	svc *analytics.Service
	now func() time.Time
}

func NewHandler(svc *analytics.Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) Routes(r chi.Router) {
	r.Use(auth.RequireAdmin)
	r.Get("/report", h.report)
}

// report renders JSON unless ?format=yaml is given.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	format := analytics.FormatJSON

	if s := r.URL.Query().Get("format"); s != "" {
		f, err := analytics.ParseFormat(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		format = f
	}

	report, err := h.svc.Report(r.Context(), h.now())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := analytics.Write(&buf, report, format); err != nil {
		respond.Error(w, r, err)
		return
	}

	contentType := "application/json"
	if format == analytics.FormatYAML {
		contentType = "application/yaml"
	}

	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(buf.Bytes())
}
