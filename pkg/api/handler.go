package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"misdash/pkg/commitment"
	"misdash/pkg/export"
	"misdash/pkg/extract"
	"misdash/pkg/pipeline"
	"misdash/pkg/sheets"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	views     *pipeline.Registry
	committer Committer
	images    ImageResolver
}

func NewHandler(views *pipeline.Registry, committer Committer, images ImageResolver) *Handler {
	return &Handler{views: views, committer: committer, images: images}
}

func (h *Handler) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listViews(w http.ResponseWriter, r *http.Request) {
	names := h.views.Names()
	out := make([]viewSummary, 0, len(names))
	for _, n := range names {
		p, _ := h.views.Get(n)
		out = append(out, toViewSummary(p.State()))
	}
	writeJSON(w, http.StatusOK, out)
}

// pipelineFor resolves {view}, loading it on first access.
func (h *Handler) pipelineFor(w http.ResponseWriter, r *http.Request) (*pipeline.Pipeline, bool) {
	name := chi.URLParam(r, "view")
	p, ok := h.views.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "unknown view "+name, nil)
		return nil, false
	}
	if p.State().Status == pipeline.StatusIdle {
		// failures are kept in the view's state and reported with it
		_, _ = p.Refresh(r.Context())
	}
	return p, true
}

func retryLink(view string) string {
	return "/views/" + view + "/refresh"
}

func (h *Handler) getView(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipelineFor(w, r)
	if !ok {
		return
	}
	st := p.State()
	resp := viewResponse{State: st, Total: len(st.Rows), Query: r.URL.Query().Get("q")}
	if resp.Query != "" {
		fuzzyMode, _ := strconv.ParseBool(r.URL.Query().Get("fuzzy"))
		resp.Rows = pipeline.Search(st.Rows, resp.Query, fuzzyMode)
	}
	if st.Status == pipeline.StatusError {
		resp.Retry = retryLink(st.View)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) refreshView(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "view")
	p, ok := h.views.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "unknown view "+name, nil)
		return
	}
	st, err := p.Refresh(r.Context())
	if err != nil {
		code := CodeFetchFailed
		if errors.Is(err, sheets.ErrInvalidFormat) {
			code = CodeInvalidFormat
		}
		meta := map[string]string{"retry": retryLink(name), "view": name}
		var fe *sheets.FetchError
		if errors.As(err, &fe) && fe.Status != 0 {
			meta["status"] = strconv.Itoa(fe.Status)
		}
		writeError(w, http.StatusBadGateway, code, err.Error(), meta)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{State: st, Total: len(st.Rows)})
}

func (h *Handler) getRanking(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipelineFor(w, r)
	if !ok {
		return
	}
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "n must be a non-negative integer", nil)
			return
		}
		n = v
	}
	writeJSON(w, http.StatusOK, aggregateResponse{
		View:   p.Name(),
		Policy: p.Options().Aggregation,
		Items:  nonNil(p.Ranking(n)),
	})
}

func (h *Handler) getTotals(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipelineFor(w, r)
	if !ok {
		return
	}
	totals, err := p.Totals()
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), map[string]string{"view": p.Name()})
		return
	}
	writeJSON(w, http.StatusOK, aggregateResponse{View: p.Name(), Policy: "sum", Items: nonNil(totals)})
}

func (h *Handler) exportView(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipelineFor(w, r)
	if !ok {
		return
	}
	st := p.State()
	if st.Status == pipeline.StatusError {
		writeError(w, http.StatusBadGateway, CodeFetchFailed, st.Error, map[string]string{"retry": retryLink(st.View)})
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.SheetName(st.View, "export")+`.xlsx"`)
	if err := export.WriteXLSX(w, st, Summaries(p)...); err != nil {
		log.WithField("view", st.View).Errorf("export: %v", err)
	}
}

// Summaries are the extra workbook sheets a view supports.
func Summaries(p *pipeline.Pipeline) []export.Summary {
	var out []export.Summary
	if p.Options().Fields.Name != extract.None || p.Options().Fields.ImageName != extract.None {
		out = append(out, export.Summary{Title: "Ranking", Rows: p.Ranking(0)})
	}
	if totals, err := p.Totals(); err == nil {
		out = append(out, export.Summary{Title: "Totals", Rows: totals})
	}
	return out
}

func (h *Handler) listCommitments(w http.ResponseWriter, r *http.Request) {
	if reload, _ := strconv.ParseBool(r.URL.Query().Get("reload")); reload {
		if err := h.committer.Load(r.Context()); err != nil {
			writeError(w, http.StatusBadGateway, CodeFetchFailed, err.Error(), nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.committer.Overlay().Entries())
}

func (h *Handler) selectCommitments(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid body", nil)
		return
	}
	subjects := req.Subjects
	if req.View != "" {
		p, ok := h.views.Get(req.View)
		if !ok {
			writeError(w, http.StatusNotFound, CodeNotFound, "unknown view "+req.View, nil)
			return
		}
		subjects = append(subjects, p.State().Subjects()...)
	}
	h.committer.Overlay().SelectAll(subjects)
	writeJSON(w, http.StatusOK, map[string]int{"selected": len(subjects)})
}

func (h *Handler) selectCommitment(w http.ResponseWriter, r *http.Request) {
	key := commitment.NameKey(chi.URLParam(r, "key"))
	var req selectOneRequest
	// the body is optional
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid body", nil)
		return
	}
	h.committer.Overlay().Select(commitment.Subject{Key: key, Name: strings.TrimSpace(req.Name)})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deselectCommitment(w http.ResponseWriter, r *http.Request) {
	h.committer.Overlay().Deselect(commitment.NameKey(chi.URLParam(r, "key")))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearSelection(w http.ResponseWriter, r *http.Request) {
	h.committer.Overlay().ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setField(w http.ResponseWriter, r *http.Request) {
	key := commitment.NameKey(chi.URLParam(r, "key"))
	field := chi.URLParam(r, "field")
	var req fieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "body must be {\"value\": string}", nil)
		return
	}
	o := h.committer.Overlay()
	if err := o.SetPending(key, field, *req.Value); err != nil {
		if errors.Is(err, commitment.ErrNotSelected) {
			writeError(w, http.StatusConflict, CodeNotSelected, err.Error(), map[string]string{"key": key})
			return
		}
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, o.Field(key, field))
}

func (h *Handler) submitCommitments(w http.ResponseWriter, r *http.Request) {
	res, err := h.committer.Submit(r.Context())
	if err != nil {
		meta := map[string]string{}
		var se *commitment.SubmissionError
		if errors.As(err, &se) && se.Status != 0 {
			meta["status"] = strconv.Itoa(se.Status)
		}
		writeError(w, http.StatusBadGateway, CodeSubmissionFailed, err.Error(), meta)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) resetCommitments(w http.ResponseWriter, r *http.Request) {
	h.committer.Overlay().Reset()
	w.WriteHeader(http.StatusNoContent)
}

// getAvatar redirects to the first candidate image that loads. When none does the
// caller gets the initials to render instead.
func (h *Handler) getAvatar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src, name := q.Get("src"), q.Get("name")
	if combined := q.Get("cell"); combined != "" {
		src, name = extract.SplitCombined(combined)
	}
	if candidates := extract.ImageCandidates(src); len(candidates) > 0 {
		u, err := h.images.Resolve(r.Context(), candidates)
		if err == nil {
			http.Redirect(w, r, u, http.StatusFound)
			return
		}
		log.WithField("src", src).Debugf("avatar falls back to initials: %v", err)
	}
	res := avatarResponse{Initials: extract.Initials(name), Name: strings.TrimSpace(name)}
	if src = strings.TrimSpace(src); src != "" && !h.images.Allows(src) && isWebURL(src) {
		res.Src = src
	}
	writeJSON(w, http.StatusOK, res)
}

func isWebURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Host != "" && (u.Scheme == "https" || u.Scheme == "http")
}

func nonNil(a []extract.Aggregate) []extract.Aggregate {
	if a == nil {
		return []extract.Aggregate{}
	}
	return a
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("encode response: %v", err)
		sendResponse(w, http.StatusInternalServerError, []byte(`{"code":"INTERNAL","message":"encode response"}`))
		return
	}
	sendResponse(w, status, body)
}

func writeError(w http.ResponseWriter, status int, code, message string, meta map[string]string) {
	if len(meta) == 0 {
		meta = nil
	}
	writeJSON(w, status, ErrorEnvelope{Code: code, Message: message, Meta: meta})
}

func sendResponse(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
