// Package panelhttp serves the prediction panels over server-rendered HTML
// and JSON.
package panelhttp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xuanji-ai/xuanji-web/internal/i18n"
	"github.com/xuanji-ai/xuanji-web/internal/panel"
	"github.com/xuanji-ai/xuanji-web/internal/platform/httpx"
	"github.com/xuanji-ai/xuanji-web/internal/shared"
	"github.com/xuanji-ai/xuanji-web/internal/view"
)

// PageRenderer renders the page that hosts a group of panels. A non-nil
// override replaces the stored form of the panel with the same ID.
type PageRenderer interface {
	RenderPage(w http.ResponseWriter, r *http.Request, status int, override *FormView)
}

// Handler wires panel SSR endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *panel.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	pages     map[panel.Group]PageRenderer
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *panel.Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
	h.pages = map[panel.Group]PageRenderer{panel.GroupMain: mainPage{h}}
	return h
}

// HostGroup lets another page own the rendering of a panel group.
func (h *Handler) HostGroup(group panel.Group, page PageRenderer) {
	h.pages[group] = page
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{panelID}", h.show)
	r.Post("/{panelID}", h.submit)
}

// Scope returns the key that isolates panel state per browser session.
func Scope(r *http.Request) string {
	return shared.ScopeFromContext(r.Context())
}

type stateResponse struct {
	Panel    string          `json:"panel"`
	Status   panel.Status    `json:"status"`
	Busy     bool            `json:"busy"`
	Values   panel.Values    `json:"values"`
	Result   json.RawMessage `json:"result,omitempty"`
	ResultAt string          `json:"result_at,omitempty"`
}

type submitResponse struct {
	Status       panel.Status    `json:"status"`
	SubmissionID string          `json:"submission_id"`
	Result       json.RawMessage `json:"result"`
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	panelID := chi.URLParam(r, "panelID")
	v, err := h.service.View(r.Context(), Scope(r), panelID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if httpx.WantsJSON(r) {
		resp := stateResponse{
			Panel:  v.Definition.ID,
			Status: v.State.Status,
			Busy:   v.Busy,
			Values: v.Values,
			Result: v.State.Result,
		}
		if v.State.HasResult() {
			resp.ResultAt = v.State.ResultAt.Format(panel.DateTimeLayout)
		}
		httpx.JSON(w, http.StatusOK, resp)
		return
	}
	if v.Definition.Group != panel.GroupMain {
		http.Redirect(w, r, v.Definition.Path(), http.StatusSeeOther)
		return
	}
	h.pages[panel.GroupMain].RenderPage(w, r, http.StatusOK, nil)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	panelID := chi.URLParam(r, "panelID")
	def, ok := h.service.Catalog().Lookup(panelID)
	if !ok {
		h.fail(w, r, panel.ErrUnknownPanel)
		return
	}
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form body")
		return
	}
	raw := make(panel.Values, len(def.Fields))
	for _, f := range def.Fields {
		raw[f.Name] = r.PostFormValue(f.Name)
	}

	scope := Scope(r)
	loc := i18n.FromContext(r.Context())
	state, err := h.service.Submit(r.Context(), scope, def.ID, raw)

	var validation *panel.ValidationError
	switch {
	case err == nil:
		if httpx.WantsJSON(r) {
			httpx.JSON(w, http.StatusOK, submitResponse{Status: state.Status, SubmissionID: state.SubmissionID, Result: state.Result})
			return
		}
		http.Redirect(w, r, def.Path(), http.StatusSeeOther)
	case errors.As(err, &validation):
		if httpx.WantsJSON(r) {
			httpx.ValidationProblem(w, loc.T("validation.summary"), localizeFields(loc, validation.Fields))
			return
		}
		h.renderInvalid(w, r, def, raw, validation.Fields)
	case errors.Is(err, panel.ErrBusy):
		if httpx.WantsJSON(r) {
			httpx.RespondError(w, httpx.ErrConflict, loc.T("panel.busy"))
			return
		}
		h.redirectWithFlash(w, r, def.Path(), shared.FlashWarning, loc.T("panel.busy"))
	case errors.Is(err, panel.ErrDispatch):
		if httpx.WantsJSON(r) {
			httpx.RespondError(w, httpx.ErrUpstream, loc.T(def.FailureKey))
			return
		}
		h.redirectWithFlash(w, r, def.Path(), shared.FlashError, loc.T(def.FailureKey))
	default:
		h.fail(w, r, err)
	}
}

func (h *Handler) renderInvalid(w http.ResponseWriter, r *http.Request, def panel.Definition, raw panel.Values, fields map[string]string) {
	v, err := h.service.View(r.Context(), Scope(r), def.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v.Values = def.Normalize(raw)
	form := BuildForm(i18n.FromContext(r.Context()), v, fields)
	page, ok := h.pages[def.Group]
	if !ok {
		page = h.pages[panel.GroupMain]
	}
	page.RenderPage(w, r, http.StatusBadRequest, &form)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	loc := i18n.FromContext(r.Context())
	if errors.Is(err, panel.ErrUnknownPanel) {
		if httpx.WantsJSON(r) {
			httpx.RespondError(w, httpx.ErrNotFound, loc.T("error.not_found"))
			return
		}
		http.Error(w, loc.T("error.not_found"), http.StatusNotFound)
		return
	}
	h.logger.Error("panel request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	if httpx.WantsJSON(r) {
		httpx.RespondError(w, err, loc.T("error.internal"))
		return
	}
	http.Error(w, loc.T("error.internal"), http.StatusInternalServerError)
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func localizeFields(loc *i18n.Localizer, fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for name, code := range fields {
		out[name] = loc.T("validation." + code)
	}
	return out
}

// mainPage renders a single main panel as its own tab.
type mainPage struct {
	h *Handler
}

// PanelPage is the data of pages/panel.html.
type PanelPage struct {
	Form FormView
}

func (p mainPage) RenderPage(w http.ResponseWriter, r *http.Request, status int, override *FormView) {
	h := p.h
	var form FormView
	if override != nil {
		form = *override
	} else {
		v, err := h.service.View(r.Context(), Scope(r), chi.URLParam(r, "panelID"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		form = BuildForm(i18n.FromContext(r.Context()), v, nil)
	}
	h.render(w, r, status, "pages/panel.html", form.Title, PanelPage{Form: form})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, tpl, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Loc:         i18n.FromContext(r.Context()),
		Nav:         Nav(h.service.Catalog(), r.URL.Path),
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, tpl, viewData); err != nil {
		h.logger.Error("render panel template", slog.String("template", tpl), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
