package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xuanji-ai/xuanji-web/internal/i18n"
	"github.com/xuanji-ai/xuanji-web/internal/panel"
	panelhttp "github.com/xuanji-ai/xuanji-web/internal/panel/http"
	"github.com/xuanji-ai/xuanji-web/internal/platform/httpx"
	"github.com/xuanji-ai/xuanji-web/internal/shared"
	"github.com/xuanji-ai/xuanji-web/internal/view"
)

// Handler serves the dashboard page.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	panels    *panel.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *Service, panels *panel.Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, panels: panels, templates: templates, csrf: csrf}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
}

// Page is the data of pages/dashboard.html.
type Page struct {
	Snapshot Snapshot
	Forms    []panelhttp.FormView
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "1" {
		if err := h.service.Refresh(r.Context()); err != nil {
			h.logger.Warn("refresh dashboard snapshot", slog.Any("error", err))
		}
	}
	if httpx.WantsJSON(r) {
		snap, err := h.service.Snapshot(r.Context())
		if err != nil {
			httpx.RespondError(w, err, "")
			return
		}
		httpx.JSON(w, http.StatusOK, snap)
		return
	}
	h.RenderPage(w, r, http.StatusOK, nil)
}

// RenderPage renders the dashboard with its action panels. It implements
// panelhttp.PageRenderer so failed validations re-render in place.
func (h *Handler) RenderPage(w http.ResponseWriter, r *http.Request, status int, override *panelhttp.FormView) {
	ctx := r.Context()
	loc := i18n.FromContext(ctx)
	snap, err := h.service.Snapshot(ctx)
	if err != nil {
		h.logger.Error("dashboard snapshot", slog.Any("error", err))
		http.Error(w, loc.T("error.internal"), http.StatusInternalServerError)
		return
	}
	page := Page{Snapshot: snap}
	scope := panelhttp.Scope(r)
	for _, def := range h.panels.Catalog().InGroup(panel.GroupDashboard) {
		if override != nil && override.ID == def.ID {
			page.Forms = append(page.Forms, *override)
			continue
		}
		v, err := h.panels.View(ctx, scope, def.ID)
		if err != nil {
			h.logger.Error("dashboard panel view", slog.String("panel", def.ID), slog.Any("error", err))
			http.Error(w, loc.T("error.internal"), http.StatusInternalServerError)
			return
		}
		page.Forms = append(page.Forms, panelhttp.BuildForm(loc, v, nil))
	}

	sess := shared.SessionFromContext(ctx)
	csrfToken, _ := h.csrf.EnsureToken(ctx, sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       loc.T("dashboard.title"),
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: "/dashboard",
		Loc:         loc,
		Nav:         panelhttp.Nav(h.panels.Catalog(), "/dashboard"),
		Data:        page,
	}
	if err := h.templates.RenderStatus(w, status, "pages/dashboard.html", data); err != nil {
		h.logger.Error("render dashboard template", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
