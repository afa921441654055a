package resolutions

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/resolution"
)

type Handler struct {
	store resolution.Store
}

func NewHandler(store resolution.Store) *Handler {
	return &Handler{store: store}
}

// Register registers decision store routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/resolutions", h.List)
	g.DELETE("/resolutions", h.Clear)
	g.GET("/resolutions/:key", h.Get)
	g.DELETE("/resolutions/:key", h.Delete)
}

// ListResponse is every stored decision, with counts per action
type ListResponse struct {
	Total     int                             `json:"total"`
	ByAction  map[models.ResolutionAction]int `json:"by_action"`
	Decisions []models.ResolutionDecision     `json:"decisions"`
}

// List returns stored decisions, optionally filtered by ?action=
func (h *Handler) List(c echo.Context) error {
	decisions, err := h.store.List(c.Request().Context())
	if err != nil {
		return err
	}
	if action := c.QueryParam("action"); action != "" {
		parsed, ok := models.ParseResolutionAction(action)
		if !ok {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown action %q", action)
		}
		decisions = resolution.GroupByAction(decisions)[parsed]
	}

	resp := ListResponse{
		Total:     len(decisions),
		ByAction:  map[models.ResolutionAction]int{},
		Decisions: decisions,
	}
	if resp.Decisions == nil {
		resp.Decisions = []models.ResolutionDecision{}
	}
	for action, group := range resolution.GroupByAction(decisions) {
		resp.ByAction[action] = len(group)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Get(c echo.Context) error {
	key, err := pathKey(c)
	if err != nil {
		return err
	}
	decision, err := h.store.Get(c.Request().Context(), key)
	if err != nil {
		return err
	}
	if decision == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "no decision for %s", key)
	}
	return c.JSON(http.StatusOK, decision)
}

func (h *Handler) Delete(c echo.Context) error {
	key, err := pathKey(c)
	if err != nil {
		return err
	}
	if err := h.store.Delete(c.Request().Context(), key); err != nil {
		if errors.Is(err, resolution.ErrDecisionNotFound) {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "no decision for %s", key)
		}
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Clear removes every decision
func (h *Handler) Clear(c echo.Context) error {
	removed, err := h.store.Clear(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}

// pair keys carry names and "|", so clients percent-encode them
func pathKey(c echo.Context) (string, error) {
	key, err := url.PathUnescape(c.Param("key"))
	if err != nil || key == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "invalid decision key")
	}
	return key, nil
}
