package merges

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fictotum/pkg/merging"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

// ConfirmPhrase must accompany an executing merge
const ConfirmPhrase = "CONFIRM"

// DuplicatesResponse lists what a merge of one kind would consolidate
type DuplicatesResponse struct {
	Kind         models.EntityKind          `json:"kind"`
	Groups       []models.DuplicateGroup    `json:"groups"`
	ManualReview []models.ManualReviewGroup `json:"manual_review"`
}

// Request starts a merge sweep
type Request struct {
	Kind     string `json:"kind"`
	Execute  bool   `json:"execute"`
	Confirm  string `json:"confirm"`
	Retire   string `json:"retire"`
	Tiebreak string `json:"tiebreak"`
}

type Handler struct {
	engine   *merging.Engine
	defaults merging.Options
}

// NewHandler creates the merge handler. defaults supplies the retire mode and tiebreak.
func NewHandler(engine *merging.Engine, defaults merging.Options) *Handler {
	return &Handler{engine: engine, defaults: defaults}
}

// Register registers duplicate and merge routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/duplicates", h.ListDuplicates)
	g.POST("/merges", h.Merge)
}

// ListDuplicates detects duplicate groups of ?kind= (default MediaWork)
func (h *Handler) ListDuplicates(c echo.Context) error {
	kind, err := parseKind(c.QueryParam("kind"))
	if err != nil {
		return err
	}
	groups, manual, err := h.engine.Detect(c.Request().Context(), kind)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DuplicatesResponse{Kind: kind, Groups: groups, ManualReview: manual})
}

// Merge consolidates duplicates. It is a dry run unless execute is set with confirm=CONFIRM.
func (h *Handler) Merge(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	kind, err := parseKind(req.Kind)
	if err != nil {
		return err
	}
	if req.Execute && req.Confirm != ConfirmPhrase {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "execute requires confirm=%s", ConfirmPhrase)
	}

	opts := h.defaults
	opts.Execute = req.Execute
	if req.Retire != "" {
		if opts.Retire, err = merging.ParseRetireMode(req.Retire); err != nil {
			return err
		}
	}
	if req.Tiebreak != "" {
		if opts.Tiebreak, err = merging.ParseTiebreakPolicy(req.Tiebreak); err != nil {
			return err
		}
	}

	result, err := h.engine.Run(c.Request().Context(), kind, opts)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if result.Failed() {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, result)
}

func parseKind(s string) (models.EntityKind, error) {
	if s == "" {
		return models.EntityKindMediaWork, nil
	}
	kind, ok := models.ParseEntityKind(s)
	if !ok {
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown entity kind %q", s)
	}
	return kind, nil
}
