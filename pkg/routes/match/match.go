package match

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fictotum/pkg/matching"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

// Request is one record to classify against the graph
type Request struct {
	Kind       string         `json:"kind"`
	LocalID    string         `json:"local_id"`
	WikidataID string         `json:"wikidata_id"`
	Name       string         `json:"name"`
	Year       *int           `json:"year"`
	Category   string         `json:"category"`
	Properties map[string]any `json:"properties"`
}

func (r Request) entity() (models.Entity, error) {
	kind, ok := models.ParseEntityKind(r.Kind)
	if !ok {
		return models.Entity{}, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown entity kind %q", r.Kind)
	}
	if strings.TrimSpace(r.Name) == "" {
		return models.Entity{}, httperror.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	return models.Entity{
		Kind:            kind,
		LocalID:         strings.TrimSpace(r.LocalID),
		AuthoritativeID: strings.TrimSpace(r.WikidataID),
		Name:            strings.TrimSpace(r.Name),
		Year:            r.Year,
		Category:        strings.TrimSpace(r.Category),
		Properties:      r.Properties,
	}, nil
}

type Handler struct {
	matcher *matching.Matcher
}

func NewHandler(matcher *matching.Matcher) *Handler {
	return &Handler{matcher: matcher}
}

// Register registers match routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/match", h.Match)
}

// Match classifies a record without writing anything
func (h *Handler) Match(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	incoming, err := req.entity()
	if err != nil {
		return err
	}

	result, err := h.matcher.Match(c.Request().Context(), incoming)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
