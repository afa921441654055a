package imports

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fictotum/internal/platform/reqctx"
	"github.com/Ramsey-B/fictotum/pkg/importer"
	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/schema"
)

// ConfirmPhrase must accompany execute=true before anything is written
const ConfirmPhrase = "CONFIRM"

type Handler struct {
	coordinator *importer.Coordinator
	defaults    importer.Options
}

// NewHandler creates the import handler. defaults supplies batch size and agent.
func NewHandler(coordinator *importer.Coordinator, defaults importer.Options) *Handler {
	return &Handler{coordinator: coordinator, defaults: defaults}
}

// Register registers import routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/imports", h.Import)
	g.POST("/imports/check", h.Check)
}

// Import runs a batch. It is a dry run unless execute=true and confirm=CONFIRM.
func (h *Handler) Import(c echo.Context) error {
	ctx := c.Request().Context()

	opts := h.defaults
	execute, _ := strconv.ParseBool(c.QueryParam("execute"))
	if execute && c.QueryParam("confirm") != ConfirmPhrase {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "execute requires confirm=%s", ConfirmPhrase)
	}
	opts.Execute = execute
	opts.FiguresOnly, _ = strconv.ParseBool(c.QueryParam("figures_only"))
	opts.WorksOnly, _ = strconv.ParseBool(c.QueryParam("works_only"))
	if opts.FiguresOnly && opts.WorksOnly {
		return httperror.NewHTTPError(http.StatusBadRequest, "figures_only and works_only are exclusive")
	}

	batch, err := h.decode(c)
	if err != nil {
		return err
	}

	result, err := h.coordinator.Import(ctx, batch, opts)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if result.Run.Outcome == models.ImportOutcomeFailed {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, result)
}

// Check reports how every record in the batch would match, writing nothing
func (h *Handler) Check(c echo.Context) error {
	batch, err := h.decode(c)
	if err != nil {
		return err
	}
	result, err := h.coordinator.Check(c.Request().Context(), batch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) decode(c echo.Context) (*models.Batch, error) {
	format := schema.FormatJSON
	switch c.Request().Header.Get(echo.HeaderContentType) {
	case "application/yaml", "application/x-yaml", "text/yaml":
		format = schema.FormatYAML
	}
	batch, err := schema.Decode(c.Request().Body, format)
	if err != nil {
		if models.IsValidationError(err) {
			return nil, err
		}
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid batch document: %v", err)
	}
	if batch.Metadata.Curator == "" {
		batch.Metadata.Curator = reqctx.GetCurator(c.Request().Context())
	}
	return batch, nil
}
