package validation

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/schema"
)

// ValidateResponse represents a validation response
type ValidateResponse struct {
	Valid    bool                    `json:"valid"`
	Errors   models.ValidationErrors `json:"errors,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
}

type Handler struct {
	validator *schema.Validator
}

func NewHandler() *Handler {
	return &Handler{validator: schema.NewValidator()}
}

// Register registers validation routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/validate", h.ValidateBatch)
}

// ValidateBatch checks a batch document without matching or writing. An
// invalid batch is still a 200; only an unreadable document is a 400.
func (h *Handler) ValidateBatch(c echo.Context) error {
	format := schema.FormatJSON
	switch c.Request().Header.Get(echo.HeaderContentType) {
	case "application/yaml", "application/x-yaml", "text/yaml":
		format = schema.FormatYAML
	}

	batch, err := schema.Decode(c.Request().Body, format)
	if err != nil {
		var decodeErrs models.ValidationErrors
		if !errors.As(err, &decodeErrs) {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid batch document: %v", err)
		}
		return c.JSON(http.StatusOK, ValidateResponse{Valid: false, Errors: decodeErrs})
	}

	report := h.validator.ValidateBatch(batch)
	return c.JSON(http.StatusOK, ValidateResponse{
		Valid:    report.Err() == nil,
		Errors:   report.Errors,
		Warnings: report.Warnings,
	})
}
