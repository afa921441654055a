package entity

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fictotum/pkg/graph"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

// Response is an entity with its edges
type Response struct {
	Entity        models.Entity         `json:"entity"`
	Relationships []models.Relationship `json:"relationships,omitempty"`
}

type Handler struct {
	store graph.Store
}

func NewHandler(store graph.Store) *Handler {
	return &Handler{store: store}
}

// Register registers entity routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/entities/:kind/:id", h.GetEntity)
	g.GET("/entities/:kind/:id/relationships", h.GetEntityRelationships)
}

// GetEntity gets an entity by local id or any authoritative id it holds
func (h *Handler) GetEntity(c echo.Context) error {
	e, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Entity: *e})
}

// GetEntityRelationships gets the entity with its edges, filtered by ?direction=incoming|outgoing|both
func (h *Handler) GetEntityRelationships(c echo.Context) error {
	ctx := c.Request().Context()

	direction := c.QueryParam("direction")
	switch direction {
	case "":
		direction = "both"
	case "both", "incoming", "outgoing":
	default:
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown direction %q", direction)
	}

	e, err := h.lookup(c)
	if err != nil {
		return err
	}
	rels, err := h.relationships(ctx, e.Key, direction)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Entity: *e, Relationships: rels})
}

func (h *Handler) lookup(c echo.Context) (*models.Entity, error) {
	ctx := c.Request().Context()

	kind, ok := models.ParseEntityKind(c.Param("kind"))
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown entity kind %q", c.Param("kind"))
	}
	id := c.Param("id")

	e, err := h.store.FindByLocalID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		if e, err = h.store.FindByAuthoritativeID(ctx, kind, id); err != nil {
			return nil, err
		}
	}
	if e == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "%s %s not found", kind, id)
	}
	return e, nil
}

func (h *Handler) relationships(ctx context.Context, key, direction string) ([]models.Relationship, error) {
	var out []models.Relationship
	err := h.store.ExecuteRead(ctx, func(tx graph.Tx) error {
		rels, err := tx.Relationships(ctx, key)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			_, outgoing := rel.Counterpart(key)
			if (direction == "outgoing" && !outgoing) || (direction == "incoming" && outgoing) {
				continue
			}
			out = append(out, rel)
		}
		return nil
	})
	return out, err
}
