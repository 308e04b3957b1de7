package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/lambda-api/internal/domain"
	"github.com/tjfontaine/lambda-api/internal/server"
	"github.com/tjfontaine/lambda-api/internal/storage"
)

// CreateExampleRequest is the body of POST /api/example.
type CreateExampleRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// ExampleHandler serves the demo resource.
type ExampleHandler struct {
	store storage.ExampleStore
}

// NewExampleHandler creates an ExampleHandler.
func NewExampleHandler(store storage.ExampleStore) *ExampleHandler {
	return &ExampleHandler{store: store}
}

// Routes mounts the example routes on g.
func (h *ExampleHandler) Routes(g *Group) {
	g.Handle(Operation{
		Method:      http.MethodPost,
		Path:        "/example",
		Summary:     "Create example",
		Description: "Creates a new example item",
		Tags:        []string{"Example"},
		Request:     CreateExampleRequest{},
		Response:    envelope[domain.Example]{},
	}, h.create)

	g.Handle(Operation{
		Method:      http.MethodGet,
		Path:        "/example",
		Summary:     "List examples",
		Description: "Lists example items, newest first",
		Tags:        []string{"Example"},
		Response:    envelope[[]domain.Example]{},
	}, h.list)

	g.Handle(Operation{
		Method:      http.MethodGet,
		Path:        "/example/{id}",
		Summary:     "Get example",
		Description: "Returns one example item",
		Tags:        []string{"Example"},
		Response:    envelope[domain.Example]{},
	}, h.get)
}

func (h *ExampleHandler) create(w http.ResponseWriter, r *http.Request) error {
	var req CreateExampleRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		return err
	}

	now := server.Now().UTC().Truncate(time.Millisecond)
	ex := &domain.Example{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.CreateExample(r.Context(), ex); err != nil {
		return err
	}

	server.AddLogField(r.Context(), "example_id", ex.ID)
	server.WriteSuccess(w, r, ex)
	return nil
}

func (h *ExampleHandler) list(w http.ResponseWriter, r *http.Request) error {
	opts := storage.ListOptions{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	examples, err := h.store.ListExamples(r.Context(), opts.Normalize())
	if err != nil {
		return err
	}
	if examples == nil {
		examples = []*domain.Example{}
	}
	server.WriteSuccess(w, r, examples)
	return nil
}

func (h *ExampleHandler) get(w http.ResponseWriter, r *http.Request) error {
	ex, err := h.store.GetExample(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrNotFound("Example not found")
		}
		return err
	}
	server.WriteSuccess(w, r, ex)
	return nil
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
