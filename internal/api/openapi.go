package api

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/tjfontaine/lambda-api/internal/domain"
)

// Document metadata served at /api/openapi.json.
const (
	DocumentTitle       = "Hono AWS Lambda API"
	DocumentVersion     = "1.0.0"
	DocumentDescription = "Production-ready REST API with AWS Lambda"
)

// Operation describes one route for the OpenAPI document.
type Operation struct {
	Method      string
	Path        string
	Summary     string
	Description string
	Tags        []string

	// Request is a zero value of the JSON body type, or nil.
	Request any

	// Response is a zero value of the 200 JSON body type, or nil.
	Response any

	// Streaming marks a text/event-stream response.
	Streaming bool
}

// Spec collects operations as routes are mounted.
type Spec struct {
	mu         sync.Mutex
	serverURL  string
	operations []Operation
}

// NewSpec creates an empty Spec advertising serverURL.
func NewSpec(serverURL string) *Spec {
	if serverURL == "" {
		serverURL = "http://localhost:3000"
	}
	return &Spec{serverURL: serverURL}
}

// Add records an operation.
func (s *Spec) Add(op Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations = append(s.operations, op)
}

// Operations returns the recorded operations sorted by path then method.
func (s *Spec) Operations() []Operation {
	s.mu.Lock()
	ops := append([]Operation(nil), s.operations...)
	s.mu.Unlock()

	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return ops
}

// errorEnvelope documents the failure body shared by every route.
type errorEnvelope struct {
	Success bool             `json:"success"`
	Error   domain.ErrorBody `json:"error"`
	Meta    *domain.Meta     `json:"meta,omitempty"`
}

// envelope documents a successful body carrying T.
type envelope[T any] struct {
	Success bool         `json:"success"`
	Data    T            `json:"data"`
	Meta    *domain.Meta `json:"meta,omitempty"`
}

// Build renders the OpenAPI 3.0.0 document.
func (s *Spec) Build() (*openapi3.T, error) {
	doc := &openapi3.T{
		OpenAPI: "3.0.0",
		Info: &openapi3.Info{
			Title:       DocumentTitle,
			Version:     DocumentVersion,
			Description: DocumentDescription,
		},
		Servers: openapi3.Servers{{URL: s.serverURL, Description: "API Server"}},
		Paths:   openapi3.Paths{},
	}

	schemas := openapi3.Schemas{}
	errRef, err := openapi3gen.NewSchemaRefForValue(errorEnvelope{}, schemas)
	if err != nil {
		return nil, fmt.Errorf("error schema: %w", err)
	}

	for _, op := range s.Operations() {
		operation, err := buildOperation(op, schemas, errRef)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", op.Method, op.Path, err)
		}

		item := doc.Paths[op.Path]
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths[op.Path] = item
		}
		item.SetOperation(strings.ToUpper(op.Method), operation)
	}
	return doc, nil
}

func buildOperation(op Operation, schemas openapi3.Schemas, errRef *openapi3.SchemaRef) (*openapi3.Operation, error) {
	operation := &openapi3.Operation{
		Summary:     op.Summary,
		Description: op.Description,
		Tags:        op.Tags,
		Responses:   openapi3.Responses{},
	}

	for _, name := range pathParams(op.Path) {
		operation.Parameters = append(operation.Parameters, &openapi3.ParameterRef{
			Value: openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema()),
		})
	}

	if op.Request != nil {
		ref, err := openapi3gen.NewSchemaRefForValue(op.Request, schemas)
		if err != nil {
			return nil, err
		}
		operation.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(ref),
		}
	}

	ok := openapi3.NewResponse().WithDescription(http.StatusText(http.StatusOK))
	switch {
	case op.Streaming:
		ok.WithContent(openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{"text/event-stream"}))
	case op.Response != nil:
		ref, err := openapi3gen.NewSchemaRefForValue(op.Response, schemas)
		if err != nil {
			return nil, err
		}
		ok.WithJSONSchemaRef(ref)
	}
	operation.Responses["200"] = &openapi3.ResponseRef{Value: ok}
	operation.Responses["default"] = &openapi3.ResponseRef{
		Value: openapi3.NewResponse().WithDescription("Error").WithJSONSchemaRef(errRef),
	}
	return operation, nil
}

// pathParams extracts {name} segments from a route pattern.
func pathParams(path string) []string {
	var names []string
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}"))
		}
	}
	return names
}
