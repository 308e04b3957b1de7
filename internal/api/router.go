// Package api mounts the HTTP routes and documents them in the generated
// OpenAPI document.
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/lambda-api/internal/server"
)

// Group is a chi router that records every route it mounts in a Spec.
type Group struct {
	router chi.Router
	prefix string
	spec   *Spec
	errs   *server.ErrorHandler
}

// NewGroup wraps r. prefix is the path r is mounted at.
func NewGroup(r chi.Router, prefix string, spec *Spec, errs *server.ErrorHandler) *Group {
	return &Group{router: r, prefix: strings.TrimSuffix(prefix, "/"), spec: spec, errs: errs}
}

// Router exposes the underlying chi router.
func (g *Group) Router() chi.Router {
	return g.router
}

// Route mounts a sub-group at pattern.
func (g *Group) Route(pattern string, fn func(*Group)) {
	g.router.Route(pattern, func(r chi.Router) {
		fn(&Group{router: r, prefix: g.prefix + pattern, spec: g.spec, errs: g.errs})
	})
}

// Mount attaches routes that are registered by another package and documents
// them with ops, whose paths are relative to pattern.
func (g *Group) Mount(pattern string, routes func(chi.Router), ops ...Operation) {
	g.router.Route(pattern, routes)
	for _, op := range ops {
		op.Path = g.prefix + pattern + op.Path
		g.spec.Add(op)
	}
}

// Handle registers h for op. op.Path is relative to the group.
func (g *Group) Handle(op Operation, h server.HandlerFunc) {
	pattern := op.Path
	if pattern == "" {
		pattern = "/"
	}
	g.router.Method(op.Method, pattern, g.errs.Handle(h))

	op.Path = g.prefix + strings.TrimSuffix(pattern, "/")
	if op.Path == "" {
		op.Path = "/"
	}
	g.spec.Add(op)
}

// HandleFunc registers an undocumented plain handler.
func (g *Group) HandleFunc(method, pattern string, h http.HandlerFunc) {
	g.router.MethodFunc(method, pattern, h)
}
