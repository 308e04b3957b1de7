package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/lambda-api/internal/api"
	"github.com/tjfontaine/lambda-api/internal/auth"
	"github.com/tjfontaine/lambda-api/internal/server"
)

const openAPIPath = "/api/openapi.json"

func (a *App) routes() {
	r := a.Server.Router
	errs := a.Server.Errors
	spec := api.NewSpec(a.Config.AuthURL)

	r.Get("/health", api.Health)
	r.Get("/docs", api.DocsHandler(openAPIPath))

	r.Route("/api", func(r chi.Router) {
		r.Get("/openapi.json", api.OpenAPIHandler(spec, errs, a.Logger))

		r.Group(func(r chi.Router) {
			r.Use(server.CSRFMiddleware)
			r.Use(server.SessionMiddleware(a.Auth))
			r.Use(server.RateLimitMiddleware(a.Limiter, server.UserOrIPKey, a.Logger))

			g := api.NewGroup(r, "/api", spec, errs)
			g.Handle(api.HealthOperation("/health"), func(w http.ResponseWriter, r *http.Request) error {
				api.Health(w, r)
				return nil
			})
			g.Mount("/auth", auth.NewHandler(a.Auth, errs, a.Config.IsProduction()).Routes, api.AuthOperations()...)
			api.NewExampleHandler(a.Store).Routes(g)
			g.Route("/ai", api.NewAIHandler(a.AI, a.Logger).Routes)
		})
	})
}
