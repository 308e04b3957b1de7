package api

import (
	"net/http"

	"github.com/tjfontaine/lambda-api/internal/domain"
)

type authCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type authSession struct {
	Token   string          `json:"token,omitempty"`
	User    *domain.User    `json:"user"`
	Session *domain.Session `json:"session,omitempty"`
}

// AuthOperations documents the routes of auth.Handler, relative to its mount
// point.
func AuthOperations() []Operation {
	tags := []string{"Auth"}
	return []Operation{
		{
			Method:      http.MethodPost,
			Path:        "/sign-up/email",
			Summary:     "Sign up",
			Description: "Registers an account and opens a session",
			Tags:        tags,
			Request:     authCredentials{},
			Response:    authSession{},
		},
		{
			Method:      http.MethodPost,
			Path:        "/sign-in/email",
			Summary:     "Sign in",
			Description: "Verifies credentials and opens a session",
			Tags:        tags,
			Request:     authCredentials{},
			Response:    authSession{},
		},
		{
			Method:      http.MethodGet,
			Path:        "/get-session",
			Summary:     "Current session",
			Description: "Returns the session for the bearer token or cookie, or null",
			Tags:        tags,
			Response:    authSession{},
		},
		{
			Method:      http.MethodPost,
			Path:        "/sign-out",
			Summary:     "Sign out",
			Description: "Ends the current session",
			Tags:        tags,
		},
	}
}
