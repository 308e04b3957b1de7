package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/lambda-api/internal/domain"
	"github.com/tjfontaine/lambda-api/internal/server"
)

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"max=100"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Token   string          `json:"token,omitempty"`
	User    *domain.User    `json:"user"`
	Session *domain.Session `json:"session,omitempty"`
}

// Handler serves the /api/auth routes.
type Handler struct {
	svc    *Service
	errs   *server.ErrorHandler
	secure bool
}

// NewHandler creates the auth route handler. When secure is set the session
// cookie is marked Secure.
func NewHandler(svc *Service, errs *server.ErrorHandler, secure bool) *Handler {
	return &Handler{svc: svc, errs: errs, secure: secure}
}

// Routes mounts the auth endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sign-up/email", h.errs.Handle(h.signUp))
	r.Post("/sign-in/email", h.errs.Handle(h.signIn))
	r.Get("/get-session", h.errs.Handle(h.getSession))
	r.Post("/sign-out", h.errs.Handle(h.signOut))
}

func clientInfo(r *http.Request) ClientInfo {
	return ClientInfo{IPAddress: server.ClientIP(r), UserAgent: r.UserAgent()}
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) error {
	var req signUpRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		return err
	}

	user, sess, token, err := h.svc.SignUp(r.Context(), req.Email, req.Password, req.Name, clientInfo(r))
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return domain.ErrValidation("User already exists").WithStatusCode(http.StatusUnprocessableEntity)
		}
		return err
	}

	h.setCookie(w, token, sess.ExpiresAt)
	server.WriteJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
	return nil
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) error {
	var req signInRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		return err
	}

	user, sess, token, err := h.svc.SignIn(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return domain.ErrUnauthorized("Invalid email or password")
		}
		return err
	}

	server.AddLogField(r.Context(), "user_id", user.ID)
	h.setCookie(w, token, sess.ExpiresAt)
	server.WriteJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
	return nil
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) error {
	user, sess, err := h.svc.ResolveSession(r.Context(), server.SessionToken(r))
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			server.WriteJSON(w, http.StatusOK, nil)
			return nil
		}
		return err
	}

	server.WriteJSON(w, http.StatusOK, sessionResponse{User: user, Session: sess})
	return nil
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) error {
	if err := h.svc.SignOut(r.Context(), server.SessionToken(r)); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     server.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	server.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	return nil
}

func (h *Handler) setCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     server.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
