package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/sponsor-auth/csrf"
	"github.com/jrsteele09/sponsor-auth/internal/errors"
	"github.com/jrsteele09/sponsor-auth/users"
	"github.com/rs/zerolog/log"
)

type tokenResponse struct {
	Form  string `json:"form"`
	Token string `json:"token"`
}

type meResponse struct {
	Role  users.Role `json:"role"`
	ID    int        `json:"id"`
	Email string     `json:"email,omitempty"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// CSRFTokenHandler issues a token for ?form=NAME on the caller's session
func (s *Server) CSRFTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := csrf.Form(r.URL.Query().Get(FieldForm))

		sess, err := s.jar.GetOrCreate(w, r)
		if err != nil {
			log.Err(err).Msg("[CSRFTokenHandler] no session")
			writeError(w, http.StatusInternalServerError, "session unavailable")
			return
		}

		token, err := s.ledger.Refresh(r.Context(), sess, form, s.config.GetCSRFTokenTimeout())
		switch {
		case errors.Is(err, errors.ErrUnknownForm):
			writeError(w, http.StatusNotFound, "unknown form")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "token unavailable")
			return
		}

		w.Header().Set(csrf.HeaderName, token)
		writeJSON(w, http.StatusOK, tokenResponse{Form: string(form), Token: token})
	}
}

// LoginHandler authenticates email/password or a trainee token. The email
// is only used when a password is supplied.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject, secret := r.PostFormValue(FieldToken), ""
		if password := strings.TrimSpace(r.PostFormValue(FieldPassword)); password != "" {
			subject, secret = r.PostFormValue(FieldEmail), password
		}

		identity, err := s.resolver.Resolve(r.Context(), subject, secret)
		switch {
		case errors.Is(err, errors.ErrAuthMalformed):
			log.Info().Str("remote", clientAddress(r)).Msg("login attempt with blank credentials")
			writeError(w, http.StatusBadRequest, "credentials required")
			return
		case err != nil:
			writeError(w, http.StatusForbidden, "login failed")
			return
		}

		if !s.logins.Login(w, r, identity) {
			writeError(w, http.StatusInternalServerError, "session unavailable")
			return
		}
		// Any token attached earlier belongs to the discarded session
		w.Header().Del(csrf.HeaderName)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.jar.Current(r)
		if err != nil || !s.logins.Logout(w, r, sess) {
			writeError(w, http.StatusInternalServerError, "logout failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.jar.Current(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		identity, ok := s.logins.User(r.Context(), sess)
		if !ok {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		writeJSON(w, http.StatusOK, meResponse{Role: s.logins.Role(identity), ID: identity.ID, Email: identity.Email})
	}
}

// SelectSponsorHandler lets a trainee pick their sponsor
func (s *Server) SelectSponsorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		sponsorID, err := strconv.Atoi(r.PostFormValue(FieldSponsorID))
		if err != nil || sponsorID < 1 {
			writeError(w, http.StatusBadRequest, "sponsor_id required")
			return
		}

		err = s.sponsors.AssignSponsor(r.Context(), identity.ID, sponsorID)
		switch {
		case errors.Is(err, errors.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown sponsor")
			return
		case err != nil:
			log.Err(err).Int("trainee", identity.ID).Msg("[SelectSponsorHandler] assign failed")
			writeError(w, http.StatusInternalServerError, "could not save selection")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
