package server

import (
	"net/http"

	"github.com/jrsteele09/sponsor-auth/csrf"
	"github.com/jrsteele09/sponsor-auth/sessions"
	"github.com/jrsteele09/sponsor-auth/sso"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// SSOStartHandler redirects to the identity provider. The SSO form token
// is the OAuth2 state, so the callback is bound to this session.
func (s *Server) SSOStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.jar.GetOrCreate(w, r)
		if err != nil {
			log.Err(err).Msg("[SSOStartHandler] no session")
			writeError(w, http.StatusInternalServerError, "session unavailable")
			return
		}

		state, err := s.ledger.Issue(r.Context(), sess, csrf.FormSSO)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "token unavailable")
			return
		}
		verifier := oauth2.GenerateVerifier()
		if _, err := s.jar.Store().Update(r.Context(), sess.ID, func(sess *sessions.Session) error {
			return sso.RememberVerifier(sess, state, verifier)
		}); err != nil {
			log.Err(err).Msg("[SSOStartHandler] could not store verifier")
			writeError(w, http.StatusInternalServerError, "session unavailable")
			return
		}

		http.Redirect(w, r, s.sso.AuthURL(state, verifier), http.StatusFound)
	}
}

func (s *Server) SSOCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if errParam := query.Get("error"); errParam != "" {
			log.Info().Str("error", errParam).Msg("sso provider refused")
			writeError(w, http.StatusForbidden, "login failed")
			return
		}

		state, code := query.Get("state"), query.Get("code")
		sess, err := s.jar.Current(r)
		if err != nil || !s.ledger.Check(r.Context(), sess, csrf.FormSSO, state, s.config.GetCSRFTokenTimeout()) {
			writeError(w, http.StatusGone, "form expired")
			return
		}
		s.ledger.Invalidate(r.Context(), sess, csrf.FormSSO, state)

		var verifier string
		found := false
		if _, err := s.jar.Store().Update(r.Context(), sess.ID, func(sess *sessions.Session) error {
			verifier, found = sso.TakeVerifier(sess, state)
			return nil
		}); err != nil || !found {
			writeError(w, http.StatusGone, "form expired")
			return
		}

		identity, err := s.sso.Complete(r.Context(), code, state, verifier)
		if err != nil {
			writeError(w, http.StatusForbidden, "login failed")
			return
		}
		if !s.logins.Login(w, r, identity) {
			writeError(w, http.StatusInternalServerError, "session unavailable")
			return
		}
		http.Redirect(w, r, RouteAuthMe, http.StatusSeeOther)
	}
}
