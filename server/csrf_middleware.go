package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/sponsor-auth/csrf"
	"github.com/jrsteele09/sponsor-auth/sessions"
	"github.com/jrsteele09/sponsor-auth/users"
	"github.com/rs/zerolog/log"
)

type identityKey struct{}

// RequireCSRF rejects requests without a live token for form with 410 Gone,
// attaching a replacement when the session is still usable. A used token of
// a request-scoped form is spent and a fresh one is attached to the response.
func (s *Server) RequireCSRF(form csrf.Form) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sess, err := s.jar.Current(r)
			if err != nil {
				writeError(w, http.StatusGone, "form expired")
				return
			}

			token := r.Header.Get(csrf.HeaderName)
			if token == "" {
				token = r.PostFormValue(csrf.FieldName)
			}

			if !s.ledger.Check(r.Context(), sess, form, token, s.config.GetCSRFTokenTimeout()) {
				log.Info().Str("form", string(form)).Str("remote", clientAddress(r)).Msg("csrf check failed")
				s.attachToken(w, r, sess, form)
				writeError(w, http.StatusGone, "form expired")
				return
			}

			if policy, _ := s.ledger.Policies().Lookup(form); policy.RequestScoped {
				s.ledger.Invalidate(r.Context(), sess, form, token)
				s.attachToken(w, r, sess, form)
			}
			next(w, r)
		}
	}
}

// attachToken sets a token for form on the response. Records that have aged
// past the CSRF timeout are dropped first so the header never carries a
// token Check would reject.
func (s *Server) attachToken(w http.ResponseWriter, r *http.Request, sess *sessions.Session, form csrf.Form) {
	token, err := s.ledger.Refresh(r.Context(), sess, form, s.config.GetCSRFTokenTimeout())
	if err != nil {
		return
	}
	w.Header().Set(csrf.HeaderName, token)
}

// RequireRole lets only logged in users with role through
func (s *Server) RequireRole(role users.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
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
			if s.logins.Role(identity) != role {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, identity)))
		}
	}
}

func identityFrom(ctx context.Context) (users.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(users.Identity)
	return identity, ok
}
