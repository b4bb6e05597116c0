package server

import (
	"github.com/jrsteele09/sponsor-auth/csrf"
	"github.com/jrsteele09/sponsor-auth/users"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// CORS preflight; CorsMiddleware answers before the handler runs
	s.RegisterRouteFunc("OPTIONS /", ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// Tokens are handed out on any session, creating one when needed
	s.RegisterRouteFunc("GET "+RouteAuthCSRF, ChainMiddleware(s.CSRFTokenHandler(), s.APIMiddleware()...))

	// LOGIN / LOGOUT
	s.RegisterRouteFunc("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(),
		s.APIMiddleware(s.RateLimitMiddleware, s.RequireCSRF(csrf.FormLogin))...))
	s.RegisterRouteFunc("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(),
		s.APIMiddleware(s.RequireCSRF(csrf.FormLogout))...))
	s.RegisterRouteFunc("GET "+RouteAuthMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware()...))

	// Role specific actions
	s.RegisterRouteFunc("POST "+RouteTraineeSelectSponsor, ChainMiddleware(s.SelectSponsorHandler(),
		s.APIMiddleware(s.RequireRole(users.RoleTrainee), s.RequireCSRF(csrf.FormTraineeSelectSponsor))...))

	if s.sso != nil {
		s.RegisterRouteFunc("GET "+RouteSSOStart, ChainMiddleware(s.SSOStartHandler(), s.APIMiddleware()...))
		s.RegisterRouteFunc("GET "+RouteSSOCallback, ChainMiddleware(s.SSOCallbackHandler(), s.APIMiddleware()...))
	}
}
