package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/sponsor-auth/csrf"
	"github.com/jrsteele09/sponsor-auth/internal/config"
	"github.com/jrsteele09/sponsor-auth/loginsession"
	"github.com/jrsteele09/sponsor-auth/sessions"
	"github.com/jrsteele09/sponsor-auth/sso"
	"github.com/jrsteele09/sponsor-auth/users"
	"github.com/rs/zerolog/log"
)

// CredentialResolver turns submitted credentials into an identity
type CredentialResolver interface {
	Resolve(ctx context.Context, emailOrToken, secret string) (users.Identity, error)
}

// SponsorAssigner records the sponsor a trainee picked
type SponsorAssigner interface {
	AssignSponsor(ctx context.Context, traineeID, sponsorID int) error
}

// Dependencies holds the collaborators the handlers need. SSO is optional.
type Dependencies struct {
	Jar      *sessions.Jar
	Logins   *loginsession.Manager
	Ledger   *csrf.Ledger
	Resolver CredentialResolver
	Sponsors SponsorAssigner
	SSO      *sso.Authenticator
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	jar      *sessions.Jar
	logins   *loginsession.Manager
	ledger   *csrf.Ledger
	resolver CredentialResolver
	sponsors SponsorAssigner
	sso      *sso.Authenticator
	limiter  *loginLimiter
}

func New(config config.Config, deps Dependencies) (*Server, error) {
	if deps.Jar == nil {
		return nil, fmt.Errorf("[Server New] session jar is required")
	}
	if deps.Logins == nil {
		return nil, fmt.Errorf("[Server New] login session manager is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("[Server New] csrf ledger is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("[Server New] credential resolver is required")
	}
	if deps.Sponsors == nil {
		return nil, fmt.Errorf("[Server New] sponsor assigner is required")
	}

	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		config:   config,
		jar:      deps.Jar,
		logins:   deps.Logins,
		ledger:   deps.Ledger,
		resolver: deps.Resolver,
		sponsors: deps.Sponsors,
		sso:      deps.SSO,
		limiter:  newLoginLimiter(config.GetLoginRatePerMinute(), config.GetLoginBurst()),
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1], "")
		} else {
			logRoute("", parts[0], "")
		}
	}
}

func logRoute(method, path, detail string) {
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	displayMethod := color + fmt.Sprintf(" %-7s", method) + ResetColor
	log.Info().Msgf("[%-19s] %s %s", displayMethod, path, detail)
}
