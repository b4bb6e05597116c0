package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/sponsor-auth/auth"
	"github.com/jrsteele09/sponsor-auth/csrf"
	"github.com/jrsteele09/sponsor-auth/internal/config"
	"github.com/jrsteele09/sponsor-auth/loginsession"
	"github.com/jrsteele09/sponsor-auth/server"
	"github.com/jrsteele09/sponsor-auth/sessions"
	"github.com/jrsteele09/sponsor-auth/sso"
	"github.com/jrsteele09/sponsor-auth/users"
	"github.com/jrsteele09/sponsor-auth/users/gormrepo"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const sessionSweepInterval = time.Minute

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := gormrepo.Open(c.GetDatabaseDriver(), c.GetDatabaseDSN())
	if err != nil {
		return fmt.Errorf("gormrepo.Open: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Err(err).Msg("closing database")
		}
	}()
	hasher := users.NewSecretHasher(c.GetHashPepper(), c.GetHashSeparator())
	if _, err := server.InitialiseSystem(ctx, c, repo, hasher); err != nil {
		return err
	}

	store, closeStore, err := newSessionStore(ctx, c)
	if err != nil {
		return err
	}
	defer closeStore()

	codec, err := sessions.NewCookieCodec(cookieSecret(c))
	if err != nil {
		return err
	}
	jar, err := sessions.NewJar(store, codec)
	if err != nil {
		return err
	}
	policies, err := csrf.LoadPolicies(c.GetFormPolicyFile())
	if err != nil {
		return err
	}
	ledger, err := csrf.NewLedger(store, policies)
	if err != nil {
		return err
	}
	logins, err := loginsession.NewManager(jar, c.GetMaxInactive())
	if err != nil {
		return err
	}
	resolver, err := auth.NewResolver(repo.Admins(), repo.Sponsors(), repo.Trainees(), hasher)
	if err != nil {
		return err
	}
	authenticator, err := newAuthenticator(ctx, c, repo.Admins())
	if err != nil {
		return err
	}

	handler, err := server.New(c, server.Dependencies{
		Jar:      jar,
		Logins:   logins,
		Ledger:   ledger,
		Resolver: resolver,
		Sponsors: repo,
		SSO:      authenticator,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// newSessionStore keeps sessions in Redis when REDIS_URL is set, otherwise
// in process memory with a background sweep of idle sessions.
func newSessionStore(ctx context.Context, c config.Config) (sessions.Store, func(), error) {
	redisURL := c.GetRedisURL()
	if redisURL == "" {
		store := sessions.NewMemoryStore()
		go sweepSessions(ctx, store)
		return store, func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Sessions stored in redis")
	return sessions.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
}

func sweepSessions(ctx context.Context, store *sessions.MemoryStore) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.DeleteExpired(); n > 0 {
				log.Debug().Int("sessions", n).Msg("Expired sessions removed")
			}
		}
	}
}

func cookieSecret(c config.Config) string {
	if secret := c.GetCookieSecret(); secret != "" {
		return secret
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	log.Warn().Msg("COOKIE_SECRET not set, sessions will not survive a restart")
	return hex.EncodeToString(b)
}

func newAuthenticator(ctx context.Context, c config.Config, admins users.EmailRepo) (*sso.Authenticator, error) {
	if c.GetSSOIssuer() == "" {
		return nil, nil
	}
	return sso.Discover(ctx, sso.Config{
		Issuer:       c.GetSSOIssuer(),
		ClientID:     c.GetSSOClientID(),
		ClientSecret: c.GetSSOClientSecret(),
		RedirectURL:  c.GetSSORedirectURL(),
	}, admins)
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
