package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/sponsor-auth/internal/config"
	"github.com/jrsteele09/sponsor-auth/internal/errors"
	"github.com/jrsteele09/sponsor-auth/users"
	"github.com/jrsteele09/sponsor-auth/users/gormrepo"
	"github.com/rs/zerolog/log"
)

// InitialiseSystem seeds the bootstrap administrator when it does not exist
// yet. Without a configured password one is generated and returned; it is
// empty when nothing was created.
func InitialiseSystem(ctx context.Context, cfg config.Config, repo *gormrepo.Repository, hasher users.SecretHasher) (string, error) {
	email := cfg.GetBootstrapAdminEmail()
	if email == "" {
		return "", nil
	}

	_, err := repo.Admins().ByEmail(ctx, email)
	if err == nil {
		log.Info().Str("email", email).Msg("[server InitialiseSystem] bootstrap admin already exists")
		return "", nil
	}
	if !errors.Is(err, users.ErrNotFound) {
		return "", fmt.Errorf("[server InitialiseSystem] failed to look up admin: %w", err)
	}

	password := cfg.GetBootstrapAdminPassword()
	generated := password == ""
	if generated {
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", fmt.Errorf("[server InitialiseSystem] failed to generate password: %w", err)
		}
		password = base64.RawURLEncoding.EncodeToString(passwordBytes)
	}

	digest, err := hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("[server InitialiseSystem] failed to hash password: %w", err)
	}
	if err := repo.UpsertAdmin(ctx, &gormrepo.Admin{Email: email, Password: digest}); err != nil {
		return "", fmt.Errorf("[server InitialiseSystem] failed to create admin: %w", err)
	}

	if !generated {
		log.Info().Str("email", email).Msg("[server InitialiseSystem] bootstrap admin created")
		return "", nil
	}
	log.Info().Msg("👤 Bootstrap Admin Credentials:")
	log.Info().Msgf("   Email:       %s", email)
	log.Info().Msgf("   Password:    %s", password)
	return password, nil
}
