package auth

import (
	"errors"
	"strings"
	"unicode"

	"github.com/Tutortoise/rice-leaf-service/config"
	"github.com/Tutortoise/rice-leaf-service/models"
)

const (
	MinPasswordLength = 12
	MinSecretLength   = 32
)

var (
	bannedUsernames = map[string]struct{}{"admin": {}, "root": {}, "riceguard": {}}
	bannedPasswords = map[string]struct{}{
		"password":               {},
		"changeme":               {},
		"changeit":               {},
		"changeThisPassword123!": {},
		"ChangeThisPassword123!": {},
	}
	bannedSecrets = map[string]struct{}{
		"ReplaceWithYourOwnLongJwtSecretAtLeast32Chars": {},
		"secret":   {},
		"changeme": {},
		"changeit": {},
	}
)

// ValidateSecurity refuses to start the API with missing, default or weak credentials.
func ValidateSecurity(cfg config.AuthConfig) error {
	var errs []error

	if cfg.Username == "" || cfg.Password == "" || cfg.JWTSecret == "" {
		return models.Configuration("auth.username, auth.password and auth.jwt_secret must be set", nil)
	}

	if _, banned := bannedUsernames[strings.ToLower(strings.TrimSpace(cfg.Username))]; banned {
		errs = append(errs, errors.New("auth.username uses an insecure default/common value"))
	}

	if _, banned := bannedPasswords[strings.TrimSpace(cfg.Password)]; banned {
		errs = append(errs, errors.New("auth.password uses an insecure default/common value"))
	} else if !strongPassword(cfg.Password) {
		errs = append(errs, errors.New("auth.password must be at least 12 characters and include uppercase, lowercase, digit and symbol"))
	}

	if _, banned := bannedSecrets[strings.TrimSpace(cfg.JWTSecret)]; banned || len(cfg.JWTSecret) < MinSecretLength {
		errs = append(errs, errors.New("auth.jwt_secret is insecure, use a unique random secret with at least 32 characters"))
	}

	if err := errors.Join(errs...); err != nil {
		return models.Configuration("insecure auth settings", err)
	}
	return nil
}

func strongPassword(p string) bool {
	if len([]rune(p)) < MinPasswordLength {
		return false
	}
	var upper, lower, digit, symbol bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}
