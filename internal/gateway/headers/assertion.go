package headers

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"interop-gateway/internal/gateway/models"
	dErrors "interop-gateway/pkg/domain-errors"
)

const assertionLifetime = 5 * time.Minute

// assertionSigner mints short-lived HS256 client-assertion tokens for bearer
// partners that exchange a shared client secret instead of issuing static
// tokens.
type assertionSigner struct {
	now func() time.Time
}

func newAssertionSigner() *assertionSigner {
	return &assertionSigner{now: time.Now}
}

func (a *assertionSigner) sign(cfg *models.SystemConfig) (string, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput,
			"bearer system without a static token needs client_id and client_secret")
	}

	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    cfg.ClientID,
		Subject:   cfg.ClientID,
		Audience:  []string{cfg.SystemCode},
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	})

	signed, err := token.SignedString([]byte(cfg.ClientSecret))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not sign client assertion")
	}
	return signed, nil
}
