package worker

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// overrideClaims is the audit payload embedded in an allowIncomplete
// override token: who authorized bypassing the readiness gate, for which
// list, and how many tasks were incomplete at the time.
type overrideClaims struct {
	jwt.RegisteredClaims
	TaskListID      string `json:"task_list_id"`
	IncompleteCount int    `json:"incomplete_count"`
}

// OverrideSigner mints and verifies allowIncomplete override tokens so the
// audit trail can prove who authorized an execution-blocked bypass, the
// same claims-based pattern used for the gateway's indirect golang-jwt/v5
// dependency surface.
type OverrideSigner struct {
	secret []byte
}

// NewOverrideSigner builds a signer keyed by secret; an empty secret is
// rejected by Sign so a misconfigured deployment fails closed.
func NewOverrideSigner(secret []byte) *OverrideSigner {
	return &OverrideSigner{secret: secret}
}

// Sign issues a short-lived override token for authorizedBy to bypass the
// readiness gate on taskListID.
func (s *OverrideSigner) Sign(authorizedBy, taskListID string, incompleteCount int) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("override signing secret not configured")
	}
	claims := overrideClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   authorizedBy,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
		TaskListID:      taskListID,
		IncompleteCount: incompleteCount,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates tokenString and returns the claims it carries, or an
// error if the signature, expiry, or list binding doesn't check out.
func (s *OverrideSigner) Verify(tokenString, taskListID string) (authorizedBy string, incompleteCount int, err error) {
	if len(s.secret) == 0 {
		return "", 0, fmt.Errorf("override signing secret not configured")
	}
	var claims overrideClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", 0, fmt.Errorf("invalid override token: %w", err)
	}
	if claims.TaskListID != taskListID {
		return "", 0, fmt.Errorf("override token was issued for a different task list")
	}
	return claims.Subject, claims.IncompleteCount, nil
}
