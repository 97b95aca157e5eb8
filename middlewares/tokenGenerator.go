package middlewares

import (
	"time"

	jwt "github.com/dgrijalva/jwt-go"

	"hotelling/models"
)

// GenerateToken は運営者用のJWTを発行します。
func GenerateToken(cfg models.OperatorConfig, operator string, now time.Time) (string, time.Time, error) {
	ttl := time.Duration(cfg.TokenTTLh) * time.Hour
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	expirationTime := now.Add(ttl)

	claims := &models.OperatorClaims{
		Operator: operator,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: expirationTime.Unix(),
			Subject:   operator,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(cfg.JwtSecret))
	return tokenString, expirationTime, err
}
