package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	jwt "github.com/dgrijalva/jwt-go"

	"hotelling/models"
)

var ErrInvalidToken = errors.New("invalid token")

// ParseToken は運営者トークンを検証してクレームを返します。
func ParseToken(secret []byte, tokenString string) (*models.OperatorClaims, error) {
	claims := &models.OperatorClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// HS256以外の署名方式は受け付けない
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Operator == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func IsValidToken(secret []byte, tokenString string) (bool, error) {
	if _, err := ParseToken(secret, tokenString); err != nil {
		return false, err
	}
	return true, nil
}

// CheckCredentials はログイン要求を設定の運営者アカウントと比較します。
// パスワード未設定の場合は誰もログインできません。
func CheckCredentials(cfg models.OperatorConfig, req models.LoginRequest) bool {
	if cfg.Password == "" {
		return false
	}
	nameOK := subtle.ConstantTimeCompare([]byte(cfg.Name), []byte(req.Name)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(cfg.Password), []byte(req.Password)) == 1
	return nameOK && passOK
}
