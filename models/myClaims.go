package models

import (
	jwt "github.com/dgrijalva/jwt-go"
)

// OperatorClaims は運営者トークンのJWTクレームです。
type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.StandardClaims
}

// LoginRequest は運営者のログインリクエスト
type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}
