package middlewares

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hotelling/auth"
	"hotelling/models"
)

// OperatorKey はコンテキストに入る運営者名のキー
const OperatorKey = "operator"

// refreshWindow より有効期限が近いトークンは新しいものを返す
const refreshWindow = time.Hour

// AuthMiddleware は運営者トークンを検証します。
func AuthMiddleware(cfg models.OperatorConfig, logger *zap.Logger) gin.HandlerFunc {
	secret := []byte(cfg.JwtSecret)
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
			return
		}

		claims, err := auth.ParseToken(secret, tokenString)
		if err != nil {
			logger.Warn("認証失敗", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		refreshTokenIfNeeded(c, cfg, claims, logger)
		c.Set(OperatorKey, claims.Operator)
		c.Next()
	}
}

// bearerToken はAuthorizationヘッダーからトークンを取り出します。
// ブラウザのWebSocketはヘッダーを付けられないためクエリも見る。
func bearerToken(c *gin.Context) string {
	tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if tokenString == "" {
		tokenString = c.Query("token")
	}
	return strings.TrimSpace(tokenString)
}

func refreshTokenIfNeeded(c *gin.Context, cfg models.OperatorConfig, claims *models.OperatorClaims, logger *zap.Logger) {
	now := time.Now()
	if time.Unix(claims.ExpiresAt, 0).Sub(now) >= refreshWindow {
		return
	}
	newToken, _, err := GenerateToken(cfg, claims.Operator, now)
	if err != nil {
		logger.Error("トークンの更新に失敗しました", zap.Error(err))
		return
	}
	// 新しいトークンをレスポンスに追加
	c.Header("Authorization", newToken)
}
