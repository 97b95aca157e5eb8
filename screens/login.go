package screens

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hotelling/auth"
	"hotelling/middlewares"
	"hotelling/models"
)

// LoginHandler は運営者の資格情報を確認してトークンを発行します。
func LoginHandler(c *gin.Context, cfg models.OperatorConfig, logger *zap.Logger) {
	var request models.LoginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		logger.Error("Request binding error", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request binding error"})
		return
	}

	if !auth.CheckCredentials(cfg, request) {
		logger.Warn("ログイン失敗", zap.String("name", request.Name), zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, expiresAt, err := middlewares.GenerateToken(cfg, request.Name, time.Now())
	if err != nil {
		logger.Error("トークン生成中にエラー発生", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	logger.Info("運営者がログインしました", zap.String("name", request.Name))
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expiresAt})
}
