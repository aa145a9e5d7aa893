package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"workspace-agent-backend/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	KeyUserID      = "user_id"
	KeyWorkspaceID = "workspace_id"
)

// Claims 调用方身份，所有会话和记录都按 (WorkspaceID, UserID) 隔离
type Claims struct {
	UserID      string `json:"uid"`
	WorkspaceID string `json:"wid"`
	jwt.RegisteredClaims
}

func GenerateToken(userID, workspaceID, secret string, ttl time.Duration) (string, error) {
	if userID == "" || workspaceID == "" {
		return "", errors.New("user id and workspace id are required")
	}

	now := time.Now()
	claims := Claims{
		UserID:      userID,
		WorkspaceID: workspaceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken 校验签名和过期时间
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" || claims.WorkspaceID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			slog.Info("Authorization header required")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			slog.Info("Invalid authorization format")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		claims, err := ParseToken(parts[1], config.Cfg.JWT.SecretKey)
		if err != nil {
			slog.Info("Invalid token", "err", err)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(KeyUserID, claims.UserID)
		c.Set(KeyWorkspaceID, claims.WorkspaceID)
		c.Next()
	}
}
