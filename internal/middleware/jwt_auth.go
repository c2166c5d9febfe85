package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aliasrelay/backend/internal/auth/jwt"
)

// 上下文中的用户信息键
const (
	ContextUserID = "userID"
	ContextEmail  = "email"
)

// TokenVerifier 校验访问令牌
type TokenVerifier interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// JWTAuth JWT认证中间件
type JWTAuth struct {
	verifier TokenVerifier
	log      *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(verifier TokenVerifier, log *zap.Logger) *JWTAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTAuth{
		verifier: verifier,
		log:      log,
	}
}

// RequireAuth 要求JWT认证
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "需要登录认证",
			})
			return
		}

		claims, err := ja.verifier.ValidateToken(token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			msg := "无效的访问令牌"
			if errors.Is(err, jwt.ErrExpiredToken) {
				msg = "登录已过期，请重新登录"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  msg,
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

// extractToken 依次从 Authorization 头、token 查询参数（浏览器 WebSocket）和 cookie 中提取令牌
func (ja *JWTAuth) extractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	if token := c.Query("token"); token != "" {
		return token
	}

	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token
	}
	return ""
}
