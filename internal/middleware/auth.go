// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"
	"toz-go/pkg/log"
	"toz-go/pkg/token"

	"github.com/gin-gonic/gin"
)

const (
	// TokenCookie 是保存登录 token 的 cookie 名。
	TokenCookie = "token"
	// ClaimsKey 是 claims 在 gin 上下文中的键。
	ClaimsKey = "claims"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// token 优先从 Authorization 头读取，其次读取 token cookie。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请先登录"})
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			log.Warnf("AuthMiddleware: token 校验失败, path: %s, error: %v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, bool) {
	// Token 以 "Bearer <token>" 的形式提供
	const bearerPrefix = "Bearer "
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			return "", false
		}
		t := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
		return t, t != ""
	}

	if cookie, err := c.Cookie(TokenCookie); err == nil && cookie != "" {
		return cookie, true
	}
	return "", false
}

// Username 返回当前请求的登录用户名，未认证时返回空字符串。
func Username(c *gin.Context) string {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return ""
	}
	claims, ok := v.(*token.CustomClaims)
	if !ok {
		return ""
	}
	return claims.Username
}
