package handler

import (
	"net/http"
	"strings"
	"toz-go/internal/middleware"
	"toz-go/pkg/log"
	"toz-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责处理登录请求。登录只记录上传者名字，不校验密码。
type AuthHandler struct {
	jwtManager *token.JWTManager
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(jwtManager *token.JWTManager) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager}
}

// LoginRequest 定义了登录 API 的请求体结构。
type LoginRequest struct {
	Name string `json:"name" binding:"required"`
}

// Login 签发 token，并同时写入 token cookie。
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：name 不能为空"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：name 不能为空"})
		return
	}

	signed, err := h.jwtManager.GenerateToken(name)
	if err != nil {
		log.Error("Login: 签发 token 失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "登录失败"})
		return
	}

	c.SetCookie(middleware.TokenCookie, signed, int(h.jwtManager.Duration().Seconds()), "/", "", false, true)
	log.Infof("用户 %s 登录成功", name)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "登录成功",
		"data": gin.H{
			"token":    signed,
			"username": name,
		},
	})
}
