// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"time"
	"toz-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RequestLogger 是一个 Gin 中间件，记录每个请求的状态码、耗时和字节数。
// 上传和下载都是二进制文件，不记录请求体和响应体。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBytes", c.Request.ContentLength,
			"responseBytes", c.Writer.Size(),
		)
	}
}
