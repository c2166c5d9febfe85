package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// APIBodyLimit 控制台 API 的请求体上限，请求只包含少量 JSON 字段
const APIBodyLimit = 64 * 1024

// BodySizeLimit 限制请求体大小的中间件
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	limit := strconv.FormatInt(maxBytes, 10)
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"code": http.StatusRequestEntityTooLarge,
				"msg":  "请求体过大",
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Header("X-Max-Body-Size", limit)
		c.Next()
	}
}
