package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code int         `json:"code"`           // 业务状态码，与 HTTP 状态码一致
	Msg  string      `json:"msg"`            // 中文提示信息
	Data interface{} `json:"data,omitempty"` // 数据载荷
}

func respond(c *gin.Context, status int, msg string, data interface{}) {
	c.JSON(status, Response{Code: status, Msg: msg, Data: data})
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "成功", data)
}

// Created 创建成功响应（201）
func Created(c *gin.Context, data interface{}) {
	respond(c, http.StatusCreated, "创建成功", data)
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	respond(c, http.StatusBadRequest, msg, nil)
}

// Error 通用错误响应
func Error(c *gin.Context, httpCode int, msg string) {
	respond(c, httpCode, msg, nil)
}
