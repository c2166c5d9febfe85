package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aliasrelay/backend/internal/service"
	"aliasrelay/backend/internal/storage"
)

// 通用错误消息
const (
	MsgInvalidRequest  = "请求参数格式错误"
	MsgPageIDRequired  = "缺少 page_id 查询参数"
	MsgPageIDInvalid   = "page_id 必须是非负整数"
	MsgAliasNotFound   = "别名不存在"
	MsgForbidden       = "您不是该别名的所有者"
	MsgContactExists   = "该联系人已存在"
	MsgInvalidContact  = "联系人地址格式无效"
	MsgInternalError   = "服务器内部错误，请稍后重试"
	MsgUnsubscribed    = "已停用该别名，不会再收到转发邮件"
	MsgUnsubscribeHint = "使用 POST 请求确认退订"
)

// errorMapping 业务错误到 HTTP 状态与中文消息的映射
var errorMapping = []struct {
	err    error
	status int
	msg    string
}{
	{storage.ErrAliasNotFound, http.StatusNotFound, MsgAliasNotFound},
	{service.ErrForbidden, http.StatusForbidden, MsgForbidden},
	{storage.ErrContactExists, http.StatusConflict, MsgContactExists},
	{service.ErrInvalidAddress, http.StatusBadRequest, MsgInvalidContact},
}

// respondError 按错误类型返回响应，未识别的错误记录日志并返回 500
func respondError(c *gin.Context, log *zap.Logger, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			Error(c, m.status, m.msg)
			return
		}
	}
	log.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	Error(c, http.StatusInternalServerError, MsgInternalError)
}
