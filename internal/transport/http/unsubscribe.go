package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type unsubscribeView struct {
	AliasID string `json:"aliasId"`
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// unsubscribeInfo 展示退订确认信息，不修改状态
func (h *Handler) unsubscribeInfo(c *gin.Context) {
	alias, err := h.aliases.Get(c.Request.Context(), c.Param("alias_id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	Success(c, unsubscribeView{
		AliasID: alias.ID,
		Enabled: alias.Enabled,
		Message: MsgUnsubscribeHint,
	})
}

// unsubscribe 一键退订：停用别名，重复请求结果相同
func (h *Handler) unsubscribe(c *gin.Context) {
	alias, err := h.aliases.Disable(c.Request.Context(), c.Param("alias_id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info("alias unsubscribed",
		zap.String("alias_id", alias.ID),
		zap.String("ip", c.ClientIP()),
	)
	Success(c, unsubscribeView{
		AliasID: alias.ID,
		Enabled: alias.Enabled,
		Message: MsgUnsubscribed,
	})
}
