package httptransport

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/middleware"
)

// contactView 控制台展示的联系人
type contactView struct {
	ID           string    `json:"id"`
	Contact      string    `json:"contact"`
	ReverseAlias string    `json:"reverseAlias"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toContactView(c *domain.Contact) contactView {
	return contactView{
		ID:           c.ID,
		Contact:      c.DisplayFrom(),
		ReverseAlias: c.ReplyEmail,
		CreatedAt:    c.CreatedAt,
	}
}

// listActivities GET /api/aliases/:alias_id/activities?page_id=
func (h *Handler) listActivities(c *gin.Context) {
	raw, ok := c.GetQuery("page_id")
	if !ok || raw == "" {
		BadRequest(c, MsgPageIDRequired)
		return
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 0 {
		BadRequest(c, MsgPageIDInvalid)
		return
	}

	activities, err := h.activities.ListAliasActivities(
		c.Request.Context(),
		c.GetString(middleware.ContextUserID),
		c.Param("alias_id"),
		page,
	)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	Success(c, gin.H{"activities": activities})
}

// aliasStats GET /api/aliases/:alias_id/stats
func (h *Handler) aliasStats(c *gin.Context) {
	stats, err := h.activities.AliasStats(
		c.Request.Context(),
		c.GetString(middleware.ContextUserID),
		c.Param("alias_id"),
	)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	Success(c, stats)
}

// toggleAlias POST /api/aliases/:alias_id/toggle
func (h *Handler) toggleAlias(c *gin.Context) {
	enabled, err := h.aliases.Toggle(
		c.Request.Context(),
		c.GetString(middleware.ContextUserID),
		c.Param("alias_id"),
	)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	Success(c, gin.H{"enabled": enabled})
}

// listContacts GET /api/aliases/:alias_id/contacts
func (h *Handler) listContacts(c *gin.Context) {
	contacts, err := h.contacts.ListByAlias(
		c.Request.Context(),
		c.GetString(middleware.ContextUserID),
		c.Param("alias_id"),
	)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	views := make([]contactView, 0, len(contacts))
	for _, ct := range contacts {
		views = append(views, toContactView(ct))
	}
	Success(c, gin.H{"contacts": views})
}

type createContactRequest struct {
	Contact string `json:"contact" binding:"required,max=512"`
}

// createContact POST /api/aliases/:alias_id/contacts
func (h *Handler) createContact(c *gin.Context) {
	var req createContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	contact, err := h.contacts.CreateReverseAlias(
		c.Request.Context(),
		c.GetString(middleware.ContextUserID),
		c.Param("alias_id"),
		req.Contact,
	)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	Created(c, toContactView(contact))
}
