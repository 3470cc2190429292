package http

import (
	"net/http"

	"github.com/dkeye/Huddle/internal/app/chat"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
)

// BlockStatus is the body of GET /api/messages/blocked/:id.
type BlockStatus struct {
	Blocked bool `json:"blocked"`
}

func (h *handlers) directHistory(c *gin.Context) {
	msgs, err := h.deps.Chat.DirectHistory(c.Request.Context(), currentUser(c), domain.UserID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) sendDirect(c *gin.Context) {
	var in chat.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid json")
		return
	}
	sent, err := h.deps.Chat.SendDirect(c.Request.Context(), currentUser(c), domain.UserID(c.Param("id")), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sent)
}

func (h *handlers) groupHistory(c *gin.Context) {
	msgs, err := h.deps.Chat.GroupHistory(c.Request.Context(), currentUser(c), domain.GroupID(c.Param("groupId")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) sendGroup(c *gin.Context) {
	var in chat.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid json")
		return
	}
	sent, err := h.deps.Chat.SendGroup(c.Request.Context(), currentUser(c), domain.GroupID(c.Param("groupId")), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sent)
}

func (h *handlers) deleteMessage(c *gin.Context) {
	if err := h.deps.Chat.Delete(c.Request.Context(), currentUser(c), domain.MessageID(c.Param("messageId"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *handlers) blocked(c *gin.Context) {
	users, err := h.deps.Blocks.Blocked(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// blockStatus reports whether either user has blocked the other.
func (h *handlers) blockStatus(c *gin.Context) {
	blocked, err := h.deps.Blocks.IsBlocked(c.Request.Context(), currentUser(c), domain.UserID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, BlockStatus{Blocked: blocked})
}

func (h *handlers) block(c *gin.Context) {
	if err := h.deps.Blocks.Block(c.Request.Context(), currentUser(c), domain.UserID(c.Param("id"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "blocked"})
}

func (h *handlers) unblock(c *gin.Context) {
	if err := h.deps.Blocks.Unblock(c.Request.Context(), currentUser(c), domain.UserID(c.Param("id"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unblocked"})
}
