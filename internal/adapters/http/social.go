package http

import (
	"net/http"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
)

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Avatar      string `json:"avatar"`
}

type memberRequest struct {
	UserID domain.UserID `json:"userId"`
}

type avatarRequest struct {
	Avatar string `json:"avatar"`
}

func (h *handlers) friends(c *gin.Context) {
	users, err := h.deps.Friends.List(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *handlers) friendRequest(c *gin.Context) {
	if err := h.deps.Friends.SendRequest(c.Request.Context(), currentUser(c), domain.UserID(c.Param("userId"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "friend request sent"})
}

func (h *handlers) acceptFriend(c *gin.Context) {
	if err := h.deps.Friends.AcceptRequest(c.Request.Context(), currentUser(c), domain.UserID(c.Param("userId"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend request accepted"})
}

func (h *handlers) declineFriend(c *gin.Context) {
	if err := h.deps.Friends.DeclineRequest(c.Request.Context(), currentUser(c), domain.UserID(c.Param("userId"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend request declined"})
}

func (h *handlers) removeFriend(c *gin.Context) {
	if err := h.deps.Friends.Remove(c.Request.Context(), currentUser(c), domain.UserID(c.Param("friendId"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend removed"})
}

func (h *handlers) groups(c *gin.Context) {
	gs, err := h.deps.Groups.List(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gs)
}

func (h *handlers) createGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	g, err := h.deps.Groups.Create(c.Request.Context(), currentUser(c), req.Name, req.Description, req.Avatar)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *handlers) addMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		badRequest(c, "userId is required")
		return
	}
	g, err := h.deps.Groups.AddMember(c.Request.Context(), currentUser(c), domain.GroupID(c.Param("groupId")), req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *handlers) invite(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		badRequest(c, "userId is required")
		return
	}
	inv, err := h.deps.Groups.Invite(c.Request.Context(), currentUser(c), domain.GroupID(c.Param("groupId")), req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *handlers) groupAvatar(c *gin.Context) {
	var req avatarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	g, err := h.deps.Groups.UpdateAvatar(c.Request.Context(), currentUser(c), domain.GroupID(c.Param("groupId")), req.Avatar)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *handlers) leaveGroup(c *gin.Context) {
	if err := h.deps.Groups.Leave(c.Request.Context(), currentUser(c), domain.GroupID(c.Param("groupId"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left group"})
}

func (h *handlers) deleteGroup(c *gin.Context) {
	if err := h.deps.Groups.Delete(c.Request.Context(), currentUser(c), domain.GroupID(c.Param("groupId"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "group deleted"})
}

func (h *handlers) invitations(c *gin.Context) {
	invs, err := h.deps.Groups.Invitations(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, invs)
}

func (h *handlers) acceptInvitation(c *gin.Context) {
	g, err := h.deps.Groups.AcceptInvitation(c.Request.Context(), currentUser(c), domain.InvitationID(c.Param("invitationId")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *handlers) rejectInvitation(c *gin.Context) {
	if err := h.deps.Groups.RejectInvitation(c.Request.Context(), currentUser(c), domain.InvitationID(c.Param("invitationId"))); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "invitation rejected"})
}
