package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lbessard/canal/internal/proto"
)

// ChannelHandlers provides HTTP handlers for channel directory endpoints.
type ChannelHandlers struct {
	svc *Services
	log *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(svc *Services, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{svc: svc, log: logger}
}

// ListChannels handles the channel directory listing, with optional search.
// GET /api/channels?q=query
func (h *ChannelHandlers) ListChannels(c *gin.Context) {
	channels, err := h.svc.Members.Channels(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeDomainError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, proto.ChannelsResult{Channels: channelSummaries(channels)})
}

// ListMembers handles the channel roster listing.
// GET /api/channels/:id/members
func (h *ChannelHandlers) ListMembers(c *gin.Context) {
	members, err := h.svc.Members.Members(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, proto.MembersResult{Users: memberPayloads(members)})
}
