package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lbessard/canal/internal/core"
	"github.com/lbessard/canal/internal/proto"
)

// SessionHandlers provides HTTP handlers for identity bootstrap.
type SessionHandlers struct {
	svc *Services
	log *zerolog.Logger
}

// NewSessionHandlers creates a new session handlers instance.
func NewSessionHandlers(svc *Services, logger *zerolog.Logger) *SessionHandlers {
	return &SessionHandlers{svc: svc, log: logger}
}

// SessionRequest represents the session creation request body. Name may be
// blank, in which case a guest name is generated.
type SessionRequest struct {
	Name string `json:"name"`
}

// SessionResponse represents the session creation response body.
type SessionResponse struct {
	User  proto.UserPayload `json:"user"`
	Token string            `json:"token"`
}

// CreateSession registers a user identity and returns a token for it.
// POST /api/session
func (h *SessionHandlers) CreateSession(c *gin.Context) {
	var req SessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.log.Debug().Err(err).Msg("invalid session request")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	user, err := h.svc.Identity.CreateUser(c.Request.Context(), req.Name, nil)
	if err != nil {
		writeDomainError(c, h.log, err)
		return
	}

	token, err := h.svc.Auth.TokenFor(user)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to issue token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("user_id", user.ID).Str("name", user.Name).Msg("session created")
	c.JSON(http.StatusCreated, SessionResponse{
		User:  proto.UserPayload{ID: user.ID, Name: user.Name},
		Token: token,
	})
}

// writeDomainError maps a core error onto an HTTP status and JSON body.
func writeDomainError(c *gin.Context, logger *zerolog.Logger, err error) {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		logger.Error().Err(err).Msg("unexpected error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch coreErr.Code {
	case core.ErrCodeValidation:
		status = http.StatusBadRequest
	case core.ErrCodeNameTaken:
		status = http.StatusConflict
	case core.ErrCodeUserNotFound, core.ErrCodeChannelNotFound,
		core.ErrCodeMemberNotFound, core.ErrCodeRecipientNotFound:
		status = http.StatusNotFound
	case core.ErrCodeDomainRule:
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, ErrorResponse{Error: coreErr.Message})
}
