package http

import (
	"net/http"

	"github.com/ghaditya/spotify-group-session/internal/app/orch"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const clientKey = "client_id"

type Handlers struct {
	Orch *orch.Orchestrator
}

type StartSessionRequest struct {
	AccessToken  string             `json:"accessToken" binding:"required"`
	RefreshToken string             `json:"refreshToken" binding:"required"`
	ClientType   *domain.ClientType `json:"clientType" binding:"required"`
}

type JoinSessionRequest struct {
	SessionID    string             `json:"sessionId" binding:"required"`
	AccessToken  string             `json:"accessToken" binding:"required"`
	RefreshToken string             `json:"refreshToken" binding:"required"`
	ClientType   *domain.ClientType `json:"clientType" binding:"required"`
}

// LeaveSessionRequest is also the body of endSession.
type LeaveSessionRequest struct {
	SessionID   string             `json:"sessionId" binding:"required"`
	AccessToken string             `json:"accessToken" binding:"required"`
	ClientType  *domain.ClientType `json:"clientType" binding:"required"`
}

type ClientStatusRequest struct {
	ClientID string `json:"clientId" binding:"required"`
}

type SessionResponse struct {
	SessionID domain.SessionID `json:"sessionId"`
}

func identityProof(t *domain.ClientType, access, refresh string) domain.IdentityProof {
	return domain.IdentityProof{
		Type:       *t,
		Credential: domain.Credential{AccessToken: access, RefreshToken: refresh},
	}
}

func (h *Handlers) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeParameterError(c, err)
		return
	}
	res, err := h.Orch.StartSession(c.Request.Context(), identityProof(req.ClientType, req.AccessToken, req.RefreshToken))
	if err != nil {
		writeError(c, err)
		return
	}
	remember(c, res.ClientID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handlers) JoinSession(c *gin.Context) {
	var req JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeParameterError(c, err)
		return
	}
	res, err := h.Orch.JoinSession(c.Request.Context(),
		identityProof(req.ClientType, req.AccessToken, req.RefreshToken), domain.SessionID(req.SessionID))
	if err != nil {
		writeError(c, err)
		return
	}
	remember(c, res.ClientID)
	c.JSON(http.StatusCreated, SessionResponse{SessionID: res.SessionID})
}

func (h *Handlers) LeaveSession(c *gin.Context) {
	var req LeaveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeParameterError(c, err)
		return
	}
	sid, err := h.Orch.LeaveSession(c.Request.Context(),
		identityProof(req.ClientType, req.AccessToken, ""), domain.SessionID(req.SessionID))
	if err != nil {
		writeError(c, err)
		return
	}
	forget(c)
	c.JSON(http.StatusOK, SessionResponse{SessionID: sid})
}

func (h *Handlers) EndSession(c *gin.Context) {
	var req LeaveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeParameterError(c, err)
		return
	}
	sid, err := h.Orch.EndSession(c.Request.Context(),
		identityProof(req.ClientType, req.AccessToken, ""), domain.SessionID(req.SessionID))
	if err != nil {
		writeError(c, err)
		return
	}
	forget(c)
	c.JSON(http.StatusOK, SessionResponse{SessionID: sid})
}

func (h *Handlers) GetClientStatus(c *gin.Context) {
	var req ClientStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeParameterError(c, err)
		return
	}
	h.writeStatus(c, domain.ClientID(req.ClientID))
}

// WhoAmI reports the status of the client remembered in the cookie session.
func (h *Handlers) WhoAmI(c *gin.Context) {
	id := rememberedClient(c)
	if id == "" {
		writeError(c, domain.ErrMemberNotFound)
		return
	}
	h.writeStatus(c, domain.ClientID(id))
}

func (h *Handlers) writeStatus(c *gin.Context, id domain.ClientID) {
	m, err := h.Orch.GetMemberStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func remember(c *gin.Context, id domain.ClientID) {
	s := sessions.Default(c)
	s.Set(clientKey, string(id))
	if err := s.Save(); err != nil {
		log.Warn().Str("module", "adapters.http").Err(err).Msg("save cookie session")
	}
}

func forget(c *gin.Context) {
	s := sessions.Default(c)
	s.Delete(clientKey)
	if err := s.Save(); err != nil {
		log.Warn().Str("module", "adapters.http").Err(err).Msg("save cookie session")
	}
}

func rememberedClient(c *gin.Context) string {
	id, _ := sessions.Default(c).Get(clientKey).(string)
	return id
}
