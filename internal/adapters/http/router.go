package http

import (
	"context"
	"net/http"

	"github.com/ghaditya/spotify-group-session/internal/adapters/signal"
	"github.com/ghaditya/spotify-group-session/internal/app/orch"
	"github.com/ghaditya/spotify-group-session/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const cookieSessionName = "GroupSession"

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	secret := cfg.Secret
	if secret == "" {
		log.Warn().Str("module", "adapters.http").Msg("no secret configured, cookie sessions will not survive a restart")
		secret = uuid.NewString()
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(cookieSessionName, store))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	h := &Handlers{Orch: o}
	limiter := NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Interval)

	api := r.Group("/api")
	mutating := api.Group("", limiter.Middleware())
	mutating.POST("/startSession", h.StartSession)
	mutating.POST("/joinSession", h.JoinSession)
	mutating.POST("/leaveSession", h.LeaveSession)
	mutating.POST("/endSession", h.EndSession)
	api.POST("/getClientStatus", h.GetClientStatus)
	api.GET("/whoami", h.WhoAmI)

	status := signal.NewStatusWSController(o, cfg.StatusPoll)
	api.GET("/ws/status", func(c *gin.Context) {
		id := c.Query("clientId")
		if id == "" {
			id = rememberedClient(c)
		}
		status.HandleStatus(ctx, c, id)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
