// Package httpapi 是可选的宿主级 REST + websocket 门面。
//
// 路由注册走 "一次性 registerRoutes + 分组 + success/badRequest/notFound/errorResponse helper"
// 惯例；事件推流用 gorilla/websocket (本包专属依赖，不在
// internal/agentmanager 以下的任何核心包中出现)。
//
// 本包绝不被 internal/ids 到 internal/agentmanager 的任何核心包导入，
// 只被 cmd/server 这个外层二进制导入。
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/multi-agent/messaging-runtime/internal/agentmanager"
	"github.com/multi-agent/messaging-runtime/internal/container"
	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/ids"
)

// Server 消息运行时的 HTTP 门面。
type Server struct {
	router  *gin.Engine
	manager *agentmanager.Manager
	bus     *EventBus
	log     hostapi.Logger
}

// NewServer 创建门面服务，ginMode 为空时使用 gin 默认模式。
func NewServer(manager *agentmanager.Manager, log hostapi.Logger, ginMode string) *Server {
	if ginMode != "" {
		gin.SetMode(ginMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{router: r, manager: manager, bus: NewEventBus(), log: log}
	s.registerRoutes()
	return s
}

// Engine 返回底层 gin 引擎 (供测试直接调用 ServeHTTP)。
func (s *Server) Engine() *gin.Engine { return s.router }

// ListenAndServe 启动 HTTP 服务，ctx 取消后优雅关闭。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api/agents")
	api.POST("", s.createAgent)
	api.GET("", s.listAgents)
	api.GET("/:id", s.getAgent)
	api.DELETE("/:id", s.destroyAgent)
	api.POST("/:id/messaging", s.enableMessaging)
	api.GET("/:id/health", s.agentHealth)

	s.router.POST("/api/messages/send", s.sendMessage)
	s.router.POST("/api/messages/broadcast", s.broadcastMessage)
	s.router.GET("/api/messaging/stats", s.messagingStats)
	s.router.GET("/api/events", s.wsHandler)
}

type createAgentRequest struct {
	ID              string `json:"id"`
	EnableMessaging bool   `json:"enableMessaging"`
}

func (s *Server) createAgent(c *gin.Context) {
	var req createAgentRequest
	// 请求体可整体省略 (全部字段可选)，BindJSON 的错误被有意忽略。
	_ = c.ShouldBindJSON(&req)
	a, err := s.manager.CreateAgent(c.Request.Context(), ids.AgentId(req.ID), agentmanager.CreateOptions{
		EnableMessaging: req.EnableMessaging,
		MessagingConfig: container.DefaultConfig(),
	})
	if err != nil {
		errorResponse(c, err)
		return
	}
	s.bus.Publish(Event{Type: "agent_created", Data: gin.H{"id": string(a.ID())}})
	created(c, gin.H{"id": string(a.ID())})
}

func (s *Server) listAgents(c *gin.Context) {
	agents := s.manager.ListAgents()
	out := make([]string, 0, len(agents))
	for _, a := range agents {
		out = append(out, string(a.ID()))
	}
	success(c, gin.H{"agents": out, "count": len(out)})
}

func (s *Server) getAgent(c *gin.Context) {
	a, ok := s.manager.GetAgent(ids.AgentId(c.Param("id")))
	if !ok {
		notFound(c, "agent not found")
		return
	}
	success(c, gin.H{"id": string(a.ID()), "active": a.IsActive(), "messagingEnabled": a.IsMessagingEnabled()})
}

func (s *Server) destroyAgent(c *gin.Context) {
	s.manager.DestroyAgent(ids.AgentId(c.Param("id")))
	s.bus.Publish(Event{Type: "agent_destroyed", Data: gin.H{"id": c.Param("id")}})
	success(c, gin.H{"destroyed": true})
}

func (s *Server) enableMessaging(c *gin.Context) {
	if err := s.manager.EnableAgentMessaging(c.Request.Context(), ids.AgentId(c.Param("id")), container.DefaultConfig()); err != nil {
		errorResponse(c, err)
		return
	}
	success(c, gin.H{"messagingEnabled": true})
}

func (s *Server) agentHealth(c *gin.Context) {
	a, ok := s.manager.GetAgent(ids.AgentId(c.Param("id")))
	if !ok {
		notFound(c, "agent not found")
		return
	}
	report, ok := a.HealthReport()
	if !ok {
		badRequest(c, "messaging_disabled", "agent does not have messaging enabled")
		return
	}
	success(c, report)
}

type sendMessageRequest struct {
	From    string `json:"from" binding:"required"`
	To      string `json:"to" binding:"required"`
	Type    string `json:"type" binding:"required"`
	Payload any    `json:"payload"`
}

func (s *Server) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if err := s.manager.SendMessage(c.Request.Context(), ids.AgentId(req.From), ids.AgentId(req.To), req.Type, req.Payload); err != nil {
		errorResponse(c, err)
		return
	}
	s.bus.Publish(Event{Type: "message_sent", Data: gin.H{"from": req.From, "to": req.To, "type": req.Type}})
	success(c, gin.H{"delivered": true})
}

type broadcastMessageRequest struct {
	From    string `json:"from" binding:"required"`
	Type    string `json:"type" binding:"required"`
	Payload any    `json:"payload"`
}

func (s *Server) broadcastMessage(c *gin.Context) {
	var req broadcastMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if err := s.manager.BroadcastMessage(c.Request.Context(), ids.AgentId(req.From), req.Type, req.Payload); err != nil {
		errorResponse(c, err)
		return
	}
	s.bus.Publish(Event{Type: "message_broadcast", Data: gin.H{"from": req.From, "type": req.Type}})
	success(c, gin.H{"broadcast": true})
}

func (s *Server) messagingStats(c *gin.Context) {
	success(c, s.manager.GetMessagingStats())
}
