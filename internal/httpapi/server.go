// Package httpapi exposes the orchestrator over HTTP.
//
// All chat endpoints answer a JSON envelope with a top-level "success" flag:
// successful responses carry the payload under "data", failures carry a
// human-readable "error". Documents arrive already extracted to plain text;
// extraction is owned by an upstream collaborator.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmvillota/orquesta/internal/health"
	"github.com/jmvillota/orquesta/internal/observe"
	"github.com/jmvillota/orquesta/internal/orchestrator"
	"github.com/jmvillota/orquesta/pkg/provider/llm"
	"github.com/jmvillota/orquesta/pkg/types"
)

// Version is reported by the /info endpoint and in telemetry.
const Version = "1.0.0"

// Service is the orchestration surface the HTTP layer consumes.
type Service interface {
	Answer(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
	Conversation(id string) (types.Conversation, error)
	DeleteConversation(id string) bool
	Tools() []types.ToolDescriptor
	RefreshTools(ctx context.Context) ([]types.ToolDescriptor, error)
}

var _ Service = (*orchestrator.Orchestrator)(nil)

// Server wires the orchestrator and operational endpoints into a gin router.
type Server struct {
	svc    Service
	health *health.Handler
}

// New creates a [Server].
func New(svc Service, h *health.Handler) *Server {
	return &Server{svc: svc, health: h}
}

// Router builds the HTTP routing table. The observability middleware records
// a latency histogram and emits one structured log line per request.
func (s *Server) Router(m *observe.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observe.Middleware(m))

	r.GET("/healthz", gin.WrapF(s.health.Healthz))
	r.GET("/readyz", gin.WrapF(s.health.Readyz))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/info", s.handleInfo)

	chat := r.Group("/api/chat")
	chat.POST("/message", s.handleMessage)
	chat.GET("/tools", s.handleTools)
	chat.POST("/tools/refresh", s.handleRefreshTools)
	chat.GET("/conversation/:id", s.handleGetConversation)
	chat.DELETE("/conversation/:id", s.handleDeleteConversation)

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "ruta no encontrada: "+c.Request.Method+" "+c.Request.URL.Path)
	})

	return r
}

// documentPayload is one pre-extracted document attached to a chat message.
type documentPayload struct {
	Name      string `json:"name" binding:"required"`
	Text      string `json:"text" binding:"required"`
	PageCount int    `json:"pageCount"`
}

// messageRequest is the body of POST /api/chat/message.
type messageRequest struct {
	Message        string            `json:"message"`
	ConversationID string            `json:"conversationId"`
	Documents      []documentPayload `json:"documents"`
}

func (s *Server) handleMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "cuerpo de la petición inválido: "+err.Error())
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		fail(c, http.StatusBadRequest, `el campo "message" es requerido`)
		return
	}

	docs := make([]types.ExtractedDocument, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = types.ExtractedDocument{Name: d.Name, Text: d.Text, PageCount: d.PageCount}
	}

	res, err := s.svc.Answer(c.Request.Context(), orchestrator.Request{
		ConversationID: req.ConversationID,
		UserText:       req.Message,
		Documents:      docs,
	})
	if err != nil {
		var pe *llm.ProviderError
		if errors.As(err, &pe) {
			fail(c, http.StatusBadGateway, pe.Error())
			return
		}
		fail(c, http.StatusInternalServerError, "error procesando mensaje: "+err.Error())
		return
	}

	data := gin.H{
		"conversationId": res.ConversationID,
		"message":        res.AnswerText,
		"toolsUsed":      res.ToolsUsed,
	}
	if res.Usage != nil {
		data["usage"] = res.Usage
	}
	if len(req.Documents) > 0 {
		processed := make([]gin.H, len(req.Documents))
		for i, d := range req.Documents {
			processed[i] = gin.H{"name": d.Name, "pages": d.PageCount}
		}
		data["documentsProcessed"] = processed
	}
	ok(c, data)
}

func (s *Server) handleGetConversation(c *gin.Context) {
	conv, err := s.svc.Conversation(c.Param("id"))
	if err != nil {
		if errors.Is(err, orchestrator.ErrNotFound) {
			fail(c, http.StatusNotFound, "conversación no encontrada")
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	msgs := make([]gin.H, len(conv.Messages))
	for i, m := range conv.Messages {
		msgs[i] = gin.H{"role": m.Role, "content": m.Content, "timestamp": m.Timestamp}
	}
	ok(c, gin.H{
		"id":           conv.ID,
		"messageCount": len(conv.Messages),
		"createdAt":    conv.CreatedAt,
		"updatedAt":    conv.UpdatedAt,
		"messages":     msgs,
	})
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	if !s.svc.DeleteConversation(c.Param("id")) {
		fail(c, http.StatusNotFound, "conversación no encontrada")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "conversación eliminada"})
}

func (s *Server) handleTools(c *gin.Context) {
	tools := s.svc.Tools()
	ok(c, gin.H{"count": len(tools), "tools": tools})
}

func (s *Server) handleRefreshTools(c *gin.Context) {
	tools, err := s.svc.RefreshTools(c.Request.Context())
	if err != nil {
		fail(c, http.StatusBadGateway, "no se pudo refrescar el catálogo: "+err.Error())
		return
	}
	ok(c, gin.H{"count": len(tools), "tools": tools})
}

func (s *Server) handleInfo(c *gin.Context) {
	tools := s.svc.Tools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	c.JSON(http.StatusOK, gin.H{
		"service":     "orquesta",
		"version":     Version,
		"description": "Orquestador de chat con herramientas del marketplace",
		"capabilities": gin.H{
			"textChat":        true,
			"documentChat":    true,
			"functionCalling": true,
		},
		"availableTools": names,
		"endpoints": gin.H{
			"health":             "GET /healthz",
			"ready":              "GET /readyz",
			"metrics":            "GET /metrics",
			"info":               "GET /info",
			"chat":               "POST /api/chat/message",
			"tools":              "GET /api/chat/tools",
			"refreshTools":       "POST /api/chat/tools/refresh",
			"conversation":       "GET /api/chat/conversation/:id",
			"deleteConversation": "DELETE /api/chat/conversation/:id",
		},
	})
}

func ok(c *gin.Context, data gin.H) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}
