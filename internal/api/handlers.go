package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"facilityai/internal/service/accounts"
	"facilityai/internal/service/admin"
	"facilityai/internal/service/agents"
	"facilityai/internal/service/chat"
	"facilityai/internal/service/knowledge"
	"facilityai/internal/worker"
)

// Handler wires HTTP routes to the domain services.
type Handler struct {
	chat      *chat.Service
	agents    *agents.Service
	knowledge *knowledge.Service
	admin     *admin.Service
	accounts  *accounts.Service
	workers   *worker.Dispatcher
}

// NewHandler constructs a Handler instance.
func NewHandler(chatSvc *chat.Service, agentSvc *agents.Service, knowledgeSvc *knowledge.Service,
	adminSvc *admin.Service, accountSvc *accounts.Service, workers *worker.Dispatcher) *Handler {
	return &Handler{
		chat:      chatSvc,
		agents:    agentSvc,
		knowledge: knowledgeSvc,
		admin:     adminSvc,
		accounts:  accountSvc,
		workers:   workers,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/chat", h.postChat)
	api.GET("/chat/history", h.getChatHistory)

	api.GET("/agents", h.listAgents)
	api.POST("/agents", h.createAgent)

	api.POST("/knowledge/upload", h.uploadKnowledge)
	api.POST("/knowledge/ingest", h.ingestText)
	api.GET("/knowledge/documents", h.listDocuments)

	api.GET("/user/profile", h.getProfile)
	api.PUT("/user/profile", h.updateProfile)

	adminRoutes := api.Group("/admin")
	adminRoutes.GET("/users", h.adminUsers)
	adminRoutes.POST("/update-user", h.adminUpdateUser)
	adminRoutes.GET("/dashboard-stats", h.adminDashboardStats)
	adminRoutes.POST("/agente/prompt", h.adminUpdatePrompt)
	adminRoutes.DELETE("/arquivo/:id", h.adminDeleteDocument)
}

type chatRequest struct {
	UserID  int64  `json:"user_id"`
	AgentID string `json:"agent_id"`
	Message string `json:"message"`
}

// postChat always answers 200 with a reply and a token count; failure modes
// are textual replies, which keeps the client handling uniform.
func (h *Handler) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	req.AgentID = strings.TrimSpace(req.AgentID)
	if req.AgentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	reply, tokens, err := h.chat.Converse(c.Request.Context(), req.UserID, req.AgentID, req.Message)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": reply, "tokens": tokens})
}

func (h *Handler) getChatHistory(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	agentID := strings.TrimSpace(c.Query("agentId"))
	if agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agentId is required"})
		return
	}
	messages, err := h.chat.LoadHistory(c.Request.Context(), userID, agentID, chat.DefaultHistoryWindow)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) listAgents(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	list, err := h.agents.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": list})
}

type createAgentRequest struct {
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	CreatorID int64  `json:"creator_id"`
}

func (h *Handler) createAgent(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	agent, err := h.agents.Create(c.Request.Context(), req.CreatorID, req.Name, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "usuário não identificado"})
		case errors.Is(err, agents.ErrPlanForbidsAgents), errors.Is(err, agents.ErrAgentLimitReached):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Agente criado!", "id": agent.ID})
}

func (h *Handler) uploadKnowledge(c *gin.Context) {
	userID, err := strconv.ParseInt(c.PostForm("userId"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
		return
	}
	profession := strings.TrimSpace(c.PostForm("profession"))
	if profession == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Profissão não informada."})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nenhum arquivo enviado."})
		return
	}

	plan, err := h.accounts.PlanOf(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Usuário não identificado."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if file.Size > knowledge.UploadLimit(plan) {
		c.JSON(http.StatusBadRequest, gin.H{"error": knowledge.UploadLimitMessage(plan)})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	content, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}
	if !utf8.Valid(content) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "o arquivo deve ser texto UTF-8"})
		return
	}

	fileName := filepath.Base(file.Filename)
	job := worker.Job{
		Name: fmt.Sprintf("ingest %s", fileName),
		Run: func(ctx context.Context) error {
			_, err := h.knowledge.IngestText(ctx, string(content), profession, fileName)
			return err
		},
	}
	if err := h.workers.Dispatch(job); err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Arquivo recebido, processamento em andamento."})
}

type ingestTextRequest struct {
	Text       string `json:"text"`
	Profession string `json:"profession"`
}

func (h *Handler) ingestText(c *gin.Context) {
	var req ingestTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" || strings.TrimSpace(req.Profession) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Texto ou profissão inválidos."})
		return
	}
	if _, err := h.knowledge.IngestText(c.Request.Context(), req.Text, req.Profession, "Texto Manual"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Erro ao ingerir texto: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Texto absorvido com sucesso!"})
}

func (h *Handler) listDocuments(c *gin.Context) {
	docs, err := h.knowledge.ListDocuments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *Handler) getProfile(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	profile, err := h.accounts.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profile)
}

type updateProfileRequest struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	profile, err := h.accounts.UpdateName(c.Request.Context(), req.UserID, req.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Perfil atualizado com sucesso!", "user": profile})
}

func (h *Handler) adminUsers(c *gin.Context) {
	report, err := h.admin.UserReport(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) adminUpdateUser(c *gin.Context) {
	var req admin.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.admin.UpdateUser(c.Request.Context(), req); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Usuário não encontrado."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Usuário atualizado com sucesso!"})
}

func (h *Handler) adminDashboardStats(c *gin.Context) {
	stats, err := h.admin.DashboardStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type updatePromptRequest struct {
	AgentName string `json:"agent_name"`
	NewPrompt string `json:"new_prompt"`
}

func (h *Handler) adminUpdatePrompt(c *gin.Context) {
	var req updatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.agents.UpdatePrompt(c.Request.Context(), req.AgentName, req.NewPrompt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agente não encontrado."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Prompt atualizado!"})
}

func (h *Handler) adminDeleteDocument(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}
	if err := h.knowledge.DeleteDocument(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Erro ao excluir arquivo."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Arquivo excluído."})
}

func queryUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("userId"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
		return 0, false
	}
	return userID, true
}
