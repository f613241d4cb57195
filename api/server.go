// Package api exposes the HTTP surface: chat job submission and tracking,
// document CRUD and search, health and readiness probes. Handlers stay
// thin; chat work happens in the worker process.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/ragline/ragline/document"
	"github.com/ragline/ragline/domain"
	"github.com/ragline/ragline/queue"
)

type (
	// JobQueue is the producer surface the handlers use. Satisfied by
	// *queue.Producer.
	JobQueue interface {
		PushChatJob(ctx context.Context, message string, conversationID *uuid.UUID, agentID *string) (uuid.UUID, error)
		PushEmbedJob(ctx context.Context, documentID uuid.UUID, content string, metadata json.RawMessage) (uuid.UUID, error)
		PushIndexJob(ctx context.Context, documentID uuid.UUID) (uuid.UUID, error)
		GetJobStatus(ctx context.Context, jobID uuid.UUID) (*queue.JobResult, error)
		Ping(ctx context.Context) error
	}

	// Searcher answers document similarity queries. The RAG service
	// satisfies it.
	Searcher interface {
		RetrieveTopK(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
	}

	// Options configures the server.
	Options struct {
		Queue     JobQueue
		Documents *document.Service
		Search    Searcher

		// Version is reported by the health probe.
		Version string
		// SearchLimit is the default search result count. Defaults to 5.
		SearchLimit int
		// AllowedOrigins configures CORS. Empty disables cross-origin
		// access.
		AllowedOrigins []string
		// APIKey, when set, requires X-API-Key on /api/v1 routes.
		APIKey string
	}

	// Server carries the handler dependencies.
	Server struct {
		queue          JobQueue
		documents      *document.Service
		search         Searcher
		version        string
		searchLimit    int
		allowedOrigins []string
		apiKey         string
	}
)

const defaultSearchLimit = 5

// NewServer validates dependencies and builds the server.
func NewServer(opts Options) (*Server, error) {
	if opts.Queue == nil {
		return nil, errors.New("job queue is required")
	}
	if opts.Documents == nil {
		return nil, errors.New("document service is required")
	}
	if opts.Search == nil {
		return nil, errors.New("search service is required")
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	limit := opts.SearchLimit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &Server{
		queue:          opts.Queue,
		documents:      opts.Documents,
		search:         opts.Search,
		version:        version,
		searchLimit:    limit,
		allowedOrigins: opts.AllowedOrigins,
		apiKey:         opts.APIKey,
	}, nil
}

// Handler builds the gin engine with all routes and middleware.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), corsMiddleware(s.allowedOrigins))

	router.GET("/health", s.health)
	router.GET("/ready", s.ready)

	v1 := router.Group("/api/v1")
	if s.apiKey != "" {
		v1.Use(apiKeyMiddleware(s.apiKey))
	}
	v1.POST("/chat", s.postChat)
	v1.GET("/chat/jobs/:job_id", s.getChatJob)
	v1.POST("/documents", s.postDocument)
	v1.GET("/documents", s.listDocuments)
	v1.GET("/documents/:id", s.getDocument)
	v1.DELETE("/documents/:id", s.deleteDocument)
	v1.POST("/documents/search", s.searchDocuments)

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": s.version})
}

func (s *Server) ready(c *gin.Context) {
	if err := s.queue.Ping(c.Request.Context()); err != nil {
		log.Error(c.Request.Context(), err, log.KV{K: "probe", V: "ready"})
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "redis": "disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "redis": "connected"})
}

type chatRequest struct {
	Message        string     `json:"message"`
	ConversationID *uuid.UUID `json:"conversation_id"`
	AgentID        *string    `json:"agent_id"`
}

func (s *Server) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	jobID, err := s.queue.PushChatJob(c.Request.Context(), req.Message, req.ConversationID, req.AgentID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": "queued"})
}

func (s *Server) getChatJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	status, err := s.queue.GetJobStatus(c.Request.Context(), jobID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if status == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, status)
}

type createDocumentRequest struct {
	Name        string `json:"name"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

func (s *Server) postDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	doc, _, err := s.documents.Ingest(c.Request.Context(), req.Name, req.Content, req.ContentType)
	if err != nil {
		s.respondError(c, err)
		return
	}
	// Vector indexing is asynchronous: hand the content to the embed queue.
	if _, err := s.queue.PushEmbedJob(c.Request.Context(), doc.ID, req.Content, doc.Metadata); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// listDocuments exists for API symmetry; the store does not support listing
// yet, so the collection always reads empty.
func (s *Server) listDocuments(c *gin.Context) {
	c.JSON(http.StatusOK, []any{})
}

func (s *Server) getDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	doc, err := s.documents.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if doc == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) deleteDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	if err := s.documents.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	// Clear the document's vectors asynchronously.
	if _, err := s.queue.PushIndexJob(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Content    string    `json:"content"`
	Score      float32   `json:"score"`
}

func (s *Server) searchDocuments(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.searchLimit
	}
	results, err := s.search.RetrieveTopK(c.Request.Context(), req.Query, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]searchResponse, len(results))
	for i, r := range results {
		out[i] = searchResponse{
			ChunkID:    r.Chunk.ID,
			DocumentID: r.Chunk.DocumentID,
			Content:    r.Chunk.Content,
			Score:      r.Score,
		}
	}
	c.JSON(http.StatusOK, out)
}

// respondError maps domain error kinds to HTTP statuses. Bodies carry the
// status only; details go to the log.
func (s *Server) respondError(c *gin.Context, err error) {
	log.Error(c.Request.Context(), err, log.KV{K: "path", V: c.Request.URL.Path})
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		c.AbortWithStatus(http.StatusNotFound)
	case domain.KindValidation:
		c.AbortWithStatus(http.StatusBadRequest)
	default:
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}
