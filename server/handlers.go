package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"quizHelper/core"
)

type answerRequest struct {
	Query string `json:"query"`
}

type answerResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Display  string `json:"display"`
}

type searchRequest struct {
	Text string `json:"text" binding:"required"`
	K    int    `json:"k"`
}

type searchResponse struct {
	Hits []core.Hit `json:"hits"`
}

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		embErr *core.EmbeddingServiceError
		ansErr *core.AnswerServiceError
	)
	switch {
	case errors.Is(err, core.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.As(err, &embErr), errors.As(err, &ansErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	checks := map[string]HealthCheck{
		"ffmpeg":  checkBinary(c.Request.Context(), "ffmpeg"),
		"ffprobe": checkBinary(c.Request.Context(), "ffprobe"),
	}
	c.JSON(http.StatusOK, gin.H{
		"status": overallStatus(checks),
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"checks": checks,
		"index":  s.index.Len(),
	})
}

func (s *Server) handleIndexInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"chunks":    s.index.Len(),
		"dimension": s.index.Dim(),
		"backend":   s.index.Backend(),
	})
}

// handleAnswer accepts either {"query": "..."} or the raw query text.
func (s *Server) handleAnswer(c *gin.Context) {
	var queryText string
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req answerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
		queryText = req.Query
	} else {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
		queryText = string(body)
	}

	q, err := core.ParseQuery(queryText)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	answer, err := s.engine.AnswerQuery(c.Request.Context(), queryText, s.index)
	if err != nil {
		s.logger.Printf("Answer failed: %v", err)
		errorJSON(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, answerResponse{
		Question: q.Question,
		Answer:   answer,
		Display:  q.Question + "\nANSWER: " + answer,
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	k := req.K
	if k == 0 {
		k = s.topK
	}

	hits, err := s.engine.Search(c.Request.Context(), req.Text, k, s.index)
	if err != nil {
		s.logger.Printf("Search failed: %v", err)
		errorJSON(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, searchResponse{Hits: hits})
}
