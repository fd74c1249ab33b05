package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"quizHelper/core"
	"quizHelper/storage"
)

// Engine answers and searches against a built index.
type Engine interface {
	AnswerQuery(ctx context.Context, queryText string, ix *storage.Index) (string, error)
	Search(ctx context.Context, text string, k int, ix *storage.Index) ([]core.Hit, error)
}

// Server exposes one index over HTTP.
type Server struct {
	engine  Engine
	index   *storage.Index
	topK    int
	logger  *log.Logger
	started time.Time
}

func New(engine Engine, ix *storage.Index, topK int, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[SERVER] ", log.LstdFlags)
	}
	if topK <= 0 {
		topK = 5
	}
	return &Server{engine: engine, index: ix, topK: topK, logger: logger, started: time.Now()}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.LoggerWithWriter(s.logger.Writer()), gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/index", s.handleIndexInfo)
	r.POST("/answer", s.handleAnswer)
	r.POST("/search", s.handleSearch)
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
