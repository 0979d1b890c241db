package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	ginprometheus "github.com/zsais/go-gin-prometheus"

	"journez/backend/internal/ai"
	"journez/backend/internal/export"
	"journez/backend/internal/parse"
	"journez/backend/internal/places"
	"journez/backend/internal/recommend"
	"journez/backend/internal/store"
)

// streamQueueSize bounds requests waiting behind the running one on a stream.
const streamQueueSize = 4

// Config defines server options.
type Config struct {
	AllowedOrigins []string
	MetricsEnabled bool
	CacheBackend   string
	// CacheStats reports the durable lookup cache when one is configured.
	CacheStats func(context.Context) (store.Stats, error)
}

// Server wires HTTP handlers to the recommendation pipeline.
type Server struct {
	pipeline       *recommend.Pipeline
	allowedOrigins []string
	metricsEnabled bool
	cacheBackend   string
	cacheStats     func(context.Context) (store.Stats, error)
}

// NewServer constructs the API server.
func NewServer(pipeline *recommend.Pipeline, cfg Config) (*Server, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline required")
	}
	return &Server{
		pipeline:       pipeline,
		allowedOrigins: cfg.AllowedOrigins,
		metricsEnabled: cfg.MetricsEnabled,
		cacheBackend:   cfg.CacheBackend,
		cacheStats:     cfg.CacheStats,
	}, nil
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	if s.metricsEnabled {
		p := ginprometheus.NewPrometheus("gin")
		p.Use(r)
	}

	corsCfg := cors.DefaultConfig()
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
		corsCfg.AllowCredentials = true
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.ExposeHeaders = []string{"Content-Disposition"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)

	api := r.Group("/api")
	{
		api.POST("/recommendations", s.handleRecommend)
		api.POST("/recommendations/parse", s.handleParse)
		api.GET("/recommendations/stream", s.handleStream)
		api.POST("/export.csv", s.handleExportCSV)
		api.POST("/export.json", s.handleExportJSON)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	resp := ConfigResponse{
		Categories:       parse.Categories(),
		DefaultCount:     recommend.DefaultCount,
		MaxCount:         recommend.MaxCount,
		GeneratorEnabled: s.pipeline.GeneratorEnabled(),
		DirectoryEnabled: s.pipeline.DirectoryEnabled(),
		CacheBackend:     s.cacheBackend,
	}
	if s.cacheStats != nil {
		stats, err := s.cacheStats(c.Request.Context())
		if err != nil {
			logrus.WithError(err).Warn("read lookup cache stats")
		} else {
			resp.CacheStats = &stats
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecommend(c *gin.Context) {
	var req RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result, err := s.run(c.Request.Context(), req, recommend.Hooks{})
	if err != nil {
		s.renderError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleParse(c *gin.Context) {
	var req RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.RawText) == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("raw_text is required"))
		return
	}

	result, err := s.pipeline.FromText(c.Request.Context(), req.pipelineRequest(), req.RawText, recommend.Hooks{})
	if err != nil {
		s.renderError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// run replays raw text when the request carries it and generates otherwise.
func (s *Server) run(ctx context.Context, req RecommendRequest, hooks recommend.Hooks) (recommend.Result, error) {
	if strings.TrimSpace(req.RawText) != "" {
		return s.pipeline.FromText(ctx, req.pipelineRequest(), req.RawText, hooks)
	}
	return s.pipeline.Run(ctx, req.pipelineRequest(), hooks)
}

func (s *Server) handleStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if len(s.allowedOrigins) == 0 || origin == "" {
				return true
			}
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}
	client := &wsClient{conn: conn}
	remote := conn.RemoteAddr().String()
	logrus.WithField("remote", remote).Info("recommendation websocket connected")
	defer conn.Close()

	// Runs use connCtx, so a client that goes away mid-run stops generation
	// and lookups.
	connCtx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	requests := make(chan RecommendRequest, streamQueueSize)
	go s.readStream(client, remote, requests, cancel)

	for req := range requests {
		result, err := s.run(connCtx, req, client.hooks())
		if err != nil {
			if connCtx.Err() != nil {
				logrus.WithField("remote", remote).Info("recommendation websocket run abandoned")
				return
			}
			logrus.WithError(err).WithField("remote", remote).Warn("streamed recommendation failed")
			if sendErr := client.send(RunEvent{Type: eventError, Status: statusFor(err), Message: err.Error()}); sendErr != nil {
				return
			}
			continue
		}
		if err := client.send(RunEvent{Type: eventComplete, RequestID: result.RequestID, Result: &result}); err != nil {
			return
		}
	}
}

// readStream owns the read side of a stream connection. It never blocks on
// the run loop, so a close is noticed while a request is still running.
func (s *Server) readStream(client *wsClient, remote string, requests chan<- RecommendRequest, cancel context.CancelFunc) {
	defer close(requests)
	defer cancel()

	for {
		var req RecommendRequest
		if err := client.conn.ReadJSON(&req); err != nil {
			if isDecodeError(err) {
				if sendErr := client.send(RunEvent{Type: eventError, Status: http.StatusBadRequest, Message: "invalid request: " + err.Error()}); sendErr != nil {
					return
				}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).WithField("remote", remote).Warn("recommendation websocket unexpected close")
			} else {
				logrus.WithField("remote", remote).Info("recommendation websocket closed")
			}
			return
		}

		select {
		case requests <- req:
		default:
			if err := client.send(RunEvent{Type: eventError, Status: http.StatusTooManyRequests, Message: "too many queued requests"}); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleExportCSV(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	opts := export.CSVOptions{BOM: queryBool(c, "bom", true)}
	if queryBool(c, "title", true) {
		opts.Title = export.DefaultTitle
	}

	c.Header("Content-Disposition", "attachment; filename="+export.Filename+".csv")
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, export.Flatten(req.Results), opts); err != nil {
		logrus.WithError(err).Warn("write csv export")
	}
}

func (s *Server) handleExportJSON(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+export.Filename+".json")
	c.JSON(http.StatusOK, export.Flatten(req.Results))
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, recommend.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ai.ErrDisabled), errors.Is(err, places.ErrMissingCredential):
		return http.StatusServiceUnavailable
	case errors.Is(err, ai.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// isDecodeError reports a message that arrived intact but is not a valid request.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func queryBool(c *gin.Context, key string, fallback bool) bool {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
