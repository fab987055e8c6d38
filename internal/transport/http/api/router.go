package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"botarena/internal/bot"
	"botarena/internal/events"
	"botarena/internal/experiment"
	"botarena/internal/logger"
	"botarena/internal/strategy"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ExperimentService is implemented by experiment.Manager.
type ExperimentService interface {
	Create(ctx context.Context, ownerID string, spec experiment.Spec) (experiment.Info, error)
	Start(ctx context.Context, id string) (experiment.Info, error)
	Stop(ctx context.Context, id string) ([]experiment.Result, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (experiment.Info, error)
	GetBot(ctx context.Context, botID string) (bot.Info, error)
	Results(ctx context.Context, id string) ([]experiment.Result, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, ev events.NewsEvent) int
}

type Router struct {
	svc    ExperimentService
	events EventPublisher
	topic  string
}

func NewRouter(svc ExperimentService, pub EventPublisher, topic string) *Router {
	if strings.TrimSpace(topic) == "" {
		topic = "news"
	}
	return &Router{svc: svc, events: pub, topic: topic}
}

// Register mounts the /api routes on group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/experiments", r.handleCreate)
	group.GET("/experiments/:id", r.handleGet)
	group.POST("/experiments/:id/start", r.handleStart)
	group.POST("/experiments/:id/stop", r.handleStop)
	group.DELETE("/experiments/:id", r.handleDelete)
	group.GET("/experiments/:id/results", r.handleResults)
	group.GET("/bots/:id", r.handleGetBot)
	group.GET("/strategies", r.handleStrategies)
	if r.events != nil {
		group.POST("/events", r.handlePublish)
	}
}

type createRequest struct {
	OwnerID    string                    `json:"owner_id"`
	BotCount   int                       `json:"bot_count"`
	Strategies []experiment.StrategySpec `json:"strategies"`
	Watchlist  []string                  `json:"watchlist"`
	// Duration uses Go duration syntax ("90m", "6h30m").
	Duration string  `json:"duration"`
	Capital  float64 `json:"capital"`
}

func (r *Router) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	var duration time.Duration
	if d := strings.TrimSpace(req.Duration); d != "" {
		parsed, err := time.ParseDuration(d)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duration: " + err.Error()})
			return
		}
		duration = parsed
	}
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		owner = strings.TrimSpace(c.GetHeader("X-Owner-ID"))
	}
	info, err := r.svc.Create(c.Request.Context(), owner, experiment.Spec{
		BotCount:   req.BotCount,
		Strategies: req.Strategies,
		Watchlist:  req.Watchlist,
		Duration:   duration,
		Capital:    req.Capital,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (r *Router) handleGet(c *gin.Context) {
	info, err := r.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (r *Router) handleStart(c *gin.Context) {
	info, err := r.svc.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (r *Router) handleStop(c *gin.Context) {
	results, err := r.svc.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (r *Router) handleDelete(c *gin.Context) {
	if err := r.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) handleResults(c *gin.Context) {
	results, err := r.svc.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (r *Router) handleGetBot(c *gin.Context) {
	info, err := r.svc.GetBot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type strategyInfo struct {
	Kind     strategy.Kind   `json:"kind"`
	Regime   strategy.Regime `json:"regime"`
	Defaults strategy.Params `json:"defaults"`
}

func (r *Router) handleStrategies(c *gin.Context) {
	kinds := strategy.Kinds()
	out := make([]strategyInfo, 0, len(kinds))
	for _, k := range kinds {
		regime, _ := strategy.RegimeOf(k)
		params, _ := strategy.DefaultParams(k)
		out = append(out, strategyInfo{Kind: k, Regime: regime, Defaults: params})
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

func (r *Router) handlePublish(c *gin.Context) {
	var ev events.NewsEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event: " + err.Error()})
		return
	}
	if len(ev.Symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event needs at least one symbol"})
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.PublishedAt.IsZero() {
		ev.PublishedAt = time.Now()
	}
	n := r.events.Publish(c.Request.Context(), r.topic, ev)
	c.JSON(http.StatusAccepted, gin.H{"id": ev.ID, "delivered": n})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, experiment.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, experiment.ErrAlreadyStarted), errors.Is(err, experiment.ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, experiment.ErrInvalidSpec):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("HTTP %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
