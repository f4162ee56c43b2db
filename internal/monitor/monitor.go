// Package monitor serves the latest training frame and episode statistics
// over HTTP while a run is in progress.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"snakeql/internal/env"
	"snakeql/internal/logging"
)

// Stats is the body of GET /stats
type Stats struct {
	Game      int             `json:"game"`
	Score     int             `json:"score"`
	Record    int             `json:"record"`
	MeanScore float64         `json:"mean_score"`
	Death     env.DeathReason `json:"death"`
	Epsilon   int             `json:"epsilon"`
	Memory    int             `json:"memory"`
	Frames    int64           `json:"frames"`
}

// Board holds copies of what the trainer published. The trainer writes,
// HTTP handlers read; neither touches the other's state.
type Board struct {
	lock   *sync.Mutex
	frame  *env.Frame
	stats  Stats
	server *http.Server
}

// NewBoard creates a board serving on addr once Start is called
func NewBoard(addr string) *Board {
	b := &Board{lock: new(sync.Mutex)}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/state", b.handleState)
	r.GET("/stats", b.handleStats)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	b.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return b
}

// Handler returns the HTTP handler
func (b *Board) Handler() http.Handler {
	return b.server.Handler
}

// ObserveFrame stores a copy of the latest frame
func (b *Board) ObserveFrame(f env.Frame) {
	snake := make([]env.Point, len(f.Snake))
	copy(snake, f.Snake)
	f.Snake = snake

	b.lock.Lock()
	b.frame = &f
	b.stats.Frames++
	b.lock.Unlock()
}

// WriteEpisode records the finished episode
func (b *Board) WriteEpisode(_ context.Context, rec logging.EpisodeRecord) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.stats.Game = rec.Game
	b.stats.Score = rec.Score
	b.stats.Record = rec.Record
	b.stats.MeanScore = rec.MeanScore
	b.stats.Death = rec.Death
	b.stats.Epsilon = rec.Epsilon
	b.stats.Memory = rec.Memory
	return nil
}

// Close is a no-op; the server stops with the context given to Start
func (b *Board) Close() error {
	return nil
}

func (b *Board) handleState(c *gin.Context) {
	b.lock.Lock()
	frame := b.frame
	b.lock.Unlock()

	if frame == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no frame published yet"})
		return
	}
	c.JSON(http.StatusOK, frame)
}

func (b *Board) handleStats(c *gin.Context) {
	b.lock.Lock()
	stats := b.stats
	b.lock.Unlock()

	c.JSON(http.StatusOK, stats)
}

// Start serves in the background until ctx is cancelled
func (b *Board) Start(ctx context.Context) {
	go func() {
		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Warning: monitor stopped: %v\n", err)
		}
	}()

	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		b.server.Shutdown(ctx)
	}()
}
