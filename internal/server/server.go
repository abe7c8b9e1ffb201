// Package server exposes searches over HTTP: start a search, stream its log
// as server-sent events, fetch and export its results.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rendis/mapsift/internal/engine/scraper"
	"github.com/rendis/mapsift/internal/events"
	"github.com/rendis/mapsift/internal/export"
	"github.com/rendis/mapsift/internal/model"
	"github.com/rendis/mapsift/internal/session"
)

// Searcher runs one search; *scraper.Orchestrator implements it.
type Searcher interface {
	Search(ctx context.Context, req model.SearchRequest, opts scraper.RunOptions) (*scraper.Result, error)
}

type Options struct {
	Searcher Searcher
	Store    session.Store
	Logger   logrus.FieldLogger
	// SearchTimeout bounds a whole search. Zero means no limit.
	SearchTimeout time.Duration
	// KeepAlive is the SSE comment interval that keeps idle proxies open.
	KeepAlive time.Duration
	Now       func() time.Time
}

type Server struct {
	opts    Options
	baseCtx context.Context
	stop    context.CancelFunc
}

func New(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = session.NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{opts: opts, baseCtx: ctx, stop: cancel}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), cors())

	api := r.Group("/api")
	api.GET("/health", s.health)
	api.POST("/scrape", s.startScrape)
	api.GET("/sessions", s.listSessions)
	api.GET("/logs/:id", s.streamLogs)
	api.GET("/results/:id", s.results)
	api.GET("/export/:id/:format", s.exportResults)
	api.DELETE("/session/:id", s.deleteSession)
	return r
}

// Run serves on addr until ctx is canceled, then shuts down gracefully and
// stops running searches.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.WithField("addr", addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Close stops every running search.
func (s *Server) Close() {
	s.stop()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": len(s.opts.Store.List())})
}

func (s *Server) startScrape(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := s.opts.Store.Create(req)
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.opts.SearchTimeout > 0 {
		ctx, cancel = context.WithTimeout(s.baseCtx, s.opts.SearchTimeout)
	} else {
		ctx, cancel = context.WithCancel(s.baseCtx)
	}
	sess.SetCancel(cancel)

	log := s.opts.Logger.WithFields(logrus.Fields{"session": sess.ID, "mode": req.Type})
	log.WithField("query", req.Query).Info("search started")

	go func() {
		defer cancel()
		res, err := s.opts.Searcher.Search(ctx, req, scraper.RunOptions{
			Emitter: events.Multi(sess, events.Logger(log)),
		})
		finish := func(ss *session.Session) { ss.Complete(res.Records) }
		if err != nil {
			log.WithError(err).Error("search failed")
			finish = func(ss *session.Session) { ss.Fail(err) }
		}
		// a deleted session is no longer in the store but may still have
		// subscribers waiting on it
		if err := s.opts.Store.Update(sess.ID, finish); err != nil {
			finish(sess)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"sessionId": sess.ID, "message": "Scraping started"})
}

func (s *Server) listSessions(c *gin.Context) {
	out := make([]gin.H, 0)
	for _, sess := range s.opts.Store.List() {
		snap := sess.Snapshot()
		out = append(out, gin.H{
			"sessionId": snap.ID,
			"status":    snap.Status,
			"count":     snap.Count,
			"query":     sess.Request.Query,
			"startedAt": snap.StartedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) lookup(c *gin.Context) (*session.Session, bool) {
	sess, ok := s.opts.Store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	}
	return sess, ok
}

// streamLogs replays the session log and then follows it until the search
// ends or the client goes away.
func (s *Server) streamLogs(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	replay, ch, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	for _, ev := range replay {
		if err := writeEvent(c, ev); err != nil {
			return
		}
	}
	c.Writer.Flush()

	keepAlive := time.NewTicker(s.opts.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeEvent(c, ev); err != nil {
				return
			}
			c.Writer.Flush()
		case <-keepAlive.C:
			if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeEvent(c *gin.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	return err
}

func (s *Server) results(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) exportResults(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}

	format := export.Format(c.Param("format"))
	var contentType string
	switch format {
	case export.JSON:
		contentType = "application/json"
	case export.CSV:
		contentType = "text/csv"
	case export.GeoJSON:
		contentType = "application/geo+json"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": `Invalid format. Use "json", "csv" or "geojson"`})
		return
	}

	snap := sess.Snapshot()
	if len(snap.Results) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No results to export"})
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, snap.Results); err != nil {
		s.opts.Logger.WithError(err).Error("export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	filename := export.BaseName(s.opts.Now()) + "." + format.Ext()
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (s *Server) deleteSession(c *gin.Context) {
	if !s.opts.Store.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.opts.Logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
