// Package capture is a local PostHog-compatible capture endpoint. It stores
// what it receives in memory so development runs and verification can see
// exactly what the simulator sent.
package capture

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"hogsim/internal/events"
	"hogsim/internal/logging"
)

const (
	maxBodyBytes     = 10 << 20
	defaultMaxEvents = 100_000
)

// Config configures a Server.
type Config struct {
	// APIKey, when set, must match the api_key of every request.
	APIKey    string
	MaxEvents int
	Logger    *zap.Logger
}

// Server records captured events.
type Server struct {
	cfg    Config
	engine *gin.Engine
	log    *zap.Logger

	mu        sync.Mutex
	records   []events.Record
	received  int
	rejected  int
	synthetic int
}

// Stats is the body of GET /api/stats.
type Stats struct {
	Received  int            `json:"received"`
	Stored    int            `json:"stored"`
	Rejected  int            `json:"rejected"`
	Synthetic int            `json:"synthetic"`
	ByEvent   map[string]int `json:"by_event"`
}

// NewServer creates a Server with all routes registered.
func NewServer(cfg Config) *Server {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = defaultMaxEvents
	}
	s := &Server{cfg: cfg, log: logging.OrNop(cfg.Logger)}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/health", s.handleHealth)
	r.POST("/capture/", s.handleCapture)
	r.POST("/i/v0/e/", s.handleCapture)
	r.POST("/batch/", s.handleBatch)
	r.GET("/api/events", s.handleList)
	r.DELETE("/api/events", s.handleReset)
	r.GET("/api/stats", s.handleStats)
	s.engine = r
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Records returns a copy of the stored records.
func (s *Server) Records() []events.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readBody(c *gin.Context) (gjson.Result, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return gjson.Result{}, false
	}
	if !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body is not valid JSON"})
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(body), true
}

func (s *Server) authorized(c *gin.Context, key string) bool {
	if key == "" || (s.cfg.APIKey != "" && key != s.cfg.APIKey) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api_key"})
		return false
	}
	return true
}

// handleCapture accepts a single event.
func (s *Server) handleCapture(c *gin.Context) {
	doc, ok := s.readBody(c)
	if !ok {
		return
	}
	if !s.authorized(c, doc.Get("api_key").String()) {
		return
	}
	rec, err := decodeRecord(doc)
	if err != nil {
		s.countRejected(1)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.store(rec)
	c.JSON(http.StatusOK, gin.H{"status": 1})
}

// handleBatch accepts {"api_key": ..., "batch": [...]}. Invalid items are
// counted and skipped; the rest are stored.
func (s *Server) handleBatch(c *gin.Context) {
	doc, ok := s.readBody(c)
	if !ok {
		return
	}
	if !s.authorized(c, doc.Get("api_key").String()) {
		return
	}
	batch := doc.Get("batch")
	if !batch.IsArray() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch must be an array"})
		return
	}

	var stored, rejected int
	batch.ForEach(func(_, item gjson.Result) bool {
		rec, err := decodeRecord(item)
		if err != nil {
			rejected++
			return true
		}
		s.store(rec)
		stored++
		return true
	})
	s.countRejected(rejected)
	c.JSON(http.StatusOK, gin.H{"status": 1, "stored": stored, "rejected": rejected})
}

func (s *Server) handleList(c *gin.Context) {
	name := c.Query("event")
	distinct := c.Query("distinct_id")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}

	out := make([]events.Record, 0)
	for _, r := range s.Records() {
		if name != "" && r.Event != name {
			continue
		}
		if distinct != "" && r.DistinctID != distinct {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "results": out})
}

func (s *Server) handleReset(c *gin.Context) {
	s.mu.Lock()
	n := len(s.records)
	s.records = nil
	s.received, s.rejected, s.synthetic = 0, 0, 0
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Stats())
}

// Stats summarises what the server has seen.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Received:  s.received,
		Stored:    len(s.records),
		Rejected:  s.rejected,
		Synthetic: s.synthetic,
		ByEvent:   map[string]int{},
	}
	for _, r := range s.records {
		st.ByEvent[r.Event]++
	}
	return st
}

func (s *Server) store(rec events.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received++
	if synthetic, _ := rec.Properties[events.SyntheticProperty].(bool); synthetic {
		s.synthetic++
	}
	if len(s.records) >= s.cfg.MaxEvents {
		return
	}
	s.records = append(s.records, rec)
}

func (s *Server) countRejected(n int) {
	if n == 0 {
		return
	}
	s.mu.Lock()
	s.rejected += n
	s.mu.Unlock()
}

type invalidRecord string

func (e invalidRecord) Error() string { return string(e) }

// decodeRecord reads one wire record. event and distinct_id are required;
// a missing timestamp means now.
func decodeRecord(doc gjson.Result) (events.Record, error) {
	rec := events.Record{
		Event:      doc.Get("event").String(),
		DistinctID: doc.Get("distinct_id").String(),
		Timestamp:  doc.Get("timestamp").String(),
		UUID:       doc.Get("uuid").String(),
		Properties: map[string]any{},
	}
	if rec.Event == "" {
		return rec, invalidRecord("missing event")
	}
	if rec.DistinctID == "" {
		rec.DistinctID = doc.Get("properties.distinct_id").String()
	}
	if rec.DistinctID == "" {
		return rec, invalidRecord("missing distinct_id")
	}
	if props := doc.Get("properties"); props.IsObject() {
		if err := json.Unmarshal([]byte(props.Raw), &rec.Properties); err != nil {
			return rec, invalidRecord("properties: " + err.Error())
		}
	}
	if rec.Timestamp == "" {
		rec.At = time.Now().UTC()
		rec.Timestamp = rec.At.Format(events.TimestampFormat)
	} else if at, err := time.Parse(time.RFC3339Nano, rec.Timestamp); err == nil {
		rec.At = at.UTC()
	} else {
		return rec, invalidRecord("timestamp is not ISO-8601")
	}
	return rec, nil
}
