package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type routeKey struct {
	Method string
	Path   string
	Status int
}

type routeStat struct {
	Count     int64
	LatencyMS float64
}

// Collector keeps per-route request counters in memory and renders them in
// Prometheus text format.
type Collector struct {
	db *sql.DB

	mu        sync.RWMutex
	routes    map[routeKey]routeStat
	startedAt time.Time
}

// NewCollector accepts a nil db; pool gauges are then omitted.
func NewCollector(db *sql.DB) *Collector {
	return &Collector{
		db:        db,
		routes:    make(map[routeKey]routeStat),
		startedAt: time.Now(),
	}
}

type accessKey struct{}

// accessFields are filled in by handlers further down the chain. The
// middleware reads them after the handler returns.
type accessFields struct {
	userID string
}

// SetUserID records the authenticated user on the access log entry of the
// request carried by ctx. It is a no-op outside Collector.Middleware.
func SetUserID(ctx context.Context, userID string) {
	if f, ok := ctx.Value(accessKey{}).(*accessFields); ok {
		f.userID = strings.TrimSpace(userID)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fields := &accessFields{}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), accessKey{}, fields)))

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := routeKey{Method: r.Method, Path: path, Status: rec.status}
		s := c.routes[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.routes[k] = s
		c.mu.Unlock()

		b, _ := json.Marshal(map[string]any{
			"request_id": middleware.GetReqID(r.Context()),
			"user_id":    fields.userID,
			"session_id": extractSessionID(r.URL.Path),
			"method":     r.Method,
			"path":       path,
			"status":     rec.status,
			"latency_ms": latencyMS,
			"remote_ip":  strings.TrimSpace(r.RemoteAddr),
		})
		log.Printf("%s", b)
	})
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	snapshot := make(map[routeKey]routeStat, len(c.routes))
	for k, v := range c.routes {
		snapshot[k] = v
	}
	uptime := time.Since(c.startedAt)
	c.mu.RUnlock()

	keys := make([]routeKey, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# TYPE studysnap_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "studysnap_uptime_seconds %.0f\n", uptime.Seconds())

	sb.WriteString("# TYPE studysnap_http_requests_total counter\n")
	sb.WriteString("# TYPE studysnap_http_request_latency_ms_sum counter\n")
	for _, k := range keys {
		s := snapshot[k]
		labels := fmt.Sprintf(`method=%q,path=%q,status="%d"`, k.Method, k.Path, k.Status)
		fmt.Fprintf(&sb, "studysnap_http_requests_total{%s} %d\n", labels, s.Count)
		fmt.Fprintf(&sb, "studysnap_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS)
	}

	if c.db != nil {
		dbs := c.db.Stats()
		sb.WriteString("# TYPE studysnap_db_open_connections gauge\n")
		fmt.Fprintf(&sb, "studysnap_db_open_connections %d\n", dbs.OpenConnections)
		sb.WriteString("# TYPE studysnap_db_in_use_connections gauge\n")
		fmt.Fprintf(&sb, "studysnap_db_in_use_connections %d\n", dbs.InUse)
		sb.WriteString("# TYPE studysnap_db_wait_count counter\n")
		fmt.Fprintf(&sb, "studysnap_db_wait_count %d\n", dbs.WaitCount)
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

// normalizedPath collapses numeric and uuid segments to {id} so metrics keep
// one series per route.
func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.Atoi(p); err == nil {
			parts[i] = "{id}"
			continue
		}
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func extractSessionID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "sessions" {
			return parts[i+1]
		}
	}
	return ""
}
