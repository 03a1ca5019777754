package observability

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/danmuck/dorepo/internal/auth"
	"github.com/danmuck/dorepo/internal/idalloc"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ObjectView is the admin listing of one live distributed object.
type ObjectView struct {
	ID     uint32 `json:"id"`
	Class  string `json:"class"`
	Parent uint32 `json:"parent"`
	Zone   uint32 `json:"zone"`
	State  string `json:"state"`
}

// Inspector is the read side of a repository as seen by the admin server.
// Implementations must be safe to call from HTTP goroutines.
type Inspector interface {
	Role() string
	Connected() bool
	Objects() []ObjectView
	Allocators() []idalloc.Stats
	PendingRequests() int
}

type AdminOptions struct {
	Node        string
	Addr        string
	CorsOrigins []string
	// Token guards the inspection routes. Empty leaves them open.
	Token string
}

type Admin struct {
	Node    string
	Addr    string
	Started time.Time

	inspect Inspector
	router  *gin.Engine
	guard   gin.HandlerFunc
}

func NewAdmin(opts AdminOptions, inspect Inspector) *Admin {
	RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(AccessLog(Logger("admin"), opts.Node, inspect.Role()))
	r.Use(AccessMetrics(opts.Node))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{
		Node:    opts.Node,
		Addr:    opts.Addr,
		Started: time.Now(),
		inspect: inspect,
		router:  r,
		guard:   func(c *gin.Context) { c.Next() },
	}
	if opts.Token != "" {
		a.guard = auth.Require(auth.StaticToken{Token: opts.Token})
	}
	a.registerRoutes()
	return a
}

func (a *Admin) Handler() http.Handler {
	return a.router
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(a.Started).String(),
			"node":   a.Node,
			"role":   a.inspect.Role(),
		})
	})

	a.router.GET("/ready", func(c *gin.Context) {
		ready := a.inspect.Connected()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":  ready,
			"uptime": time.Since(a.Started).String(),
			"node":   a.Node,
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	guarded := a.router.Group("/", a.guard)

	guarded.GET("/objects", func(c *gin.Context) {
		objects := a.inspect.Objects()
		if class := c.Query("class"); class != "" {
			filtered := objects[:0]
			for _, o := range objects {
				if o.Class == class {
					filtered = append(filtered, o)
				}
			}
			objects = filtered
		}
		sort.Slice(objects, func(i, j int) bool { return objects[i].ID < objects[j].ID })
		c.JSON(http.StatusOK, gin.H{"count": len(objects), "objects": objects})
	})

	guarded.GET("/objects/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid object id"})
			return
		}
		for _, o := range a.inspect.Objects() {
			if o.ID == uint32(id) {
				c.JSON(http.StatusOK, o)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
	})

	guarded.GET("/allocators", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"allocators": a.inspect.Allocators()})
	})

	guarded.GET("/pending", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pending": a.inspect.PendingRequests()})
	})
}

// Serve blocks until ctx is cancelled or the listener fails.
func (a *Admin) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
