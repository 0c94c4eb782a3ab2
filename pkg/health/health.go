package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health",
	fx.Provide(ProvideHealth),
	fx.Invoke(registerRoutes),
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type Health struct {
	Status string       `json:"status"`
	Deps   []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type health struct {
	db    *gorm.DB
	redis *redis.Client
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:    p.DB,
		redis: p.Redis,
	}
}

func registerRoutes(router *gin.Engine, svc HealthService) {
	router.GET("/healthz", svc.Liveness)
	router.GET("/readyz", svc.Readiness)
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{Status: "healthy"})
}

func (h *health) Readiness(c *gin.Context) {
	deps := make([]Dependency, 0, 2)
	ready := true

	if h.db != nil {
		dep := Dependency{Name: "database", Status: "up"}
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			dep.Status = "down"
			dep.Message = err.Error()
			ready = false
		}
		deps = append(deps, dep)
	}

	if h.redis != nil {
		dep := Dependency{Name: "redis", Status: "up"}
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			dep.Status = "down"
			dep.Message = err.Error()
			ready = false
		}
		deps = append(deps, dep)
	}

	status := http.StatusOK
	resp := &Health{Status: "ready", Deps: deps}
	if !ready {
		status = http.StatusServiceUnavailable
		resp.Status = "degraded"
	}

	c.JSON(status, resp)
}
