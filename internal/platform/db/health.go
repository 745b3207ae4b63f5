package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Probe checks one dependency. Details, when non-nil, are reported alongside
// the status.
type Probe struct {
	Name  string
	Check func(ctx context.Context) (details interface{}, err error)
}

// PoolProbe pings the correlation database.
func PoolProbe(pool *pgxpool.Pool) Probe {
	return Probe{
		Name: "database",
		Check: func(ctx context.Context) (interface{}, error) {
			err := pool.Ping(ctx)
			return GetPoolStats(pool), err
		},
	}
}

type CheckResult struct {
	Status  string      `json:"status"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// HealthHandler runs every probe with timeout and answers 503 if any fails.
func HealthHandler(timeout time.Duration, probes ...Probe) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]CheckResult, len(probes))
		for _, p := range probes {
			details, err := p.Check(ctx)
			res := CheckResult{Status: "healthy", Details: details}
			if err != nil {
				res.Status = "unhealthy"
				res.Error = err.Error()
				status = http.StatusServiceUnavailable
			}
			checks[p.Name] = res
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}
		return c.JSON(status, map[string]interface{}{
			"status": overall,
			"checks": checks,
		})
	}
}
