// Package health contiene el controller de /readyz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	httperrors "github.com/dropDatabas3/hellojohn-oidc/internal/http/errors"
	"github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// Check es una dependencia a verificar. Si Critical falla, el servicio no
// está listo; si no, queda degraded.
type Check struct {
	Name     string
	Critical bool
	Fn       func(ctx context.Context) error
}

// Status de un componente.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response es el cuerpo de /readyz.
type Response struct {
	Status      string            `json:"status"` // ready | degraded | unavailable
	Components  map[string]Status `json:"components"`
	Version     string            `json:"version,omitempty"`
	ActiveKeyID string            `json:"active_kid,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// HealthController maneja GET /readyz.
type HealthController struct {
	keys    *jwt.Keystore
	checks  []Check
	timeout time.Duration
}

func NewHealthController(ks *jwt.Keystore, checks ...Check) *HealthController {
	return &HealthController{keys: ks, checks: checks, timeout: 2 * time.Second}
}

// Readyz maneja GET /readyz
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	resp := c.Check(ctx)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if resp.ActiveKeyID != "" {
		w.Header().Set("X-JWKS-KID", resp.ActiveKeyID)
	}

	status := http.StatusOK
	if resp.Status == "unavailable" {
		status = http.StatusServiceUnavailable
		log.Warn("service not ready", logger.Any("components", resp.Components))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Check corre todas las verificaciones en paralelo.
func (c *HealthController) Check(ctx context.Context) Response {
	resp := Response{
		Status:     "ready",
		Components: make(map[string]Status, len(c.checks)+1),
		Version:    os.Getenv("SERVICE_VERSION"),
		Timestamp:  time.Now().UTC(),
	}

	// keystore (crítico)
	if k, err := c.keys.Active(); err != nil {
		resp.Components["keystore"] = Status{Status: "error", Message: err.Error()}
		resp.Status = "unavailable"
	} else {
		resp.ActiveKeyID = k.KID
		resp.Components["keystore"] = Status{Status: "ok"}
	}

	var (
		mu       sync.Mutex
		critical bool
		degraded bool
	)
	var g errgroup.Group
	for _, chk := range c.checks {
		g.Go(func() error {
			cctx, ccancel := context.WithTimeout(ctx, c.timeout)
			defer ccancel()
			err := chk.Fn(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				resp.Components[chk.Name] = Status{Status: "error", Message: err.Error()}
				if chk.Critical {
					critical = true
				} else {
					degraded = true
				}
				return nil
			}
			resp.Components[chk.Name] = Status{Status: "ok"}
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case critical:
		resp.Status = "unavailable"
	case degraded && resp.Status == "ready":
		resp.Status = "degraded"
	}
	return resp
}
