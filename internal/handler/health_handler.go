package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CalilDrissi/virtus/internal/pkg/response"
	"github.com/CalilDrissi/virtus/internal/provider"
)

const healthCheckTimeout = 10 * time.Second

type HealthHandler struct {
	providers map[string]provider.Provider
}

func NewHealthHandler(providers map[string]provider.Provider) *HealthHandler {
	return &HealthHandler{providers: providers}
}

type providerHealth struct {
	Kind    string `json:"kind"`
	Healthy bool   `json:"healthy"`
}

// Check fans out to every configured provider concurrently. The endpoint
// itself always answers 200; per-provider state is in the body.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	results := make(map[string]providerHealth, len(h.providers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for modelID, backend := range h.providers {
		wg.Add(1)
		go func(modelID string, backend provider.Provider) {
			defer wg.Done()
			status := providerHealth{Kind: backend.Name(), Healthy: backend.HealthCheck(ctx)}
			mu.Lock()
			results[modelID] = status
			mu.Unlock()
		}(modelID, backend)
	}
	wg.Wait()

	response.Success(c, gin.H{"status": "ok", "providers": results})
}
