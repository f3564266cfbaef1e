package routes

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"llm-gateway-platform/internal/config"
	"llm-gateway-platform/internal/logger"
	"llm-gateway-platform/internal/telemetry"
	"llm-gateway-platform/middleware"
	"llm-gateway-platform/utils"

	"github.com/gin-gonic/gin"
)

// SetupOllamaRoutes exposes an Ollama-compatible surface backed by the
// configured upstream instances. Tags from every upstream merge into one
// list with a per-model "urlIdx" routing tag.
func SetupOllamaRoutes(router *gin.Engine, cfg *config.Config, authMiddleware *middleware.AuthMiddleware, metrics *telemetry.Metrics) {
	group := router.Group("/ollama")
	group.Use(authMiddleware.RequireAuth())

	group.GET("/api/tags", func(c *gin.Context) {
		type upstreamResult struct {
			idx    int
			models []map[string]interface{}
		}

		results := make(chan upstreamResult, len(cfg.OllamaBaseURLs))
		var wg sync.WaitGroup
		for idx, baseURL := range cfg.OllamaBaseURLs {
			wg.Add(1)
			go func(idx int, baseURL string) {
				defer wg.Done()

				models, err := fetchOllamaTags(c, baseURL)
				if err != nil {
					logger.Error("Failed to fetch tags from upstream", "url", baseURL, "error", err)
					return
				}
				results <- upstreamResult{idx: idx, models: models}
			}(idx, baseURL)
		}
		wg.Wait()
		close(results)

		merged := []map[string]interface{}{}
		for r := range results {
			for _, m := range r.models {
				m["urlIdx"] = r.idx
				merged = append(merged, m)
			}
		}

		c.JSON(http.StatusOK, gin.H{"models": merged})
	})

	forward := func(endpoint string) gin.HandlerFunc {
		return func(c *gin.Context) {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				utils.RespondWithBadRequest(c, "Failed to read request body", nil)
				return
			}

			idx := upstreamIndex(c, body, len(cfg.OllamaBaseURLs))
			if idx < 0 {
				utils.RespondWithBadRequest(c, "Unknown upstream index", nil)
				return
			}

			forwardProxyRequest(c, metrics, "ollama", endpoint,
				cfg.OllamaBaseURLs[idx]+endpoint, cfg.OllamaAPIKey, stripURLIdx(body))
		}
	}

	group.POST("/api/chat", forward("/api/chat"))
	group.POST("/api/generate", forward("/api/generate"))
	group.POST("/api/embed", forward("/api/embed"))
}

func fetchOllamaTags(c *gin.Context, baseURL string) ([]map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := proxyClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Models []map[string]interface{} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Models, nil
}
