package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"llm-gateway-platform/internal/config"
	"llm-gateway-platform/internal/logger"
	"llm-gateway-platform/internal/telemetry"
	"llm-gateway-platform/middleware"
	"llm-gateway-platform/utils"

	"github.com/gin-gonic/gin"
)

var proxyClient = &http.Client{Timeout: 5 * time.Minute}

// SetupOpenAIRoutes exposes an OpenAI-compatible surface that fans out to
// the configured upstream endpoints. Models from every upstream are
// merged into one list; each entry carries a "urlIdx" so later requests
// can be routed back to the upstream that owns the model.
func SetupOpenAIRoutes(router *gin.Engine, cfg *config.Config, authMiddleware *middleware.AuthMiddleware, metrics *telemetry.Metrics) {
	group := router.Group("/openai")
	group.Use(authMiddleware.RequireAuth())

	group.GET("/v1/models", func(c *gin.Context) {
		type upstreamResult struct {
			idx    int
			models []map[string]interface{}
		}

		results := make(chan upstreamResult, len(cfg.OpenAIBaseURLs))
		var wg sync.WaitGroup
		for idx, baseURL := range cfg.OpenAIBaseURLs {
			wg.Add(1)
			go func(idx int, baseURL string) {
				defer wg.Done()

				models, err := fetchOpenAIModels(c, baseURL, openAIKey(cfg, idx))
				if err != nil {
					logger.Error("Failed to fetch models from upstream", "url", baseURL, "error", err)
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

		c.JSON(http.StatusOK, gin.H{"object": "list", "data": merged})
	})

	group.POST("/v1/chat/completions", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			utils.RespondWithBadRequest(c, "Failed to read request body", nil)
			return
		}

		idx := upstreamIndex(c, body, len(cfg.OpenAIBaseURLs))
		if idx < 0 {
			utils.RespondWithBadRequest(c, "Unknown upstream index", nil)
			return
		}

		forwardProxyRequest(c, metrics, "openai", "/v1/chat/completions",
			cfg.OpenAIBaseURLs[idx]+"/chat/completions", openAIKey(cfg, idx), stripURLIdx(body))
	})

	group.POST("/v1/embeddings", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			utils.RespondWithBadRequest(c, "Failed to read request body", nil)
			return
		}

		idx := upstreamIndex(c, body, len(cfg.OpenAIBaseURLs))
		if idx < 0 {
			utils.RespondWithBadRequest(c, "Unknown upstream index", nil)
			return
		}

		forwardProxyRequest(c, metrics, "openai", "/v1/embeddings",
			cfg.OpenAIBaseURLs[idx]+"/embeddings", openAIKey(cfg, idx), stripURLIdx(body))
	})
}

func openAIKey(cfg *config.Config, idx int) string {
	if idx < len(cfg.OpenAIAPIKeys) {
		return cfg.OpenAIAPIKeys[idx]
	}
	return cfg.OpenAIAPIKey
}

func fetchOpenAIModels(c *gin.Context, baseURL, apiKey string) ([]map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
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
		Data []map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Data, nil
}

// upstreamIndex resolves which upstream a request targets: an explicit
// "urlIdx" field in the body wins, then the urlIdx query parameter, then
// upstream 0.
func upstreamIndex(c *gin.Context, body []byte, upstreams int) int {
	idx := 0

	var parsed struct {
		URLIdx *int `json:"urlIdx"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.URLIdx != nil {
		idx = *parsed.URLIdx
	} else if q := c.Query("urlIdx"); q != "" {
		if v, err := strconv.Atoi(q); err == nil {
			idx = v
		}
	}

	if idx < 0 || idx >= upstreams {
		return -1
	}
	return idx
}

// stripURLIdx removes the routing field before the body reaches the
// upstream, which would reject unknown parameters.
func stripURLIdx(body []byte) []byte {
	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return body
	}
	if _, ok := parsed["urlIdx"]; !ok {
		return body
	}
	delete(parsed, "urlIdx")

	cleaned, err := json.Marshal(parsed)
	if err != nil {
		return body
	}
	return cleaned
}

// forwardProxyRequest relays the request to the upstream and streams the
// response back, flushing per chunk so SSE token streams pass through.
func forwardProxyRequest(c *gin.Context, metrics *telemetry.Metrics, provider, endpoint, url, apiKey string, body []byte) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to build upstream request", nil)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := proxyClient.Do(req)
	if err != nil {
		if metrics != nil {
			metrics.RecordProxyRequest(provider, endpoint, http.StatusBadGateway)
		}
		utils.RespondWithError(c, http.StatusBadGateway, "upstream_unavailable",
			"Upstream provider request failed", gin.H{"error": err.Error()})
		return
	}
	defer resp.Body.Close()

	if metrics != nil {
		metrics.RecordProxyRequest(provider, endpoint, resp.StatusCode)
	}

	for key, values := range resp.Header {
		if strings.EqualFold(key, "Content-Length") {
			continue
		}
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	c.Status(resp.StatusCode)

	flusher, canFlush := c.Writer.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := c.Writer.Write(buf[:n]); writeErr != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return
		}
		if readErr != nil {
			logger.Error("Upstream stream interrupted", "provider", provider, "error", readErr)
			return
		}
	}
}
