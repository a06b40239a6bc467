package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AIClient is the external AI provider collaborator consulted by workflow
// ai nodes. It returns structured predictions; provider mechanics are out of
// scope for this service.
type AIClient interface {
	Process(ctx context.Context, operation string, input map[string]interface{}) (map[string]interface{}, error)
}

// AI operations supported by workflow ai nodes
const (
	AIOperationCategorize = "categorize"
	AIOperationSuggest    = "suggest"
	AIOperationPredict    = "predict"
)

// HTTPAIClient calls the AI provider over HTTP
type HTTPAIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAIClient creates a client for the AI provider at the given base URL
func NewAIClient(baseURL string) *HTTPAIClient {
	return &HTTPAIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type aiRequest struct {
	Operation string                 `json:"operation"`
	Input     map[string]interface{} `json:"input"`
}

type aiResponse struct {
	Success bool                   `json:"success"`
	Result  map[string]interface{} `json:"result"`
}

// Process invokes a single AI operation synchronously
func (c *HTTPAIClient) Process(ctx context.Context, operation string, input map[string]interface{}) (map[string]interface{}, error) {
	payload, err := json.Marshal(aiRequest{Operation: operation, Input: input})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/ai/process", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("ai-service returned status %d", resp.StatusCode)
	}

	var result aiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("ai-service rejected %s request", operation)
	}
	return result.Result, nil
}
