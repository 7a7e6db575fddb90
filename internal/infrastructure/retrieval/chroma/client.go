// Package chroma is the HTTP client for the semantic recipe store. The store
// indexes recipes as documents with flattened metadata; nested fields travel
// as JSON strings inside the metadata map.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/domain/recipe"
	"github.com/cookwise/v1/internal/ports/outbound"
	apperrors "github.com/cookwise/v1/pkg/errors"
)

// Config holds the semantic store connection settings.
type Config struct {
	BaseURL    string
	Collection string
	Timeout    time.Duration
}

// Client implements the RetrievalService interface.
type Client struct {
	baseURL    string
	collection string
	client     *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.Collection == "" {
		cfg.Collection = "recipes"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	logger.Info("Semantic store client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.String("collection", cfg.Collection))

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		collection: cfg.Collection,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("chroma-client"),
	}
}

// HealthCheck verifies the semantic store is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := c.baseURL + "/api/v1/heartbeat"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("semantic store health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("semantic store health check failed with status %d", resp.StatusCode)
	}
	return nil
}

type queryRequest struct {
	Query    string                  `json:"query"`
	NResults int                     `json:"n_results"`
	Where    outbound.MetadataFilter `json:"where,omitempty"`
}

type queryResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata"`
}

type queryResponse struct {
	Results []queryResult `json:"results"`
}

// Search runs a semantic query with an optional metadata pre-filter. Results
// come back relevance-ranked; numeric filters are best-effort server-side and
// must be re-checked by the caller.
func (c *Client) Search(ctx context.Context, query string, nResults int, filter outbound.MetadataFilter) ([]recipe.Candidate, error) {
	endpoint := fmt.Sprintf("%s/api/v1/collections/%s/query", c.baseURL, c.collection)

	body, err := json.Marshal(queryRequest{Query: query, NResults: nResults, Where: filter})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewCollaboratorUnavailableError("semantic-store", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperrors.NewCollaboratorUnavailableError("semantic-store",
			fmt.Errorf("query failed with status %d: %s", resp.StatusCode, string(respBody)))
	}

	var queryResp queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return nil, apperrors.NewCollaboratorUnavailableError("semantic-store",
			fmt.Errorf("failed to decode query response: %w", err))
	}

	candidates := make([]recipe.Candidate, 0, len(queryResp.Results))
	for _, result := range queryResp.Results {
		candidates = append(candidates, candidateFromResult(result))
	}

	c.logger.Debug("Semantic search finished",
		zap.String("query", query),
		zap.Int("requested", nResults),
		zap.Int("returned", len(candidates)))
	return candidates, nil
}

// SearchByID fetches one indexed recipe. Returns nil without error when the
// id is not indexed.
func (c *Client) SearchByID(ctx context.Context, id string) (*recipe.Candidate, error) {
	endpoint := fmt.Sprintf("%s/api/v1/collections/%s/get/%s", c.baseURL, c.collection, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create get request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewCollaboratorUnavailableError("semantic-store", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewCollaboratorUnavailableError("semantic-store",
			fmt.Errorf("get failed with status %d", resp.StatusCode))
	}

	var result queryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.NewCollaboratorUnavailableError("semantic-store",
			fmt.Errorf("failed to decode get response: %w", err))
	}

	candidate := candidateFromResult(result)
	return &candidate, nil
}

// candidateFromResult rebuilds a candidate from flattened store metadata.
// Every field is optional; anything missing stays zero and the quality gate
// downstream decides whether the candidate is usable.
func candidateFromResult(result queryResult) recipe.Candidate {
	meta := result.Metadata
	cand := recipe.Candidate{
		ID:          result.ID,
		Name:        metaString(meta, "name"),
		Description: metaString(meta, "description"),
		Servings:    int(metaFloat(meta, "servings")),
		Nutrition: recipe.Nutrition{
			Kcal:    metaFloat(meta, "calories"),
			Protein: metaFloat(meta, "protein"),
			Carbs:   metaFloat(meta, "carbs"),
			Fat:     metaFloat(meta, "fat"),
		},
	}
	if cand.Name == "" {
		cand.Name = result.Document
	}

	if tags := metaString(meta, "tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				cand.Tags = append(cand.Tags, tag)
			}
		}
	}

	// Ingredients and steps are indexed as JSON strings.
	if raw := metaString(meta, "ingredients"); raw != "" {
		var ingredients []recipe.Ingredient
		if err := json.Unmarshal([]byte(raw), &ingredients); err == nil {
			cand.Ingredients = ingredients
		}
	}
	if raw := metaString(meta, "steps"); raw != "" {
		var steps []recipe.Step
		if err := json.Unmarshal([]byte(raw), &steps); err == nil {
			cand.Steps = steps
		}
	}
	return cand
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metaFloat(meta map[string]any, key string) float64 {
	switch v := meta[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}
