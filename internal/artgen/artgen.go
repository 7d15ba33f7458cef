// Package artgen wraps the external image-generation service. Service
// failures never cross this boundary: every call resolves to either a
// real artifact or a deterministic placeholder.
package artgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// Result is what one generation call resolves to.
type Result struct {
	URL      string
	Model    string
	Fallback bool
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Size    string
	Timeout time.Duration // per attempt
	Retries uint64
}

type Client struct {
	cfg  Config
	log  *slog.Logger
	http *http.Client
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	return &Client{
		cfg:  cfg,
		log:  log,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type generateResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate asks the service for one image. Auth, quota, timeout and
// malformed responses all collapse into the fallback after the retry
// budget runs out. The returned error is always nil; the signature
// keeps room for genuine pipeline defects in other implementations.
func (c *Client) Generate(ctx context.Context, prompt string) (Result, error) {
	backoff := retry.WithMaxRetries(c.cfg.Retries, retry.NewExponential(500*time.Millisecond))

	var url string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		u, err := c.attempt(ctx, prompt)
		if err != nil {
			return retry.RetryableError(err)
		}
		url = u
		return nil
	})
	if err != nil {
		c.log.Warn("image generation failed, using fallback", "err", err)
		return Fallback(prompt), nil
	}
	return Result{URL: url, Model: c.cfg.Model}, nil
}

func (c *Client) attempt(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		N:      1,
		Size:   c.cfg.Size,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != nil {
			return "", fmt.Errorf("generation service: %s (%d)", out.Error.Message, resp.StatusCode)
		}
		return "", fmt.Errorf("generation service: status %d", resp.StatusCode)
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return "", fmt.Errorf("generation service: empty response")
	}
	return out.Data[0].URL, nil
}

// Fallback builds the deterministic placeholder for a prompt: same
// prompt, same color, every time.
func Fallback(prompt string) Result {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	color := h.Sum32() & 0xFFFFFF
	return Result{
		URL:      fmt.Sprintf("https://placehold.co/1024x1024/%06x/ffffff?text=generation+failed", color),
		Model:    "fallback",
		Fallback: true,
	}
}
