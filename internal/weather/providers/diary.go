package providers

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// DiaryClient reads month pages of the weather diary archive.
type DiaryClient struct {
	baseURL    string
	headers    map[string]string
	userAgents []string
	httpCfg    HTTPClientConfig
	circuit    *gobreaker.CircuitBreaker
}

func NewDiaryClient(client *http.Client, baseURL string, headers map[string]string, userAgents []string) *DiaryClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "diary",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &DiaryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    headers,
		userAgents: userAgents,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

// WithBackoff replaces the retry schedule of single-page fetches.
func (c *DiaryClient) WithBackoff(b BackoffConfig) *DiaryClient {
	c.httpCfg.Backoff = b
	return c
}

// MonthURL is the page listing every day of month in year for a city code.
func (c *DiaryClient) MonthURL(code string, year int, month time.Month) string {
	return fmt.Sprintf("%s/%s/%d/%d/", c.baseURL, code, year, int(month))
}

// FetchPage downloads one page with retries and the circuit breaker.
func (c *DiaryClient) FetchPage(ctx context.Context, url string) ([]byte, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
		if len(c.userAgents) > 0 {
			req.Header.Set("User-Agent", c.userAgents[rand.IntN(len(c.userAgents))])
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}
