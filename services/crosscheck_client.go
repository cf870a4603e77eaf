// services/crosscheck_client.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// CrossCheckClient queries the authoritative third-party gameplay-data API
// for a match record. Lookups have a bounded timeout; callers treat any
// failure as "unverified", never as a hard error.
type CrossCheckClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// CrossCheckResult is the authoritative record for a claimed match.
type CrossCheckResult struct {
	Found     bool      `json:"found"`
	Result    string    `json:"result"`
	Placement int       `json:"placement"`
	Score     int64     `json:"score"`
	EndedAt   time.Time `json:"ended_at"`
}

func NewCrossCheckClient(baseURL, token string) *CrossCheckClient {
	return &CrossCheckClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// LookupMatch fetches the third-party record for (gameType, matchID, player).
func (c *CrossCheckClient) LookupMatch(ctx context.Context, gameType, externalMatchID, externalUserID string) (*CrossCheckResult, error) {
	u, err := url.Parse(fmt.Sprintf("%s/v1/matches/%s/%s", c.BaseURL, url.PathEscape(gameType), url.PathEscape(externalMatchID)))
	if err != nil {
		return nil, fmt.Errorf("invalid cross-check URL: %w", err)
	}
	q := u.Query()
	q.Set("player", externalUserID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &CrossCheckResult{Found: false}, nil
	}

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Printf("CrossCheck lookup returned %d for match %s", resp.StatusCode, externalMatchID)
		return nil, fmt.Errorf("cross-check lookup failed: %d", resp.StatusCode)
	}

	var out CrossCheckResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	out.Found = true
	return &out, nil
}
