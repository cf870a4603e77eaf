// workers/linked_account_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"gameplay-rewards-system/models"
	"gameplay-rewards-system/services"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteLinkedAccount matches the identity service's linked-accounts payload.
type RemoteLinkedAccount struct {
	ExternalUserID    string     `json:"external_user_id"`
	Provider          string     `json:"provider"`
	ProviderAccountID string     `json:"provider_account_id"`
	Verified          bool       `json:"verified"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// LinkedAccountSyncClient polls the identity service for account-link changes.
type LinkedAccountSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
	Trust      *services.TrustService
}

func NewLinkedAccountSyncClient(db *gorm.DB, trust *services.TrustService) *LinkedAccountSyncClient {
	baseURL := os.Getenv("IDENTITY_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("IDENTITY_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("REWARDS_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("REWARDS_SERVICE_TOKEN environment variable is required for linked-account sync")
	}

	return &LinkedAccountSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		Trust:   trust,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *LinkedAccountSyncClient) GetChangedLinks(ctx context.Context, since time.Time) ([]RemoteLinkedAccount, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/linked-accounts", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call identity service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("identity service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Links []RemoteLinkedAccount `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode identity service response: %w", err)
	}

	return response.Links, nil
}

// PollLinkedAccounts mirrors identity-service account links into linked_accounts
// and records a trust event the first time a link turns verified.
func PollLinkedAccounts(ctx context.Context, client *LinkedAccountSyncClient, pollInterval time.Duration) {
	log.Println("Starting linked-account polling (DB-backed)...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Linked-account polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			links, err := client.GetChangedLinks(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling linked accounts: %v", err)
				continue
			}

			count := len(links)
			if count == 0 {
				continue
			}
			log.Printf("📥 Received %d linked-account change(s) from identity service.", count)

			failed := false
			for _, remote := range links {
				if err := client.upsertLink(remote); err != nil {
					log.Printf("❌ Failed to upsert linked account (external_user=%q, provider=%q): %v",
						remote.ExternalUserID, remote.Provider, err)
					failed = true
				}
			}
			if failed {
				// Do NOT advance lastSyncTime — retry same window next tick
				continue
			}

			lastSyncTime = logTime
			log.Printf("✅ Upserted %d linked account(s).", count)
		}
	}
}

func (c *LinkedAccountSyncClient) upsertLink(remote RemoteLinkedAccount) error {
	var user models.User
	if err := c.DB.Where("external_user_id = ?", remote.ExternalUserID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			// Mirror row not synced yet; the next poll window retries.
			return fmt.Errorf("no local user for external id %s", remote.ExternalUserID)
		}
		return err
	}

	var existing models.LinkedAccount
	wasVerified := false
	err := c.DB.Where("user_id = ? AND provider = ?", user.ID, remote.Provider).First(&existing).Error
	if err == nil {
		wasVerified = existing.Verified
	} else if err != gorm.ErrRecordNotFound {
		return err
	}

	link := models.LinkedAccount{
		UserID:            user.ID,
		Provider:          remote.Provider,
		ProviderAccountID: remote.ProviderAccountID,
		Verified:          remote.Verified,
		VerifiedAt:        remote.VerifiedAt,
	}
	if err := c.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_account_id", "verified", "verified_at", "updated_at",
		}),
	}).Create(&link).Error; err != nil {
		return err
	}

	// Newly verified link: narrate the trust event and recompute.
	if remote.Verified && !wasVerified {
		if _, err := c.Trust.LogEvent(user.ID, models.TrustEventIdentityLinked, 30,
			fmt.Sprintf("verified %s account link", remote.Provider),
			"linked_account", remote.Provider+":"+remote.ProviderAccountID); err != nil {
			log.Printf("⚠️ Failed to record identity-linked trust event for user %s: %v", user.ID, err)
		}
	}
	return nil
}
