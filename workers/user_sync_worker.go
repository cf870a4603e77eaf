// workers/user_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"gameplay-rewards-system/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MirroredUserFromProfile matches the JSON response from the identity service.
type MirroredUserFromProfile struct {
	ID                 string    `json:"id"`
	ExternalID         string    `json:"external_id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	SubscriptionStatus string    `json:"subscription_status"`
	AccountStatus      string    `json:"account_status"`
	AccountCreatedAt   time.Time `json:"account_created_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// GetUserChangesResponse is the top-level structure of the identity service response.
type GetUserChangesResponse struct {
	Users []MirroredUserFromProfile `json:"users"`
}

type UserSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
}

// NewUserSyncWorker requires the identity service URL and this service's token.
func NewUserSyncWorker(db *gorm.DB, identityServiceBaseURL, endpointPath, serviceToken string) *UserSyncWorker {
	return &UserSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      identityServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *UserSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting User Sync Worker (identity-service → users)…")
	go w.run(ctx)
}

func (w *UserSyncWorker) run(ctx context.Context) {
	// Initial sync (backfill if needed) - sync from the beginning of time
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial user sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Incremental syncs use the last update time from our local table
			lastSyncTime := w.getLastSyncTime()
			if err := w.syncBatch(ctx, lastSyncTime); err != nil {
				log.Printf("❌ User sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ User Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt from our local users table.
func (w *UserSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM users WHERE deleted_at IS NULL").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// syncBatch fetches user changes from the identity service and upserts the local users table.
func (w *UserSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)
	log.Printf("[SYNC] 📡 Fetching user changes from identity service since=%s", sinceStr)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base identity service URL '%s': %w", w.baseURL, err)
	}

	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		log.Printf("[SYNC] ❌ Request to %s failed: %v", finalURL, err)
		return fmt.Errorf("HTTP request to identity service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[SYNC] ❌ Identity service returned %d for %s: %s", resp.StatusCode, finalURL, string(body))
		return fmt.Errorf("identity service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response GetUserChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode identity service response: %w", err)
	}

	if len(response.Users) == 0 {
		log.Printf("[SYNC] ✅ No user changes received since %s", sinceStr)
		return nil
	}

	log.Printf("[SYNC] 📥 Processing %d user(s) from identity service…", len(response.Users))

	var upsertCount, errorCount int
	for _, remoteUser := range response.Users {
		accountCreated := remoteUser.AccountCreatedAt
		if accountCreated.IsZero() {
			accountCreated = remoteUser.CreatedAt
		}

		subscription := remoteUser.SubscriptionStatus
		if subscription == "" {
			subscription = models.SubscriptionInactive
		}

		localUser := models.User{
			ExternalUserID:     remoteUser.ExternalID,
			Username:           remoteUser.Username,
			Email:              remoteUser.Email,
			SubscriptionStatus: subscription,
			AccountCreatedAt:   accountCreated,
			IsBanned:           remoteUser.AccountStatus == "banned" || remoteUser.AccountStatus == "suspended",
		}

		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "email", "subscription_status",
				"account_created_at", "is_banned", "updated_at",
			}),
		}).Create(&localUser).Error; err != nil {
			errorCount++
			log.Printf("[SYNC] ⚠️ Failed to upsert user (external_id=%q, username=%q): %v",
				remoteUser.ExternalID, remoteUser.Username, err)
		} else {
			upsertCount++
		}
	}

	log.Printf("[SYNC] ✅ Synced %d user(s) (%d upserted, %d errors)",
		len(response.Users), upsertCount, errorCount)
	return nil
}
