package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPProfileSyncer asks an external profile service to refresh a user's
// profile after a session. Retries are the service's problem, not ours.
type HTTPProfileSyncer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProfileSyncer(baseURL string) *HTTPProfileSyncer {
	return &HTTPProfileSyncer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Second * 10},
	}
}

func (s *HTTPProfileSyncer) SyncProfile(ctx context.Context, userID string) error {
	endpoint := fmt.Sprintf("%s/profiles/%s/sync", s.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)

	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)

	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("relay: profile sync for user %s failed with status: %d", userID, resp.StatusCode)
	}

	return nil
}

// NilProfileSyncer is used when no profile service is configured.
type NilProfileSyncer struct{}

func (NilProfileSyncer) SyncProfile(ctx context.Context, userID string) error {
	logrus.Debugf("Profile sync skipped for user: %s (no profile service configured)", userID)
	return nil
}
