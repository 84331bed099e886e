package track

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nubrick/nubrick-go/pkg/models"
)

// Sender posts one serialized batch. Implementations must be safe for
// concurrent use; the pipeline never sends two batches at once but crash
// recovery may race an explicit flush.
type Sender interface {
	Send(ctx context.Context, req models.TrackRequest) error
}

// HTTPSender posts batches to the track endpoint as JSON.
type HTTPSender struct {
	client   *http.Client
	endpoint string
}

// NewHTTPSender creates a sender for the track endpoint URL.
func NewHTTPSender(endpoint string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimSpace(endpoint),
	}
}

func (s *HTTPSender) Send(ctx context.Context, req models.TrackRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("track endpoint status %d", resp.StatusCode)
	}
	return nil
}
