package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// notifyWebhook posts a short completion summary. Callers treat any error as
// a warning only.
func notifyWebhook(ctx context.Context, url string, bundle *Bundle) error {
	payload := struct {
		Event      string          `json:"event"`
		Bundle     string          `json:"bundle"`
		Mode       string          `json:"mode"`
		Subsystems map[string]bool `json:"subsystems"`
		TotalSize  int64           `json:"total_size_bytes"`
	}{
		Event:      "backup.completed",
		Bundle:     bundle.Timestamp,
		Mode:       string(bundle.Mode),
		Subsystems: bundle.Subsystems,
		TotalSize:  bundle.TotalSize,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook answered %s", resp.Status)
	}
	return nil
}
