// Package netx downloads objects through presigned URLs.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/socialsync/internal/common"
)

// MaxDownload caps a single download.
const MaxDownload = 64 << 20

var client = &http.Client{}

// Download GETs url and returns the body. Transport failures and 5xx map to
// common.ErrUnavailable, 404 to common.ErrNotFound.
func Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	if len(body) > MaxDownload {
		return nil, fmt.Errorf("object larger than %d bytes: %w", MaxDownload, common.ErrQuotaExceeded)
	}
	return body, nil
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", resp.Status, common.ErrNotFound)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", resp.Status, common.ErrForbidden)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s: %w", resp.Status, common.ErrUnavailable)
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("transfer failed: %s; body: %s", resp.Status, string(b))
}
