package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// MeasureBandwidth downloads DownloadBytes and uploads UploadBytes, timing
// each transfer. The whole run is bounded by BandwidthTimeout.
func (r *Real) MeasureBandwidth(ctx context.Context) (Bandwidth, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.BandwidthTimeout)
	defer cancel()

	out := Bandwidth{Server: hostOf(r.opts.DownloadURL)}

	down, err := r.download(ctx)
	if err != nil {
		return out, fmt.Errorf("probe: download: %w", err)
	}
	up, err := r.upload(ctx)
	if err != nil {
		return out, fmt.Errorf("probe: upload: %w", err)
	}
	out.DownloadMbps = down
	out.UploadMbps = up
	return out, nil
}

func (r *Real) download(ctx context.Context) (float64, error) {
	u, err := url.Parse(r.opts.DownloadURL)
	if err != nil {
		return 0, err
	}
	q := u.Query()
	q.Set("bytes", strconv.FormatInt(r.opts.DownloadBytes, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, timeoutOr(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, timeoutOr(ctx, err)
	}
	return mbps(n, time.Since(start)), nil
}

func (r *Real) upload(ctx context.Context) (float64, error) {
	payload := make([]byte, r.opts.UploadBytes)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.UploadURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, timeoutOr(ctx, err)
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return mbps(int64(len(payload)), time.Since(start)), nil
}

// mbps converts n bytes over d to megabits per second.
func mbps(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) * 8 / d.Seconds() / 1e6
}

// timeoutOr maps a context deadline to ErrTimeout and passes anything else
// through.
func timeoutOr(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	return err
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Host
}
