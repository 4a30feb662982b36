package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
)

// SupabaseBackend is an S3Backend with Supabase-specific bucket
// lifecycle and health checks layered on top: Supabase's
// S3-compatibility layer cannot create buckets, so bucket creation
// POSTs to "/bucket" and health hits "/status" on Supabase's own REST
// endpoint.
type SupabaseBackend struct {
	*S3Backend
	restBaseURL    string
	serviceRoleKey string
	httpClient     *http.Client
}

// NewSupabase constructs a Supabase-backed Backend. Object storage
// itself still flows over Supabase's S3-compatible endpoint (reusing
// S3Backend); only bucket lifecycle and health are overridden.
func NewSupabase(cfg Config, prefix string) (*SupabaseBackend, error) {
	s3be, err := NewS3(context.Background(), cfg, prefix)
	if err != nil {
		return nil, err
	}
	return &SupabaseBackend{
		S3Backend:      s3be,
		restBaseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		serviceRoleKey: cfg.ServiceRoleKey,
		httpClient:     http.DefaultClient,
	}, nil
}

func (b *SupabaseBackend) restRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, faults.Internalf(err, "marshal supabase request")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.restBaseURL+path, reader)
	if err != nil {
		return nil, faults.Internalf(err, "build supabase request")
	}
	req.Header.Set("Content-Type", "application/json")
	if b.serviceRoleKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.serviceRoleKey)
		req.Header.Set("apikey", b.serviceRoleKey)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, faults.Transientf("supabase request %s %s: %v", method, path, err)
	}
	return resp, nil
}

// EnsureBucket creates the bucket via Supabase's storage REST API
// (POST /bucket), swallowing a response that indicates the bucket
// already exists.
func (b *SupabaseBackend) EnsureBucket(ctx context.Context) error {
	resp, err := b.restRequest(ctx, http.MethodPost, "/bucket", map[string]any{
		"id":     b.bucket,
		"name":   b.bucket,
		"public": false,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}
	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusBadRequest {
		// Supabase returns 400 "Duplicate" when the bucket exists.
		return nil
	}
	return faults.Internalf(nil, "supabase ensure bucket: status %d", resp.StatusCode)
}

func (b *SupabaseBackend) BucketExists(ctx context.Context) (bool, error) {
	resp, err := b.restRequest(ctx, http.MethodGet, fmt.Sprintf("/bucket/%s", b.bucket), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, faults.Internalf(nil, "supabase bucket exists: status %d", resp.StatusCode)
	}
}

// IsHealthy hits Supabase storage's "/status" endpoint rather than
// checking the bucket, since Supabase's own status probe is cheaper
// and independent of any one bucket.
func (b *SupabaseBackend) IsHealthy(ctx context.Context) error {
	resp, err := b.restRequest(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return faults.Internalf(nil, "supabase status: %d", resp.StatusCode)
	}
	return nil
}
