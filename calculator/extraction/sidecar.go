package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrSidecarUnavailable marks any sidecar failure: unreachable, timed out,
// or a malformed response. Callers fall back to local extraction and never
// surface this to the end user.
var ErrSidecarUnavailable = errors.New("extraction sidecar unavailable")

const defaultSidecarTimeout = 10 * time.Second

type tokenSource interface {
	CreateServiceJwt(scope string, exp time.Duration) (string, error)
}

// SidecarClient calls the optional ML extraction sidecar. The sidecar
// receives a short-lived service token with each request, which it can
// present back when exporting feedback pairs for training.
type SidecarClient struct {
	baseUrl string
	tokens  tokenSource
	client  *http.Client
}

func NewSidecarClient(baseUrl string, tokens tokenSource) *SidecarClient {
	return &SidecarClient{
		baseUrl: baseUrl,
		tokens:  tokens,
		client:  &http.Client{Timeout: defaultSidecarTimeout},
	}
}

// Enabled reports whether a sidecar endpoint is configured at all.
func (c *SidecarClient) Enabled() bool {
	return c != nil && c.baseUrl != ""
}

type sidecarExtractRequest struct {
	Pdf string `json:"pdf"`
}

type sidecarExtractResponse struct {
	Success       bool   `json:"success"`
	ExtractedData Fields `json:"extractedData"`
	RawText       string `json:"rawText"`
}

type Result struct {
	Fields  Fields
	RawText string
}

func (c *SidecarClient) Extract(ctx context.Context, document []byte) (Result, error) {
	if !c.Enabled() {
		return Result{}, ErrSidecarUnavailable
	}

	body := new(bytes.Buffer)
	err := json.NewEncoder(body).Encode(sidecarExtractRequest{Pdf: base64.StdEncoding.EncodeToString(document)})
	if err != nil {
		return Result{}, fmt.Errorf("error encoding sidecar request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseUrl+"/extract", body)
	if err != nil {
		return Result{}, fmt.Errorf("error creating sidecar request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.CreateServiceJwt("extraction", defaultSidecarTimeout)
		if err != nil {
			return Result{}, err
		}
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %v", token))
	}

	res, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSidecarUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: sidecar returned status %d", ErrSidecarUnavailable, res.StatusCode)
	}

	var parsed sidecarExtractResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("%w: error parsing sidecar response: %v", ErrSidecarUnavailable, err)
	}
	if !parsed.Success {
		return Result{}, fmt.Errorf("%w: sidecar reported failure", ErrSidecarUnavailable)
	}

	return Result{Fields: parsed.ExtractedData, RawText: parsed.RawText}, nil
}
