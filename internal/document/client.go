// Package document talks to the external service that stamps approver signatures
// onto a request's stored document.
package document

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client implements service.Resigner over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type resignRequest struct {
	RequestType string `json:"request_type"`
	RequestID   string `json:"request_id"`
}

type resignResponse struct {
	DocumentRef string `json:"document_ref"`
}

// ResignDocument asks the service to regenerate the document and returns the new reference.
func (c *Client) ResignDocument(ctx context.Context, requestType string, requestID uuid.UUID) (string, error) {
	body, err := json.Marshal(resignRequest{RequestType: requestType, RequestID: requestID.String()})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/documents/%s/%s/resign", c.baseURL, requestType, requestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build resign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("document service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("document service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out resignResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode document service response: %w", err)
	}
	return out.DocumentRef, nil
}
