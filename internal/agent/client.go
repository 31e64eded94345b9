// Package agent is the HTTP adapter for the external analysis service. It
// exposes the two capabilities the services layer consumes: image analysis
// (multipart upload returning a structured detection) and plain-text
// conversational replies.
//
// The adapter performs exactly one attempt per call with a bounded timeout.
// Retry policy, fallbacks, and rollback are the callers' concern. A response
// that parses but lacks the required structure is reported as
// ErrMalformedResponse, which callers classify the same as any other
// service failure.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/visionary-ai/go-report-backend/internal/domain"
)

// ErrMalformedResponse indicates the analysis service answered 200 but the
// body did not carry the expected structure.
var ErrMalformedResponse = errors.New("malformed analysis response")

// Client calls the analysis service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client for the given base URL with a per-call timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// supervisorResponse mirrors the analysis endpoint's envelope. The generated
// form arrives as a JSON string inside the envelope, not as a nested object.
type supervisorResponse struct {
	DetectionResult *struct {
		Item        string `json:"item"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
		Type        string `json:"type"`
	} `json:"detection_result"`
	FormResponse *struct {
		GeneratedForm string `json:"generated_form"`
	} `json:"form_response"`
}

// Analyze submits image bytes for analysis and returns the detection.
func (c *Client) Analyze(ctx context.Context, userID string, data []byte, filename string) (*domain.Detection, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.WriteField("user", userID); err != nil {
		return nil, fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/supervisor", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("analysis request: unexpected status %d", resp.StatusCode)
	}

	var env supervisorResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.DetectionResult == nil || env.FormResponse == nil {
		return nil, fmt.Errorf("%w: missing detection_result or form_response", ErrMalformedResponse)
	}

	det := &domain.Detection{
		Item:        env.DetectionResult.Item,
		Description: env.DetectionResult.Description,
		Priority:    env.DetectionResult.Priority,
		Type:        env.DetectionResult.Type,
	}
	if raw := strings.TrimSpace(env.FormResponse.GeneratedForm); raw != "" {
		if err := json.Unmarshal([]byte(raw), &det.Form); err != nil {
			// A present but unparseable form means the service contract broke.
			return nil, fmt.Errorf("%w: generated_form: %v", ErrMalformedResponse, err)
		}
	}
	zerolog.Ctx(ctx).Debug().
		Str("item", det.Item).
		Str("priority", det.Priority).
		Msg("analysis completed")
	return det, nil
}

// chatRequest and chatResponse mirror the conversational endpoint.
type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// ReplyToText asks the service for a conversational reply to a user message.
func (c *Client) ReplyToText(ctx context.Context, userID, text string) (string, error) {
	payload, err := json.Marshal(chatRequest{UserID: userID, Message: text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat request: unexpected status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("chat request: decode: %w", err)
	}
	return out.Reply, nil
}
