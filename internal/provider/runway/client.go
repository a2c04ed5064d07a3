package runway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"motionbooth/internal/domain"
	"motionbooth/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("runway: api key is required")

const (
	generatePath = "/api/v1/runway/generate"
	detailPath   = "/api/v1/runway/record-detail"
)

// Options configures the KIE.AI Runway client.
type Options struct {
	APIKey        string
	BaseURL       string
	HTTPClient    *http.Client
	Logger        *infra.Logger
	SubmitTimeout time.Duration
	StatusTimeout time.Duration
}

// Client performs HTTP calls to the KIE.AI Runway video generation API.
type Client struct {
	apiKey        string
	baseURL       string
	httpClient    *http.Client
	logger        *infra.Logger
	submitTimeout time.Duration
	statusTimeout time.Duration
}

// SubmitRequest captures the inputs for one generation submission. ImageURL
// empty means text-to-video; the two modes only differ in request shape.
type SubmitRequest struct {
	Prompt      string
	ImageURL    string
	AspectRatio string
	Duration    int
	Quality     string
}

type generateRequest struct {
	Prompt      string `json:"prompt"`
	ImageURL    string `json:"imageUrl,omitempty"`
	AspectRatio string `json:"aspectRatio"`
	Duration    int    `json:"duration"`
	Quality     string `json:"quality"`
	WaterMark   string `json:"waterMark"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type generateData struct {
	TaskID string `json:"taskId"`
}

type detailData struct {
	State     string `json:"state"`
	VideoInfo struct {
		VideoURL     string `json:"videoUrl"`
		ImageURL     string `json:"imageUrl"`
		ThumbnailURL string `json:"thumbnailUrl"`
	} `json:"videoInfo"`
	FailCode string `json:"failCode"`
	FailMsg  string `json:"failMsg"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.kie.ai"
	}
	submitTimeout := opts.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 60 * time.Second
	}
	statusTimeout := opts.StatusTimeout
	if statusTimeout <= 0 {
		statusTimeout = 30 * time.Second
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:        strings.TrimSpace(opts.APIKey),
		baseURL:       baseURL,
		httpClient:    httpClient,
		logger:        logger,
		submitTimeout: submitTimeout,
		statusTimeout: statusTimeout,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Submit sends one generation request and returns the provider task handle.
// Errors come back classified as *APIError.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Prompt) == "" && strings.TrimSpace(req.ImageURL) == "" {
		return "", errors.New("runway: prompt or image url is required")
	}
	payload := generateRequest{
		Prompt:      req.Prompt,
		ImageURL:    req.ImageURL,
		AspectRatio: req.AspectRatio,
		Duration:    req.Duration,
		Quality:     req.Quality,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("runway: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("runway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	env, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	var data generateData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("runway: decode submit response: %w", err)
	}
	if data.TaskID == "" {
		return "", &APIError{Category: CategoryProviderFailure, Message: "submit accepted but no task id returned"}
	}
	c.logger.Debug().Str("provider_task_id", data.TaskID).Msg("runway: generation submitted")
	return data.TaskID, nil
}

// Status queries one task and returns the normalized transient status. Errors
// come back classified as *APIError; a timeout is marked so the poller can
// treat it as attempt-consuming rather than terminal.
func (c *Client) Status(ctx context.Context, providerTaskID string) (domain.ProviderStatus, error) {
	if !c.HasCredentials() {
		return domain.ProviderStatus{}, ErrMissingAPIKey
	}
	if strings.TrimSpace(providerTaskID) == "" {
		return domain.ProviderStatus{}, errors.New("runway: provider task id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	endpoint := c.baseURL + detailPath + "?taskId=" + url.QueryEscape(providerTaskID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.ProviderStatus{}, fmt.Errorf("runway: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	env, err := c.do(httpReq)
	if err != nil {
		return domain.ProviderStatus{}, err
	}
	var data detailData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return domain.ProviderStatus{}, fmt.Errorf("runway: decode status response: %w", err)
	}

	state := NormalizeState(data.State)
	if state == domain.ProviderStateUnknown {
		c.logger.Warn().Str("provider_task_id", providerTaskID).Str("raw_state", data.State).
			Msg("runway: unrecognized provider state, treating as running")
	}
	// The provider labels the preview frame imageUrl; thumbnailUrl only shows
	// up on newer task records.
	thumbnail := data.VideoInfo.ThumbnailURL
	if thumbnail == "" {
		thumbnail = data.VideoInfo.ImageURL
	}
	return domain.ProviderStatus{
		State:        state,
		VideoURL:     data.VideoInfo.VideoURL,
		ThumbnailURL: thumbnail,
		ErrorCode:    data.FailCode,
		ErrorMessage: data.FailMsg,
	}, nil
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}
	if resp.StatusCode >= 300 {
		message := extractMessage(raw)
		if message == "" {
			message = strings.TrimSpace(string(raw))
		}
		return nil, classifyHTTPStatus(resp.StatusCode, message)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("runway: decode response: %w", err)
	}
	// The provider tunnels most errors through a 200 response with a non-200
	// body code.
	if env.Code != 200 {
		return nil, classifyHTTPStatus(env.Code, env.Message)
	}
	return &env, nil
}

func extractMessage(raw []byte) string {
	var detail struct {
		Message string `json:"msg"`
		AltMsg  string `json:"message"`
	}
	if err := json.Unmarshal(raw, &detail); err != nil {
		return ""
	}
	if detail.Message != "" {
		return detail.Message
	}
	return detail.AltMsg
}
