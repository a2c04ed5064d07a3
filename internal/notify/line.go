package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"motionbooth/internal/domain"
	"motionbooth/internal/infra"
)

// ErrMissingAccessToken indicates the notifier was configured without a LINE
// channel access token.
var ErrMissingAccessToken = errors.New("notify: line channel access token is required")

const defaultPushURL = "https://api.line.me/v2/bot/message/push"

// LineOptions configures the LINE push notifier.
type LineOptions struct {
	AccessToken string
	PushURL     string
	HTTPClient  *http.Client
	Logger      *infra.Logger
	Timeout     time.Duration
}

// LineNotifier delivers outcome messages through the LINE Messaging API push
// endpoint. It implements domain.Notifier.
type LineNotifier struct {
	accessToken string
	pushURL     string
	httpClient  *http.Client
	logger      *infra.Logger
	timeout     time.Duration
}

type lineMessage struct {
	Type               string `json:"type"`
	Text               string `json:"text,omitempty"`
	OriginalContentURL string `json:"originalContentUrl,omitempty"`
	PreviewImageURL    string `json:"previewImageUrl,omitempty"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

// NewLineNotifier constructs a notifier. The access token may be empty; every
// delivery then fails with ErrMissingAccessToken, which callers treat as a
// retryable delivery failure.
func NewLineNotifier(opts LineOptions) *LineNotifier {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	pushURL := opts.PushURL
	if pushURL == "" {
		pushURL = defaultPushURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LineNotifier{
		accessToken: strings.TrimSpace(opts.AccessToken),
		pushURL:     pushURL,
		httpClient:  httpClient,
		logger:      opts.Logger,
		timeout:     timeout,
	}
}

var _ domain.Notifier = (*LineNotifier)(nil)

// Notify delivers a terminal outcome. Completed outcomes push the text intro
// followed by the playable video; failures push a single localized text.
func (n *LineNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	var messages []lineMessage
	switch msg.Event {
	case domain.NotifyEventCompleted:
		messages = []lineMessage{
			{Type: "text", Text: CompletedText(msg.Locale, msg.Bonus)},
			{
				Type:               "video",
				OriginalContentURL: msg.VideoURL,
				PreviewImageURL:    previewOrFallback(msg.ThumbnailURL, msg.VideoURL),
			},
		}
	case domain.NotifyEventFailed:
		messages = []lineMessage{
			{Type: "text", Text: FailedText(msg.Locale, msg.ReasonKind, msg.ErrorMessage)},
		}
	default:
		return fmt.Errorf("notify: unknown event %q", msg.Event)
	}
	return n.push(ctx, msg.OwnerID, messages)
}

// Progress sends a best-effort in-flight update.
func (n *LineNotifier) Progress(ctx context.Context, ownerID, taskID, locale string, state domain.ProviderState, attempt, budget int) error {
	return n.push(ctx, ownerID, []lineMessage{
		{Type: "text", Text: ProgressText(locale, state, attempt, budget)},
	})
}

// RecheckSummary reports the result of a manual recheck pass.
func (n *LineNotifier) RecheckSummary(ctx context.Context, ownerID, locale string, completed, stillRunning int) error {
	return n.push(ctx, ownerID, []lineMessage{
		{Type: "text", Text: SummaryText(locale, completed, stillRunning)},
	})
}

func (n *LineNotifier) push(ctx context.Context, to string, messages []lineMessage) error {
	if n.accessToken == "" {
		return ErrMissingAccessToken
	}
	body, err := json.Marshal(pushRequest{To: to, Messages: messages})
	if err != nil {
		return fmt.Errorf("notify: encode push: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.pushURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build push: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.accessToken)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if n.logger != nil {
			n.logger.Warn().Int("status", resp.StatusCode).Str("to", to).
				Str("body", strings.TrimSpace(string(raw))).Msg("notify: line push rejected")
		}
		return fmt.Errorf("notify: push rejected with status %d", resp.StatusCode)
	}
	return nil
}

// previewOrFallback returns a preview image URL; the LINE video message
// requires one, so a missing thumbnail falls back to the video URL itself.
func previewOrFallback(thumbnail, video string) string {
	if thumbnail != "" {
		return thumbnail
	}
	return video
}
