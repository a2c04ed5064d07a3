package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"motionbooth/internal/domain"
)

func TestMatchLocaleCollapsesVariants(t *testing.T) {
	cases := map[string]string{
		"zh":      "zh",
		"zh-TW":   "zh",
		"zh-Hant": "zh",
		"zh-HK":   "zh",
		"en":      "en",
		"en-US":   "en",
		"":        "zh",
		"garbage": "zh",
		"ja":      "zh", // unsupported languages use the catalog default
	}
	for locale, want := range cases {
		got := matchLocale(locale).String()
		if !strings.HasPrefix(got, want) {
			t.Fatalf("matchLocale(%q) = %q, want prefix %q", locale, got, want)
		}
	}
}

func TestFailedTextPicksReasonTemplate(t *testing.T) {
	msg := FailedText("en", "provider_failed", "raw detail")
	if !strings.Contains(msg, "failed") {
		t.Fatalf("provider_failed message = %q", msg)
	}
	if !strings.Contains(msg, "refunded") {
		t.Fatalf("failure message must mention the refund: %q", msg)
	}

	// Unknown kinds surface the persisted message verbatim.
	msg = FailedText("en", "something_new", "raw detail")
	if !strings.Contains(msg, "raw detail") {
		t.Fatalf("unknown kind should fall back to the raw message, got %q", msg)
	}

	// Quota exhaustion never charged, so no refund line.
	msg = FailedText("zh", "quota_exceeded", "")
	if strings.Contains(msg, "返还") {
		t.Fatalf("quota message must not promise a refund: %q", msg)
	}
}

// A spent poll budget must read as "may still complete, check later", never
// as a definitive failure inviting a fresh (and freshly charged) submission.
func TestGiveUpTextPointsAtRecheck(t *testing.T) {
	msg := FailedText("en", "give_up", "no result after 25 status checks")
	if strings.Contains(msg, "failed") {
		t.Fatalf("give_up must not read as a definitive failure: %q", msg)
	}
	if !strings.Contains(msg, "may still be processing") {
		t.Fatalf("give_up must say the video may still arrive: %q", msg)
	}
	if !strings.Contains(msg, "status check") {
		t.Fatalf("give_up must point at the status check: %q", msg)
	}
	if !strings.Contains(msg, "refunded") {
		t.Fatalf("give_up must mention the refund: %q", msg)
	}

	msg = FailedText("zh", "give_up", "")
	if strings.Contains(msg, "生成失败") {
		t.Fatalf("give_up must not read as a definitive failure: %q", msg)
	}
	if !strings.Contains(msg, "状态检查") {
		t.Fatalf("give_up must point at the status check: %q", msg)
	}
	if strings.Contains(msg, "请稍后再试") || strings.Contains(msg, "请稍后重试") {
		t.Fatalf("give_up must not invite resubmission: %q", msg)
	}
}

func TestNotifyCompletedPushesTextAndVideo(t *testing.T) {
	var got pushRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode push: %v", err)
		}
	}))
	defer srv.Close()

	n := NewLineNotifier(LineOptions{AccessToken: "channel-token", PushURL: srv.URL})
	err := n.Notify(context.Background(), domain.Notification{
		Event:        domain.NotifyEventCompleted,
		OwnerID:      "U123",
		VideoURL:     "https://v/out.mp4",
		ThumbnailURL: "https://v/out.jpg",
		Locale:       "zh-TW",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if auth != "Bearer channel-token" {
		t.Fatalf("authorization = %q", auth)
	}
	if got.To != "U123" {
		t.Fatalf("to = %q, want U123", got.To)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(got.Messages))
	}
	if got.Messages[0].Type != "text" || got.Messages[0].Text == "" {
		t.Fatalf("first message = %+v, want text intro", got.Messages[0])
	}
	video := got.Messages[1]
	if video.Type != "video" || video.OriginalContentURL != "https://v/out.mp4" || video.PreviewImageURL != "https://v/out.jpg" {
		t.Fatalf("video message = %+v", video)
	}
}

func TestNotifyCompletedFallsBackToVideoPreview(t *testing.T) {
	var got pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewLineNotifier(LineOptions{AccessToken: "tok", PushURL: srv.URL})
	err := n.Notify(context.Background(), domain.Notification{
		Event:    domain.NotifyEventCompleted,
		OwnerID:  "U1",
		VideoURL: "https://v/out.mp4",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.Messages[1].PreviewImageURL != "https://v/out.mp4" {
		t.Fatalf("preview = %q, want video url fallback", got.Messages[1].PreviewImageURL)
	}
}

func TestProgressRendersTaskLocale(t *testing.T) {
	var got pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewLineNotifier(LineOptions{AccessToken: "tok", PushURL: srv.URL})
	err := n.Progress(context.Background(), "U1", "task-1", "en-US", domain.ProviderStateRunning, 2, 25)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(got.Messages) != 1 || !strings.Contains(got.Messages[0].Text, "Generating") {
		t.Fatalf("progress message = %+v, want english template", got.Messages)
	}
}

func TestNotifyFailedRejectedStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid user"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewLineNotifier(LineOptions{AccessToken: "tok", PushURL: srv.URL})
	err := n.Notify(context.Background(), domain.Notification{
		Event:        domain.NotifyEventFailed,
		OwnerID:      "U1",
		ReasonKind:   "provider_failed",
		ErrorMessage: "boom",
	})
	if err == nil {
		t.Fatalf("expected error on rejected push")
	}
}

func TestNotifyWithoutTokenFails(t *testing.T) {
	n := NewLineNotifier(LineOptions{})
	err := n.Notify(context.Background(), domain.Notification{Event: domain.NotifyEventFailed, OwnerID: "U1"})
	if err != ErrMissingAccessToken {
		t.Fatalf("err = %v, want ErrMissingAccessToken", err)
	}
}
