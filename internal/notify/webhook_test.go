package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vendormatch-engine/internal/matching"
)

func TestWebhookNotifier_PostsOffer(t *testing.T) {
	var gotPath string
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier("", time.Second)
	err := n.NotifyRouted(context.Background(), matching.Offer{
		WorkspaceID: "w",
		RoutingID:   "rt1",
		VendorID:    "v1",
		NotifyURL:   srv.URL + "/offers",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if gotPath != "/offers" {
		t.Fatalf("expected /offers, got %q", gotPath)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected json content type, got %q", gotContentType)
	}
}

func TestWebhookNotifier_NonSuccessIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	if err := n.NotifyRouted(context.Background(), matching.Offer{RoutingID: "rt1"}); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}

func TestWebhookNotifier_NoURLSkipsQuietly(t *testing.T) {
	n := NewWebhookNotifier("", time.Second)
	if err := n.NotifyRouted(context.Background(), matching.Offer{RoutingID: "rt1"}); err != nil {
		t.Fatalf("expected skip without error, got %v", err)
	}
}
