package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newVerifyServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_secret" {
			t.Errorf("missing bearer auth, got %q", got)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyCharge_Success(t *testing.T) {
	srv := newVerifyServer(t, http.StatusOK,
		`{"status":true,"data":{"status":"success","reference":"ref-1","amount":5000,"currency":"GHS"}}`)
	c := NewClient(srv.URL, "sk_test_secret")
	if err := c.VerifyCharge(context.Background(), "ref-1"); err != nil {
		t.Fatalf("VerifyCharge: %v", err)
	}
}

func TestVerifyCharge_FailedCharge(t *testing.T) {
	srv := newVerifyServer(t, http.StatusOK,
		`{"status":true,"data":{"status":"failed","reference":"ref-1"}}`)
	c := NewClient(srv.URL, "sk_test_secret")
	if err := c.VerifyCharge(context.Background(), "ref-1"); !errors.Is(err, ErrChargeNotSuccessful) {
		t.Fatalf("want ErrChargeNotSuccessful, got %v", err)
	}
}

func TestVerifyCharge_CurrencyMismatch(t *testing.T) {
	srv := newVerifyServer(t, http.StatusOK,
		`{"status":true,"data":{"status":"success","reference":"ref-1","amount":5000,"currency":"NGN"}}`)
	c := NewClient(srv.URL, "sk_test_secret").RequireCurrency("GHS")
	if err := c.VerifyCharge(context.Background(), "ref-1"); !errors.Is(err, ErrChargeNotSuccessful) {
		t.Fatalf("want ErrChargeNotSuccessful, got %v", err)
	}

	// Matching currency passes.
	srv2 := newVerifyServer(t, http.StatusOK,
		`{"status":true,"data":{"status":"success","reference":"ref-1","amount":5000,"currency":"GHS"}}`)
	c2 := NewClient(srv2.URL, "sk_test_secret").RequireCurrency("GHS")
	if err := c2.VerifyCharge(context.Background(), "ref-1"); err != nil {
		t.Fatalf("VerifyCharge: %v", err)
	}
}

func TestVerifyCharge_UnknownReference(t *testing.T) {
	srv := newVerifyServer(t, http.StatusNotFound, `{"status":false}`)
	c := NewClient(srv.URL, "sk_test_secret")
	if err := c.VerifyCharge(context.Background(), "nope"); !errors.Is(err, ErrChargeNotFound) {
		t.Fatalf("want ErrChargeNotFound, got %v", err)
	}
}

func TestVerifyCharge_GatewayDown(t *testing.T) {
	srv := newVerifyServer(t, http.StatusBadGateway, "")
	c := NewClient(srv.URL, "sk_test_secret")
	if err := c.VerifyCharge(context.Background(), "ref-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestVerifyCharge_TransportError(t *testing.T) {
	srv := newVerifyServer(t, http.StatusOK, "{}")
	srv.Close() // force a connection error
	c := NewClient(srv.URL, "sk_test_secret")
	if err := c.VerifyCharge(context.Background(), "ref-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	c := NewClient("", "sk_test_secret")
	body := []byte(`{"event":"charge.success","data":{"reference":"ref-1","status":"success"}}`)

	mac := hmac.New(sha512.New, []byte("sk_test_secret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	if !c.VerifySignature(body, sig) {
		t.Fatal("valid signature rejected")
	}
	if c.VerifySignature(body, "deadbeef") {
		t.Fatal("forged signature accepted")
	}
	if c.VerifySignature(body, "") {
		t.Fatal("empty signature accepted")
	}
}

func TestParseWebhook(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"event":"charge.success","data":{"reference":"ref-9","status":"success"}}`))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if ev.Event != "charge.success" || ev.Data.Reference != "ref-9" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if _, err := ParseWebhook([]byte(`{not-json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
