package httpapi

import (
	"testing"
	"time"

	"warungpos/internal/domain"
)

func TestIssueAndParseTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("test-secret-test-secret-test1234", time.Hour)

	resp, err := auth.IssueToken(&domain.UserAccount{Username: "cashier", Role: "cashier"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if resp.AccessToken == "" || resp.Role != "cashier" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if actor.Username != "cashier" || actor.Role != "cashier" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	issuer := NewAuthManager("secret-one-secret-one-secret-one", time.Hour)
	verifier := NewAuthManager("secret-two-secret-two-secret-two", time.Hour)

	resp, err := issuer.IssueToken(&domain.UserAccount{Username: "admin", Role: "admin"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	auth := NewAuthManager("test-secret-test-secret-test1234", time.Hour)

	resp, err := auth.IssueToken(&domain.UserAccount{Username: "cashier", Role: "cashier"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := auth.ParseToken(resp.AccessToken + "x"); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}
	if _, err := auth.ParseToken("not.a.token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}
