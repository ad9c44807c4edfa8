package notification

import (
	"context"
	"strings"
	"testing"
)

func TestRenderReplacesPlaceholders(t *testing.T) {
	e := NewTemplateEngine()

	subject, body, err := e.Render("subscription-expiring", map[string]string{
		"days":        "7",
		"clinic_name": "Sunrise Clinic",
		"plan":        "standard",
		"expiry_date": "2026-09-07",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if subject != "Your EMR subscription expires in 7 day(s)" {
		t.Errorf("unexpected subject: %q", subject)
	}
	if !strings.Contains(body, "Sunrise Clinic") || !strings.Contains(body, "2026-09-07") {
		t.Errorf("body missing rendered data: %q", body)
	}
	if strings.Contains(body, "{{") {
		t.Errorf("body has unrendered placeholders: %q", body)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render("no-such-template", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRenderMissingDataLeavesPlaceholder(t *testing.T) {
	e := NewTemplateEngine()
	_, body, err := e.Render("subscription-expired", map[string]string{"clinic_name": "A"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(body, "{{plan}}") {
		t.Errorf("expected unreplaced placeholder to survive, got %q", body)
	}
}

func TestRegisterTemplateOverrides(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{
		ID:      "subscription-expiring",
		Subject: "custom {{days}}",
		Body:    "b",
		Type:    TypeEmail,
	})
	subject, _, err := e.Render("subscription-expiring", map[string]string{"days": "1"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if subject != "custom 1" {
		t.Errorf("override not applied: %q", subject)
	}
}

func TestManagerSendEmail(t *testing.T) {
	email := &MockEmailSender{}
	m := NewManager(email, &MockSMSSender{}, NewTemplateEngine())

	n, err := m.SendTemplate(context.Background(), TypeEmail, "owner@clinic.test", "payment-received", map[string]string{
		"clinic_name":    "Sunrise Clinic",
		"amount":         "17999",
		"currency":       "INR",
		"plan":           "standard",
		"expiry_date":    "2027-08-31",
		"invoice_number": "INV-42",
	})
	if err != nil {
		t.Fatalf("SendTemplate failed: %v", err)
	}
	if n.Status != "sent" || n.SentAt == nil {
		t.Errorf("notification not marked sent: status=%q", n.Status)
	}

	calls := email.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(calls))
	}
	if calls[0].To != "owner@clinic.test" {
		t.Errorf("wrong recipient: %q", calls[0].To)
	}
	if !strings.Contains(calls[0].Subject, "INV-42") {
		t.Errorf("subject not rendered: %q", calls[0].Subject)
	}

	got, ok := m.Get(n.ID)
	if !ok || got.Status != "sent" {
		t.Error("notification not retrievable after send")
	}
}

func TestManagerSendFailureRecorded(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true}
	m := NewManager(email, nil, NewTemplateEngine())

	n, err := m.SendTemplate(context.Background(), TypeEmail, "x@y.test", "subscription-expired", map[string]string{})
	if err == nil {
		t.Fatal("expected send error")
	}
	if n == nil || n.Status != "failed" || n.Error == "" {
		t.Errorf("failure not recorded on notification: %+v", n)
	}
}

func TestManagerSendSMS(t *testing.T) {
	sms := &MockSMSSender{}
	m := NewManager(nil, sms, NewTemplateEngine())

	if _, err := m.SendTemplate(context.Background(), TypeSMS, "+911234567890", "subscription-expiring", map[string]string{"days": "1"}); err != nil {
		t.Fatalf("SendTemplate failed: %v", err)
	}
	if len(sms.Calls()) != 1 {
		t.Fatalf("expected 1 sms, got %d", len(sms.Calls()))
	}
}
