package subscription

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signPayload(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyAcceptsCorrectSignature(t *testing.T) {
	v := NewSignatureVerifier("test_secret")
	sig := signPayload("test_secret", "order_123", "pay_456")
	if !v.Verify("order_123", "pay_456", sig) {
		t.Fatal("correct signature rejected")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	v := NewSignatureVerifier("test_secret")
	sig := signPayload("test_secret", "order_123", "pay_456")

	// Flip one hex character.
	tampered := []byte(sig)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	if v.Verify("order_123", "pay_456", string(tampered)) {
		t.Fatal("tampered signature accepted")
	}
}

func TestVerifyRejectsWrongPair(t *testing.T) {
	v := NewSignatureVerifier("test_secret")
	sig := signPayload("test_secret", "order_123", "pay_456")

	if v.Verify("order_999", "pay_456", sig) {
		t.Error("signature for a different order accepted")
	}
	if v.Verify("order_123", "pay_999", sig) {
		t.Error("signature for a different payment accepted")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewSignatureVerifier("test_secret")
	sig := signPayload("other_secret", "order_123", "pay_456")
	if v.Verify("order_123", "pay_456", sig) {
		t.Fatal("signature under a different secret accepted")
	}
}

func TestVerifyRejectsEmptySignature(t *testing.T) {
	v := NewSignatureVerifier("test_secret")
	if v.Verify("order_123", "pay_456", "") {
		t.Fatal("empty signature accepted")
	}
}
