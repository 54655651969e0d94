package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIsValidEthAddress(t *testing.T) {
	valid := []string{
		"0x52908400098527886E0F7030069857D2E4169EE7",
		"0x0000000000000000000000000000000000000000",
	}
	invalid := []string{
		"",
		"0x123",
		"52908400098527886E0F7030069857D2E4169EE7",
		"0xZZ908400098527886E0F7030069857D2E4169EE7",
	}
	for _, addr := range valid {
		if !IsValidEthAddress(addr) {
			t.Errorf("IsValidEthAddress(%q) = false, want true", addr)
		}
	}
	for _, addr := range invalid {
		if IsValidEthAddress(addr) {
			t.Errorf("IsValidEthAddress(%q) = true, want false", addr)
		}
	}
}

func TestIsValidID(t *testing.T) {
	valid := []string{"default_rate_limit", "evt_abc123", "a", "policy-1"}
	invalid := []string{"", "has space", "semi;colon", strings.Repeat("x", 65)}
	for _, id := range valid {
		if !IsValidID(id) {
			t.Errorf("IsValidID(%q) = false, want true", id)
		}
	}
	for _, id := range invalid {
		if IsValidID(id) {
			t.Errorf("IsValidID(%q) = true, want false", id)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("SanitizeString = %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("SanitizeString length cap = %q", got)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	errs := Validate(
		Required("agent_id", ""),
		Required("operation_type", "trade"),
		ValidID("policy_id", "bad id"),
	)
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2", len(errs))
	}
	if errs.Error() == "" {
		t.Error("Error() should describe the first failure")
	}
}

func TestIDParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/policies/:id", IDParamMiddleware(), func(c *gin.Context) {
		c.String(200, "ok")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/policies/default_rate_limit", nil))
	if w.Code != 200 {
		t.Errorf("valid id status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/policies/bad%3Bid", nil))
	if w.Code != 400 {
		t.Errorf("invalid id status = %d", w.Code)
	}
}
