package apierr

import (
	"fmt"
	"net/http"
	"testing"
)

func TestHelpers_StatusAndCode(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
		code   string
		msg    string
	}{
		{BadRequest("invalid_envelope", "missing %s", "Type"), http.StatusBadRequest, "invalid_envelope", "missing Type"},
		{Unauthorized("invalid_signature", "bad"), http.StatusUnauthorized, "invalid_signature", "bad"},
		{Forbidden("unauthorized_bucket", "Unauthorized S3 bucket: %s", "b"), http.StatusForbidden, "unauthorized_bucket", "Unauthorized S3 bucket: b"},
		{Internal("allowlist_unconfigured", "%s is not set", "AWS_RESOURCE_CONFIG"), http.StatusInternalServerError, "allowlist_unconfigured", "AWS_RESOURCE_CONFIG is not set"},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("handle: %w", tc.err)
		if got := StatusOf(wrapped); got != tc.status {
			t.Fatalf("%s: status=%d want=%d", tc.code, got, tc.status)
		}
		if got := CodeOf(wrapped); got != tc.code {
			t.Fatalf("code=%q want=%q", got, tc.code)
		}
		if tc.err.Error() != tc.msg {
			t.Fatalf("message=%q want=%q", tc.err.Error(), tc.msg)
		}
	}
}

func TestStatusOf_PlainError(t *testing.T) {
	if StatusOf(fmt.Errorf("boom")) != 0 || CodeOf(fmt.Errorf("boom")) != "" {
		t.Fatalf("plain errors carry no status or code")
	}
}

func TestError_FallbackMessages(t *testing.T) {
	var nilErr *Error
	if nilErr.Error() != "" {
		t.Fatalf("nil error message should be empty")
	}
	if got := (&Error{Code: "x"}).Error(); got != "x" {
		t.Fatalf("code fallback: %q", got)
	}
	if got := (&Error{Status: 502}).Error(); got != "api error (502)" {
		t.Fatalf("status fallback: %q", got)
	}
}
