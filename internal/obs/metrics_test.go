package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/cases":                     "/v1/cases",
		"/v1/cases/01J5KQ":              "/v1/cases/:id",
		"/v1/cases/01J5KQ/documents":    "/v1/cases/:id/documents",
		"/v1/cases/01J5KQ/submit":       "/v1/cases/:id/submit",
		"/v1/cases/01J5KQ/audit":        "/v1/cases/:id/audit",
		"/v1/cases/01J5KQ/validation":   "/v1/cases/:id/validation",
		"/v1/cases/events":              "/v1/cases/events",
		"/v1/cases/abc/unknown":         "/v1/cases/abc/unknown",
		"/v1/cases/abc/audit?limit=10":  "/v1/cases/:id/audit",
		"/v1/auth/login":                "/v1/auth/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
