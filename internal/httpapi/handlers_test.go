package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"kycdesk.org/internal/auth"
	"kycdesk.org/internal/cases"
	"kycdesk.org/internal/extract"
	"kycdesk.org/internal/risk"
	"kycdesk.org/internal/stream"
)

const panDoc = `INCOME TAX DEPARTMENT
Name: John Doe
Date of Birth: 1990-06-15
PAN: ABCPK1234F
`

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("KYCDESK_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	events := stream.New()
	caseSvc := cases.NewService(cases.NewInMemory(), extract.NewStatic(), risk.NewScorer(), cases.WithEvents(events))
	api := New(Config{
		Version: "test",
		Auth:    auth.NewService(auth.NewMemoryStore()),
		Cases:   caseSvc,
		Events:  events,
	})
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body io.Reader, contentType, token string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	return c.do(http.MethodPost, path, bytes.NewReader(payload), "application/json", token)
}

func (c *apiClient) get(path string, params url.Values, token string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, "", token)
}

func (c *apiClient) upload(caseID, docType, content, token string) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("doc_type", docType); err != nil {
		c.t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile("file", docType+".txt")
	if err != nil {
		c.t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		c.t.Fatalf("write file: %v", err)
	}
	mw.Close()
	return c.do(http.MethodPost, "/v1/cases/"+caseID+"/documents", &buf, mw.FormDataContentType(), token)
}

func (c *apiClient) registerAndLogin(email, role string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/register", map[string]any{
		"email": email, "password": "s3cret-pass", "full_name": "Test " + role, "role": role,
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register status: %d", resp.StatusCode)
	}

	resp = c.post("/v1/auth/login", map[string]any{"email": email, "password": "s3cret-pass"}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status: %d", resp.StatusCode)
	}
	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.t.Fatalf("decode login: %v", err)
	}
	return out.Token
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func errorKind(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := decodeBody[map[string]any](t, resp)
	kind, _ := body["kind"].(string)
	return kind
}

func (c *apiClient) createCase(token string, profile map[string]any) string {
	c.t.Helper()
	resp := c.post("/v1/cases", map[string]any{"profile": profile}, token)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("create case status: %d", resp.StatusCode)
	}
	created := decodeBody[cases.Case](c.t, resp)
	return created.ID
}

var johnDoe = map[string]any{"name": "John Doe", "dob": "1990-06-15", "pan": "ABCPK1234F"}

func TestHealthEndpointsArePublic(t *testing.T) {
	c := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info", "/metrics"} {
		resp := c.get(path, nil, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
	}
}

func TestConfigRateBurstOverride(t *testing.T) {
	if got := New(Config{}).rateBurst; got != 20 {
		t.Fatalf("default burst = %d, want 20", got)
	}
	if got := New(Config{RateBurst: 3}).rateBurst; got != 3 {
		t.Fatalf("burst = %d, want 3", got)
	}
}

func TestAuthRequiredForCases(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/v1/cases", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if kind := errorKind(t, resp); kind != "unauthorized" {
		t.Fatalf("kind = %q", kind)
	}

	resp = c.get("/v1/cases", nil, "garbage-token")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRegisterLoginMe(t *testing.T) {
	c := newTestAPI(t)
	token := c.registerAndLogin("maker@example.com", "maker")

	resp := c.get("/v1/auth/me", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	me := decodeBody[auth.User](t, resp)
	if me.Email != "maker@example.com" || me.Role != auth.RoleMaker {
		t.Fatalf("unexpected me: %+v", me)
	}

	resp = c.post("/v1/auth/register", map[string]any{
		"email": "maker@example.com", "password": "s3cret-pass", "full_name": "Again", "role": "maker",
	}, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTokenRoleSurvivesRoundTrip(t *testing.T) {
	c := newTestAPI(t)
	makerToken := c.registerAndLogin("maker@example.com", "maker")
	checkerToken := c.registerAndLogin("checker@example.com", "checker")

	id := c.createCase(makerToken, johnDoe)

	resp := c.get("/v1/auth/me", nil, checkerToken)
	me := decodeBody[auth.User](t, resp)
	if me.Role != auth.RoleChecker {
		t.Fatalf("role = %q, want %q", me.Role, auth.RoleChecker)
	}

	// A checker may read any case; a maker-roled identity would get 403
	// here. This only works if the bearer token's role reaches the
	// workflow authorization intact.
	resp = c.get("/v1/cases/"+id, nil, checkerToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checker get status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[cases.Case](t, resp)
	if got.ID != id {
		t.Fatalf("case id = %q, want %q", got.ID, id)
	}
}

func TestCaseLifecycleOverHTTP(t *testing.T) {
	c := newTestAPI(t)
	makerToken := c.registerAndLogin("maker@example.com", "maker")
	checkerToken := c.registerAndLogin("checker@example.com", "checker")

	id := c.createCase(makerToken, johnDoe)

	resp := c.upload(id, "pan", panDoc, makerToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	up := decodeBody[uploadResponse](t, resp)
	if up.OCRConfidence == 0 {
		t.Fatal("missing ocr confidence")
	}
	if up.DataMatchScore == nil || *up.DataMatchScore != 1.0 {
		t.Fatalf("data match score = %v, want 1.0", up.DataMatchScore)
	}
	if up.RiskAssessment == nil || !up.RiskAssessment.Valid {
		t.Fatalf("unexpected assessment: %+v", up.RiskAssessment)
	}

	resp = c.post("/v1/cases/"+id+"/submit", nil, makerToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	submitted := decodeBody[cases.Case](t, resp)
	if submitted.Status != cases.StatusAIReviewed {
		t.Fatalf("status = %s, want AI_REVIEWED", submitted.Status)
	}

	resp = c.post("/v1/cases/"+id+"/approve", map[string]any{"comments": "verified"}, checkerToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d", resp.StatusCode)
	}
	approved := decodeBody[cases.Case](t, resp)
	if approved.Status != cases.StatusApproved {
		t.Fatalf("status = %s, want CHECKER_APPROVED", approved.Status)
	}

	resp = c.get("/v1/cases/"+id+"/audit", nil, makerToken)
	trail := decodeBody[map[string][]cases.AuditEntry](t, resp)
	if len(trail["audit"]) != 5 {
		t.Fatalf("audit length = %d, want 5", len(trail["audit"]))
	}
}

func TestSubmitWithoutDocumentsConflicts(t *testing.T) {
	c := newTestAPI(t)
	makerToken := c.registerAndLogin("maker@example.com", "maker")
	id := c.createCase(makerToken, johnDoe)

	resp := c.post("/v1/cases/"+id+"/submit", nil, makerToken)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if kind := errorKind(t, resp); kind != "precondition_error" {
		t.Fatalf("kind = %q", kind)
	}
}

func TestOwnerCannotApproveOwnCase(t *testing.T) {
	c := newTestAPI(t)
	makerToken := c.registerAndLogin("maker@example.com", "maker")
	id := c.createCase(makerToken, johnDoe)
	c.upload(id, "pan", panDoc, makerToken).Body.Close()
	c.post("/v1/cases/"+id+"/submit", nil, makerToken).Body.Close()

	// A checker token carrying the creator's own user id.
	resp := c.get("/v1/auth/me", nil, makerToken)
	me := decodeBody[auth.User](t, resp)
	ownerAsChecker, err := auth.GenerateToken(me.ID, me.FullName, auth.RoleChecker, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	resp = c.post("/v1/cases/"+id+"/approve", nil, ownerAsChecker)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if kind := errorKind(t, resp); kind != "permission_error" {
		t.Fatalf("kind = %q", kind)
	}
}

func TestReturnToMakerRequiresComments(t *testing.T) {
	c := newTestAPI(t)
	makerToken := c.registerAndLogin("maker@example.com", "maker")
	checkerToken := c.registerAndLogin("checker@example.com", "checker")
	id := c.createCase(makerToken, johnDoe)
	c.upload(id, "pan", panDoc, makerToken).Body.Close()
	c.post("/v1/cases/"+id+"/submit", nil, makerToken).Body.Close()

	resp := c.post("/v1/cases/"+id+"/return", nil, checkerToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/v1/cases/"+id+"/return", map[string]any{"comments": "needs a clearer scan"}, checkerToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	returned := decodeBody[cases.Case](t, resp)
	if returned.Status != cases.StatusReturned {
		t.Fatalf("status = %s", returned.Status)
	}
	last := returned.Audit[len(returned.Audit)-1]
	if last.Comments != "needs a clearer scan" {
		t.Fatalf("comments = %q", last.Comments)
	}
}

func TestUploadErrors(t *testing.T) {
	c := newTestAPI(t)
	makerToken := c.registerAndLogin("maker@example.com", "maker")
	id := c.createCase(makerToken, johnDoe)

	resp := c.upload(id, "selfie", panDoc, makerToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("doc type status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.upload(id, "pan", "tiny", makerToken)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("quality status = %d, want 422", resp.StatusCode)
	}
	if kind := errorKind(t, resp); kind != "quality_rejection" {
		t.Fatalf("kind = %q", kind)
	}
}

func TestListAndStatusFilter(t *testing.T) {
	c := newTestAPI(t)
	makerToken := c.registerAndLogin("maker@example.com", "maker")
	checkerToken := c.registerAndLogin("checker@example.com", "checker")
	c.createCase(makerToken, johnDoe)

	resp := c.get("/v1/cases", url.Values{"status": []string{"DRAFT"}}, checkerToken)
	listed := decodeBody[map[string][]cases.Case](t, resp)
	if len(listed["cases"]) != 1 {
		t.Fatalf("list length = %d, want 1", len(listed["cases"]))
	}

	resp = c.get("/v1/cases", url.Values{"status": []string{"BOGUS"}}, checkerToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDeleteCase(t *testing.T) {
	c := newTestAPI(t)
	makerToken := c.registerAndLogin("maker@example.com", "maker")
	id := c.createCase(makerToken, johnDoe)

	resp := c.do(http.MethodDelete, "/v1/cases/"+id, nil, "", makerToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/v1/cases/"+id, nil, makerToken)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestValidationEndpoint(t *testing.T) {
	c := newTestAPI(t)
	makerToken := c.registerAndLogin("maker@example.com", "maker")
	id := c.createCase(makerToken, johnDoe)
	c.upload(id, "pan", panDoc, makerToken).Body.Close()

	resp := c.get("/v1/cases/"+id+"/validation", nil, makerToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validation status = %d", resp.StatusCode)
	}
	rep := decodeBody[cases.ValidationReport](t, resp)
	if _, ok := rep.Results["pan"]; !ok {
		t.Fatalf("missing pan result: %+v", rep.Results)
	}
	if rep.Report == "" {
		t.Fatal("empty plain-text report")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	c := newTestAPI(t)
	req, _ := http.NewRequest(http.MethodGet, c.baseURL+"/v1/cases", nil)
	req.Header.Set("X-Request-Id", "rid-123")
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if got := resp.Header.Get("X-Request-Id"); got != "rid-123" {
		t.Fatalf("request id header = %q", got)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["request_id"] != "rid-123" {
		t.Fatalf("request id not in error payload: %v", body)
	}
}

func TestRateLimitKicksIn(t *testing.T) {
	t.Setenv("KYCDESK_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	api := New(Config{
		Version: "test",
		Auth:    auth.NewService(auth.NewMemoryStore()),
		Cases:   cases.NewService(cases.NewInMemory(), extract.NewStatic(), risk.NewScorer()),
	})
	api.rateBurst = 1
	api.ratePerSec = 1
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	limited := false
	for i := 0; i < 5; i++ {
		resp, err := srv.Client().Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
		resp.Body.Close()
	}
	if !limited {
		t.Fatal("rate limit never triggered")
	}
}
