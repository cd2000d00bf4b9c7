// Command smoke drives a full maker/checker verification flow against a
// running kycdesk-api instance and fails loudly on any deviation.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

const sampleDoc = `INCOME TAX DEPARTMENT
Name: Smoke Tester
Date of Birth: 1990-06-15
PAN: ABCPS1234K
`

func main() {
	base := os.Getenv("KYCDESK_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 10 * time.Second}
	run := rand.New(rand.NewSource(time.Now().UnixNano())).Int()

	makerToken := registerAndLogin(client, base, fmt.Sprintf("maker-%d@smoke.test", run), "maker")
	checkerToken := registerAndLogin(client, base, fmt.Sprintf("checker-%d@smoke.test", run), "checker")

	caseID := createCase(client, base, makerToken)
	uploadDocument(client, base, makerToken, caseID)

	c := transition(client, base, makerToken, caseID, "submit", "")
	if c["status"] != "AI_REVIEWED" {
		log.Fatalf("after submit: status %v, want AI_REVIEWED", c["status"])
	}
	if c["risk_score"] == nil {
		log.Fatal("after submit: missing risk score")
	}

	c = transition(client, base, checkerToken, caseID, "approve", "smoke approval")
	if c["status"] != "CHECKER_APPROVED" {
		log.Fatalf("after approve: status %v, want CHECKER_APPROVED", c["status"])
	}

	trail := getJSON(client, base+"/v1/cases/"+caseID+"/audit", makerToken)
	entries, _ := trail["audit"].([]any)
	if len(entries) != 5 {
		log.Fatalf("audit length %d, want 5", len(entries))
	}

	fmt.Printf("✅ kycdesk smoke test passed: case=%s\n", caseID)
}

func registerAndLogin(client *http.Client, base, email, role string) string {
	body := map[string]any{
		"email": email, "password": "smoke-pass-123",
		"full_name": "Smoke " + role, "role": role,
	}
	resp := postJSON(client, base+"/v1/auth/register", body, "")
	if resp["id"] == nil {
		log.Fatalf("register %s: %v", role, resp)
	}

	resp = postJSON(client, base+"/v1/auth/login", map[string]any{
		"email": email, "password": "smoke-pass-123",
	}, "")
	token, _ := resp["token"].(string)
	if token == "" {
		log.Fatalf("login %s: %v", role, resp)
	}
	return token
}

func createCase(client *http.Client, base, token string) string {
	resp := postJSON(client, base+"/v1/cases", map[string]any{
		"profile": map[string]any{
			"name": "Smoke Tester", "dob": "1990-06-15", "pan": "ABCPS1234K",
		},
	}, token)
	id, _ := resp["id"].(string)
	if id == "" {
		log.Fatalf("create case: %v", resp)
	}
	return id
}

func uploadDocument(client *http.Client, base, token, caseID string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("doc_type", "pan")
	fw, err := mw.CreateFormFile("file", "pan.txt")
	if err != nil {
		log.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte(sampleDoc))
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, base+"/v1/cases/"+caseID+"/documents", &buf)
	if err != nil {
		log.Fatalf("upload request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	out := doJSON(client, req)
	assessment, _ := out["risk_assessment"].(map[string]any)
	if assessment == nil || assessment["is_valid"] != true {
		log.Fatalf("upload: unexpected assessment %v", out["risk_assessment"])
	}
}

func transition(client *http.Client, base, token, caseID, verb, comments string) map[string]any {
	var body map[string]any
	if comments != "" {
		body = map[string]any{"comments": comments}
	}
	return postJSON(client, base+"/v1/cases/"+caseID+"/"+verb, body, token)
}

func postJSON(client *http.Client, url string, body any, token string) map[string]any {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(http.MethodPost, url, reader)
	if err != nil {
		log.Fatalf("request %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doJSON(client, req)
}

func getJSON(client *http.Client, url, token string) map[string]any {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		log.Fatalf("request %s: %v", url, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return doJSON(client, req)
}

func doJSON(client *http.Client, req *http.Request) map[string]any {
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Fatalf("%s %s: status %d: %s", req.Method, req.URL, resp.StatusCode, snippet)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatalf("%s %s: decode: %v", req.Method, req.URL, err)
	}
	return out
}
