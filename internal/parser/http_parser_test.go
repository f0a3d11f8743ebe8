package parser

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

func TestParseHTTPFile(t *testing.T) {
	path := writeFile(t, "requests.http", `### Health Check
GET https://api.example.com/health

### Create Item
POST https://api.example.com/items
Content-Type: application/json
Authorization: Bearer {{token}}

{
  "name": "widget"
}
`)

	file, err := ParseHTTPFile(path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(file.Requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(file.Requests))
	}

	health := file.Requests[0]
	if health.Name != "Health Check" || health.Method != "GET" || health.URL != "https://api.example.com/health" {
		t.Errorf("unexpected first request %+v", health)
	}
	if health.Body != "" {
		t.Errorf("expected empty body, got %q", health.Body)
	}

	create := file.Requests[1]
	if create.Method != "POST" {
		t.Errorf("expected POST, got %q", create.Method)
	}
	if create.Headers["Content-Type"] != "application/json" {
		t.Errorf("unexpected headers %v", create.Headers)
	}
	if create.Headers["Authorization"] != "Bearer {{token}}" {
		t.Errorf("placeholders must survive parsing, got %q", create.Headers["Authorization"])
	}
	if create.Body != "{\n  \"name\": \"widget\"\n}" {
		t.Errorf("unexpected body %q", create.Body)
	}
}

func TestParseHTTPFileTLSAnnotations(t *testing.T) {
	path := writeFile(t, "mtls.http", `### Secure
# @tls.certFile client.crt
# @tls.keyFile client.key
# @tls.caFile ca.crt
# @tls.insecureSkipVerify true
GET https://secure.example.com/
`)

	file, err := ParseHTTPFile(path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tlsCfg := file.Requests[0].TLS
	if tlsCfg == nil {
		t.Fatal("expected TLS config from annotations")
	}
	if tlsCfg.CertFile != "client.crt" || tlsCfg.KeyFile != "client.key" || tlsCfg.CAFile != "ca.crt" {
		t.Errorf("unexpected TLS config %+v", tlsCfg)
	}
	if !tlsCfg.InsecureSkipVerify {
		t.Error("expected insecureSkipVerify true")
	}
}

func TestParseHTTPFileEmpty(t *testing.T) {
	path := writeFile(t, "empty.http", "# just a comment\n")
	if _, err := ParseHTTPFile(path); err == nil {
		t.Error("expected error for a file with no requests")
	}
}

func TestFindRequest(t *testing.T) {
	path := writeFile(t, "two.http", `### First
GET https://example.com/a

### Second
GET https://example.com/b
`)

	file, err := ParseHTTPFile(path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	req, ok := file.FindRequest("Second")
	if !ok || req.URL != "https://example.com/b" {
		t.Errorf("expected Second request, got %v %v", ok, req)
	}

	// Empty name selects the first request
	req, ok = file.FindRequest("")
	if !ok || req.Name != "First" {
		t.Errorf("expected First request for empty name, got %v %v", ok, req)
	}

	if _, ok := file.FindRequest("Missing"); ok {
		t.Error("expected lookup miss for unknown name")
	}
}
