package parser

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/studiowebux/loadcli/internal/types"
)

var validMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// ParseHTTPFile parses a .http file with ### separators into request
// definitions. Comment lines may carry @tls.* annotations for the request's
// TLS settings.
func ParseHTTPFile(filePath string) (*types.RequestFile, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var requests []types.HttpRequest
	var currentRequest *types.HttpRequest
	var bodyLines []string
	inBody := false

	finish := func() {
		if currentRequest == nil {
			return
		}
		if inBody && len(bodyLines) > 0 {
			currentRequest.Body = strings.Join(bodyLines, "\n")
		}
		requests = append(requests, *currentRequest)
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()

		// New request separator
		if strings.HasPrefix(line, "###") {
			finish()
			currentRequest = &types.HttpRequest{
				Name:    strings.TrimSpace(strings.TrimPrefix(line, "###")),
				Headers: make(map[string]string),
			}
			bodyLines = []string{}
			inBody = false
			continue
		}

		// Comment / annotation lines
		if strings.HasPrefix(line, "#") && currentRequest != nil && !inBody {
			trimmed := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			if strings.HasPrefix(trimmed, "@tls.") {
				parseTLSAnnotation(currentRequest, trimmed)
			}
			continue
		}

		// HTTP method and URL (e.g., GET http://example.com)
		if currentRequest != nil && currentRequest.Method == "" {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				method := strings.ToUpper(parts[0])
				for _, vm := range validMethods {
					if method == vm {
						currentRequest.Method = method
						currentRequest.URL = parts[1]
						break
					}
				}
			}
			continue
		}

		// Empty line after headers starts body
		if currentRequest != nil && currentRequest.Method != "" && strings.TrimSpace(line) == "" && !inBody {
			inBody = true
			continue
		}

		// Body content
		if inBody {
			bodyLines = append(bodyLines, line)
			continue
		}

		// Header line (Key: Value)
		if currentRequest != nil && currentRequest.Method != "" {
			if idx := strings.Index(line, ":"); idx > 0 {
				key := strings.TrimSpace(line[:idx])
				value := strings.TrimSpace(line[idx+1:])
				currentRequest.Headers[key] = value
			}
		}
	}
	finish()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("no requests found in %s", filePath)
	}

	return &types.RequestFile{Path: filePath, Requests: requests}, nil
}

func parseTLSAnnotation(req *types.HttpRequest, trimmed string) {
	if req.TLS == nil {
		req.TLS = &types.TLSConfig{}
	}
	switch {
	case strings.HasPrefix(trimmed, "@tls.certFile "):
		req.TLS.CertFile = strings.TrimSpace(strings.TrimPrefix(trimmed, "@tls.certFile"))
	case strings.HasPrefix(trimmed, "@tls.keyFile "):
		req.TLS.KeyFile = strings.TrimSpace(strings.TrimPrefix(trimmed, "@tls.keyFile"))
	case strings.HasPrefix(trimmed, "@tls.caFile "):
		req.TLS.CAFile = strings.TrimSpace(strings.TrimPrefix(trimmed, "@tls.caFile"))
	case strings.HasPrefix(trimmed, "@tls.insecureSkipVerify "):
		value := strings.TrimSpace(strings.TrimPrefix(trimmed, "@tls.insecureSkipVerify"))
		req.TLS.InsecureSkipVerify = value == "true"
	}
}
