package types

// HttpRequest represents an HTTP request definition, either parsed from a
// .http file or declared inline in a scenario.
type HttpRequest struct {
	Name    string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method  string            `json:"method" yaml:"method"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`
	TLS     *TLSConfig        `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// TLSConfig contains TLS settings for a request target
type TLSConfig struct {
	CertFile           string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile            string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
	CAFile             string `json:"caFile,omitempty" yaml:"caFile,omitempty"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// RequestResult contains the HTTP response data for a single execution
type RequestResult struct {
	Status       int               `json:"status"`
	StatusText   string            `json:"statusText"`
	Headers      map[string]string `json:"headers"`
	Body         string            `json:"body"`
	Duration     int64             `json:"duration"`     // milliseconds
	RequestSize  int               `json:"requestSize"`  // bytes
	ResponseSize int               `json:"responseSize"` // bytes
	Error        string            `json:"error,omitempty"`
}

// RequestFile represents a parsed .http file
type RequestFile struct {
	Path     string
	Requests []HttpRequest
}

// FindRequest returns the request with the given name, or the first request
// when name is empty.
func (f *RequestFile) FindRequest(name string) (*HttpRequest, bool) {
	if len(f.Requests) == 0 {
		return nil, false
	}
	if name == "" {
		return &f.Requests[0], true
	}
	for i := range f.Requests {
		if f.Requests[i].Name == name {
			return &f.Requests[i], true
		}
	}
	return nil, false
}
