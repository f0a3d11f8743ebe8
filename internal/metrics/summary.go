package metrics

import "encoding/json"

// Summary is a point-in-time snapshot of one metric's statistics.
type Summary struct {
	Metric string  `json:"metric"`
	Kind   Kind    `json:"kind"`
	Count  int64   `json:"count"`
	Sum    float64 `json:"sum"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	Med    float64 `json:"med,omitempty"`
	P90    float64 `json:"p90,omitempty"`
	P95    float64 `json:"p95,omitempty"`
	P99    float64 `json:"p99,omitempty"`
	Rate   float64 `json:"rate,omitempty"`   // counter: per second; rate: pass ratio
	Passes int64   `json:"passes,omitempty"` // rate metrics only
	Fails  int64   `json:"fails,omitempty"`  // rate metrics only
	Value  float64 `json:"value,omitempty"`  // gauge: last observed
}

// MarshalJSON renders the kind as its string name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON parses a kind from its string name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "gauge":
		*k = Gauge
	case "rate":
		*k = Rate
	case "trend":
		*k = Trend
	default:
		*k = Counter
	}
	return nil
}
