package model

// ReadWrite is a pair of read and write figures
type ReadWrite struct {
	Read  float64 `json:"r"`
	Write float64 `json:"w"`
}

// Latency holds latency figures in microseconds
type Latency struct {
	Avg float64 `json:"avg"`
	P99 float64 `json:"p99,omitempty"`
}

// MetricSample is one time-bucketed telemetry point of an execution
type MetricSample struct {
	Timestamp     Timestamp `json:"ts"`
	Client        string    `json:"client,omitempty"`
	IOPS          ReadWrite `json:"iops"`
	BandwidthMBps ReadWrite `json:"bw_mbps"`
	LatencyUs     Latency   `json:"lat_us"`
	Errors        int       `json:"errors,omitempty"`
}

// LatestMetrics is the response of the latest metrics endpoint
type LatestMetrics struct {
	ExecutionID string         `json:"execution_id"`
	Metrics     []MetricSample `json:"metrics"`
	Count       int            `json:"count"`
}
