package monitor

import "github.com/t77yq/benchconsole/internal/model"

// SeriesPoint is one chart point derived from a metric sample. Time is the
// sample's position in the window, not elapsed seconds.
type SeriesPoint struct {
	Time       int     `json:"time"`
	IOPS       float64 `json:"iops"`
	ReadIOPS   float64 `json:"readIops"`
	WriteIOPS  float64 `json:"writeIops"`
	Throughput float64 `json:"throughput"`
	Latency    float64 `json:"latency"`
}

// BuildSeries expands samples into chart points in window order
func BuildSeries(samples []model.MetricSample) []SeriesPoint {
	points := make([]SeriesPoint, 0, len(samples))
	for i, s := range samples {
		points = append(points, SeriesPoint{
			Time:       i,
			IOPS:       s.IOPS.Read + s.IOPS.Write,
			ReadIOPS:   s.IOPS.Read,
			WriteIOPS:  s.IOPS.Write,
			Throughput: s.BandwidthMBps.Read + s.BandwidthMBps.Write,
			Latency:    s.LatencyUs.Avg,
		})
	}
	return points
}
