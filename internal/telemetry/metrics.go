package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はイベントを Prometheus のメトリクスへ変換する
type Metrics struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	seekDuration    prometheus.Histogram
	seekError       prometheus.Gauge
	angle           prometheus.Gauge
	position        prometheus.Gauge
	leftLock        prometheus.Gauge
	rightLock       prometheus.Gauge
	centre          prometheus.Gauge
	jitter          prometheus.Gauge
	profileDistance *prometheus.GaugeVec
	rangeOffset     prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wheel_events_total",
			Help: "Wheel control events by type and result",
		}, []string{"type", "result"}),
		seekDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wheel_seek_duration_seconds",
			Help:    "Time taken by angle seeks",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		seekError: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheel_seek_error_degrees",
			Help: "Final angle minus target angle of the last seek",
		}),
		angle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheel_angle_degrees",
			Help: "Last reported wheel angle",
		}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheel_position_raw",
			Help: "Last reported raw axis position",
		}),
		leftLock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheel_left_lock_raw",
			Help: "Calibrated left lock position",
		}),
		rightLock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheel_right_lock_raw",
			Help: "Calibrated right lock position",
		}),
		centre: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheel_centre_raw",
			Help: "Calibrated centre position",
		}),
		jitter: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheel_jitter_raw",
			Help: "Calibrated position noise floor",
		}),
		profileDistance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wheel_profile_distance_raw",
			Help: "Average travel per sample window by direction and level",
		}, []string{"direction", "level"}),
		rangeOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheel_range_offset_seconds",
			Help: "Counter-force pre-offset found by end-stop avoidance",
		}),
	}
	m.registry.MustRegister(
		m.events, m.seekDuration, m.seekError, m.angle, m.position,
		m.leftLock, m.rightLock, m.centre, m.jitter, m.profileDistance, m.rangeOffset,
	)
	return m
}

func (m *Metrics) Publish(ev Event) {
	result := "ok"
	if !ev.OK {
		result = "error"
	}
	m.events.WithLabelValues(ev.Type, result).Inc()

	switch ev.Type {
	case TypeCalibrated:
		if ev.OK {
			m.leftLock.Set(float64(ev.LeftLock))
			m.rightLock.Set(float64(ev.RightLock))
			m.centre.Set(float64(ev.Centre))
			m.jitter.Set(float64(ev.Jitter))
		}
	case TypeSeek:
		m.seekDuration.Observe(ev.Elapsed.Seconds())
		m.seekError.Set(float64(ev.Angle - ev.Target))
		m.angle.Set(float64(ev.Angle))
		m.position.Set(float64(ev.Position))
	case TypeCentred:
		m.angle.Set(float64(ev.Angle))
		m.position.Set(float64(ev.Position))
	case TypeProfileLevel:
		m.profileDistance.WithLabelValues(ev.Direction, strconv.Itoa(ev.Level)).Set(float64(ev.Distance))
	case TypeRangeOffset:
		if ev.OK {
			m.rangeOffset.Set(ev.Offset.Seconds())
		}
	}
}

// Registry はメトリクスを登録したレジストリを返す
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler は /metrics 用のハンドラーを返す
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
