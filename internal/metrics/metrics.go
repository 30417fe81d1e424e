// Package metrics exports warmer telemetry in Prometheus format.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaz8081/magwarm/internal/command"
	"github.com/chaz8081/magwarm/internal/session"
	"github.com/chaz8081/magwarm/internal/status"
)

const (
	metricPrefix = "magwarm_"

	resultSuccess  = "success"
	resultError    = "error"
	resultNoDevice = "no_device"
	resultInvalid  = "invalid"
)

var sessionStates = []session.State{
	session.Idle,
	session.Connecting,
	session.Connected,
	session.Disconnected,
	session.Failed,
}

// Metrics bundles magwarm metrics on a private registry.
type Metrics struct {
	Voltage       prometheus.Gauge
	TargetTemp    prometheus.Gauge
	Power         prometheus.Gauge
	Heater        *prometheus.GaugeVec
	Temp          *prometheus.GaugeVec
	PollsTotal    *prometheus.CounterVec
	CommandsTotal *prometheus.CounterVec
	SessionState  *prometheus.GaugeVec
	Reconnects    prometheus.Counter

	registry *prometheus.Registry

	mu         sync.Mutex
	sessionID  string
	reconnects int
}

// New constructs and registers metrics.
func New() *Metrics {
	m := &Metrics{
		Voltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "voltage_volts",
			Help: "Supply voltage last reported by the warmer",
		}),
		TargetTemp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "target_temperature_celsius",
			Help: "Target temperature last reported by the warmer",
		}),
		Power: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "power_on",
			Help: "1 when the warmer reports power on",
		}),
		Heater: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "heater_on",
				Help: "1 when the heater channel reports on",
			},
			[]string{"channel"},
		),
		Temp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "temperature_celsius",
				Help: "Channel temperature; channels with no valid reading are omitted",
			},
			[]string{"channel"},
		),
		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "status_reads_total",
				Help: "Total status reads by result",
			},
			[]string{"result"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_total",
				Help: "Total commands by verb and result",
			},
			[]string{"verb", "result"},
		),
		SessionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "session_state",
				Help: "1 for the current session state, 0 otherwise",
			},
			[]string{"state"},
		),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "reconnects_total",
			Help: "Total reconnect attempts after a dropped link",
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.Voltage,
		m.TargetTemp,
		m.Power,
		m.Heater,
		m.Temp,
		m.PollsTotal,
		m.CommandsTotal,
		m.SessionState,
		m.Reconnects,
	)
	for _, st := range sessionStates {
		m.SessionState.WithLabelValues(st.String()).Set(0)
	}
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStatus records one poll outcome. Gauges only change on success, so
// a failed read leaves the last good values exported.
func (m *Metrics) ObserveStatus(snap status.Snapshot) {
	if snap.Err != nil {
		m.PollsTotal.WithLabelValues(resultError).Inc()
		return
	}
	m.PollsTotal.WithLabelValues(resultSuccess).Inc()
	if !snap.HasRecord {
		return
	}

	rec := snap.Record
	if rec.Has(status.FieldVoltage) {
		m.Voltage.Set(rec.Voltage)
	}
	if rec.Has(status.FieldTargetTemp) {
		m.TargetTemp.Set(float64(rec.TargetTemp))
	}
	if rec.Has(status.FieldPower) {
		m.Power.Set(boolValue(rec.Power))
	}

	m.Heater.Reset()
	for i, on := range rec.Heater {
		m.Heater.WithLabelValues(strconv.Itoa(i)).Set(boolValue(on))
	}
	m.Temp.Reset()
	for i := range rec.Temp {
		if t, ok := rec.ChannelTemp(i); ok {
			m.Temp.WithLabelValues(strconv.Itoa(i)).Set(t)
		}
	}
}

// ObserveCommand records one command outcome. It has the signature of the
// command.Writer report hook.
func (m *Metrics) ObserveCommand(cmd command.Command, err error) {
	result := resultSuccess
	switch {
	case err == nil:
	case errors.Is(err, command.ErrNoDevice):
		result = resultNoDevice
	case errors.Is(err, command.ErrInvalid):
		result = resultInvalid
	default:
		result = resultError
	}
	verb := cmd.Verb()
	if result == resultInvalid {
		verb = "unknown"
	}
	m.CommandsTotal.WithLabelValues(verb, result).Inc()
}

// ObserveSession records a session state change. It has the signature of
// a session.Session watcher.
func (m *Metrics) ObserveSession(snap session.Snapshot) {
	for _, st := range sessionStates {
		m.SessionState.WithLabelValues(st.String()).Set(boolValue(st == snap.State))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.ID != m.sessionID {
		m.sessionID = snap.ID
		m.reconnects = 0
	}
	if snap.Reconnects > m.reconnects {
		m.Reconnects.Add(float64(snap.Reconnects - m.reconnects))
		m.reconnects = snap.Reconnects
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
