package supervisor

import "sync/atomic"

// Metrics contains atomic counters for a supervisor.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// ConnectAttempts indicates the number of connect attempts.
	ConnectAttempts atomic.Uint64
	// ConnectFailures indicates the number of failed connect attempts.
	ConnectFailures atomic.Uint64
	// Reconnects indicates the number of sessions discarded after a failure.
	Reconnects atomic.Uint64
	// RadioResets indicates the number of radio reset hook invocations.
	RadioResets atomic.Uint64
	// RadioResetErrors indicates the number of failed radio reset hook invocations.
	RadioResetErrors atomic.Uint64

	// ReadingsRecorded indicates the number of readings accepted by the sink.
	ReadingsRecorded atomic.Uint64
	// ReadingsSkipped indicates the number of frames without samples.
	ReadingsSkipped atomic.Uint64
	// SinkErrors indicates the number of readings the sink failed to record.
	SinkErrors atomic.Uint64

	// Connected is 1 while a session is streaming, 0 otherwise.
	Connected atomic.Uint32
	// ConnRetryGauge indicates the number of consecutive failed cycles.
	ConnRetryGauge atomic.Uint32
}

func (m *Metrics) incConnectAttempts()  { m.ConnectAttempts.Add(1) }
func (m *Metrics) incConnectFailures()  { m.ConnectFailures.Add(1) }
func (m *Metrics) incReconnects()       { m.Reconnects.Add(1) }
func (m *Metrics) incRadioResets()      { m.RadioResets.Add(1) }
func (m *Metrics) incRadioResetErrors() { m.RadioResetErrors.Add(1) }
func (m *Metrics) incReadingsRecorded() { m.ReadingsRecorded.Add(1) }
func (m *Metrics) incReadingsSkipped()  { m.ReadingsSkipped.Add(1) }
func (m *Metrics) incSinkErrors()       { m.SinkErrors.Add(1) }

func (m *Metrics) setConnected(connected bool) {
	if connected {
		m.Connected.Store(1)
	} else {
		m.Connected.Store(0)
	}
}

func (m *Metrics) incConnRetryGauge() {
	m.ConnRetryGauge.Add(1)
}

func (m *Metrics) resetConnRetryGauge() {
	m.ConnRetryGauge.Store(0)
}
