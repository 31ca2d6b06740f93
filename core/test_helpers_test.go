package core

import (
	"context"
	"sync"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) hasCounter(name string, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.counters {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func (m *captureMetricsRecorder) hasHistogram(name string, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.histograms {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]capturedLog, len(*l.records))
	copy(out, *l.records)
	return out
}

func (l *captureLogger) find(level string, msg string) (capturedLog, bool) {
	for _, item := range l.snapshot() {
		if item.level == level && item.msg == msg {
			return item, true
		}
	}
	return capturedLog{}, false
}

type stubGateway struct {
	mu          sync.Mutex
	initialized []InitializeTransactionRequest
	verified    []string
	tx          VerifiedTransaction
	initErr     error
	verifyErr   error
}

func (*stubGateway) ProviderID() string { return "paystack" }

func (g *stubGateway) InitializeTransaction(_ context.Context, req InitializeTransactionRequest) (InitializeTransactionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialized = append(g.initialized, req)
	if g.initErr != nil {
		return InitializeTransactionResult{}, g.initErr
	}
	return InitializeTransactionResult{
		AuthorizationURL: "https://checkout.paystack.com/abc",
		AccessCode:       "abc",
		Reference:        "TX100",
	}, nil
}

func (g *stubGateway) VerifyTransaction(_ context.Context, reference string) (VerifiedTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verified = append(g.verified, reference)
	if g.verifyErr != nil {
		return VerifiedTransaction{}, g.verifyErr
	}
	tx := g.tx
	tx.Reference = reference
	return tx, nil
}

type stubNotifier struct {
	mu            sync.Mutex
	notifications []OrderNotification
	err           error
}

func (n *stubNotifier) NotifyOrder(_ context.Context, notification OrderNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return n.err
}

type stubRetrier struct {
	events  []PaymentEvent
	actions []FulfillmentAction
	err     error
}

func (r *stubRetrier) Retry(_ context.Context, event PaymentEvent, action FulfillmentAction) (FulfillmentRecord, error) {
	r.events = append(r.events, event)
	r.actions = append(r.actions, action)
	if r.err != nil {
		return FulfillmentRecord{Reference: event.Reference, Action: action, Status: FulfillmentStatusFailed, Attempt: 2}, r.err
	}
	return FulfillmentRecord{Reference: event.Reference, Action: action, Status: FulfillmentStatusSuccess, Attempt: 2}, nil
}

func successfulTransaction() VerifiedTransaction {
	return VerifiedTransaction{
		Status:      "success",
		AmountMinor: 1500,
		Currency:    "GHS",
		Metadata: map[string]string{
			MetadataRecipientNumber: "0551234567",
			MetadataSelectedPlan:    "1GB",
			MetadataBuyerNumber:     "0201234567",
		},
	}
}
