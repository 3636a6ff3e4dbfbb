package bitalloc

// WordWidth is the number of bits per bitmap word. Wider words mean fewer
// words to scan; each compare-and-swap still covers at most 64 bits.
type WordWidth uint

const (
	Word32  WordWidth = 32
	Word64  WordWidth = 64
	Word128 WordWidth = 128
)

func (w WordWidth) valid() bool {
	return w == Word32 || w == Word64 || w == Word128
}

type options struct {
	width            WordWidth
	logger           *Logger
	metricsCollector MetricsCollector
	yieldAfter       int
}

func defaultOptions() options {
	return options{
		width:            Word64,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
}

// Option configures an Allocator.
type Option func(*options)

// WithWordWidth sets the bitmap word width. Unsupported widths fall back to Word64.
func WithWordWidth(w WordWidth) Option {
	return func(o *options) {
		if !w.valid() {
			w = Word64
		}
		o.width = w
	}
}

// WithLogger sets the diagnostic sink for retries and final statistics.
//
// If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the collector notified on every operation.
//
// If nil is passed, NoopMetricsCollector is used.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithYieldAfter makes a caller yield the processor before each retry once
// it has failed n consecutive compare-and-swaps on the same word.
// n <= 0 retries immediately without ever yielding (the default).
func WithYieldAfter(n int) Option {
	return func(o *options) {
		o.yieldAfter = max(n, 0)
	}
}
