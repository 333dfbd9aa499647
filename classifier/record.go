package classifier

import (
	"encoding/csv"
	"io"
	"net/netip"
	"strconv"
	"sync"

	"github.com/tcassar-diss/xdpfilter/store"
	"go.uber.org/zap"
)

// Record is the observability tuple emitted once per classified IP packet. Addr is
// the source for ingress and the destination for egress.
type Record struct {
	Hook    Hook
	Family  store.Family
	Addr    netip.Addr
	Port    uint16
	Verdict string
}

// Recorder receives records. Implementations must be safe for concurrent use and
// must not influence the verdict.
type Recorder interface {
	Record(r Record)
}

// RecorderFunc adapts a function to a Recorder.
type RecorderFunc func(Record)

func (f RecorderFunc) Record(r Record) { f(r) }

type discard struct{}

func (discard) Record(Record) {}

// Discard drops every record.
var Discard Recorder = discard{}

// Recorders fans a record out to each recorder in turn.
type Recorders []Recorder

func (rs Recorders) Record(r Record) {
	for _, rec := range rs {
		rec.Record(r)
	}
}

// LogRecorder writes records to a zap logger at debug level.
type LogRecorder struct {
	logger *zap.SugaredLogger
}

func NewLogRecorder(logger *zap.SugaredLogger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (l *LogRecorder) Record(r Record) {
	l.logger.Debugw("packet classified",
		"hook", r.Hook.String(),
		"family", r.Family.String(),
		"addr", r.Addr,
		"port", r.Port,
		"verdict", r.Verdict,
	)
}

// CSVRecorder writes records as CSV rows of hook,family,addr,port,verdict.
type CSVRecorder struct {
	mu sync.Mutex
	w  *csv.Writer
}

func NewCSVRecorder(dest io.Writer) (*CSVRecorder, error) {
	w := csv.NewWriter(dest)

	if err := w.Write([]string{"hook", "family", "addr", "port", "verdict"}); err != nil {
		return nil, err
	}

	return &CSVRecorder{w: w}, nil
}

func (c *CSVRecorder) Record(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.w.Write([]string{
		r.Hook.String(),
		r.Family.String(),
		r.Addr.String(),
		strconv.Itoa(int(r.Port)),
		r.Verdict,
	})
}

// Flush flushes buffered rows and reports any write error seen so far.
func (c *CSVRecorder) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.w.Flush()

	return c.w.Error()
}
