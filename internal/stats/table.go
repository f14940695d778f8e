package stats

import (
	"fmt"
	"io"
	"strings"
	"time"

	"tangled/internal/learn"
	"tangled/internal/tpg"
)

// TableLogger prints one fixed-width row per generation: generation number,
// vertex count, training min/avg/max, validation min/avg/max when enabled,
// and the populate, evaluate, validate and total durations in seconds.
type TableLogger struct {
	learn.BaseHook

	w          io.Writer
	width      int
	sep        string
	validation bool
	now        func() time.Time

	start, checkpoint            time.Time
	populate, evaluate, validate time.Duration
	err                          error
}

func NewTableLogger(w io.Writer, validation bool) *TableLogger {
	t := &TableLogger{w: w, width: 10, sep: " ", validation: validation, now: time.Now}
	t.header()
	return t
}

// Err returns the first write error, after which the logger stays silent.
func (t *TableLogger) Err() error { return t.err }

func (t *TableLogger) header() {
	cols := []string{"Gen", "NbVert", "T_Min", "T_Avg", "T_Max"}
	if t.validation {
		cols = append(cols, "V_Min", "V_Avg", "V_Max")
	}
	cols = append(cols, "T_mutat", "T_eval")
	if t.validation {
		cols = append(cols, "T_valid")
	}
	cols = append(cols, "T_total")
	for i, c := range cols {
		if i > 0 {
			t.printf("%s", t.sep)
		}
		t.printf("%*s", t.width, c)
	}
	t.printf("\n")
}

func (t *TableLogger) LogNewGeneration(generation uint64) {
	t.start = t.now()
	t.checkpoint = t.start
	t.printf("%*d", t.width, generation)
}

func (t *TableLogger) LogAfterPopulate(g *tpg.Graph) {
	t.populate = t.lap()
	t.printf("%s%*d", t.sep, t.width, g.NbVertices())
}

func (t *TableLogger) LogAfterEvaluate(_ uint64, results []learn.RootResult) {
	t.evaluate = t.lap()
	t.scores(results)
	if !t.validation {
		t.endRow()
	}
}

func (t *TableLogger) LogAfterDecimate(*tpg.Graph) {
	t.lap()
}

func (t *TableLogger) LogAfterValidate(_ uint64, results []learn.RootResult) {
	t.validate = t.lap()
	t.scores(results)
	t.endRow()
}

func (t *TableLogger) scores(results []learn.RootResult) {
	lo, mean, hi := Spread(results)
	for _, v := range []float64{lo, mean, hi} {
		t.printf("%s%*.2f", t.sep, t.width, v)
	}
}

func (t *TableLogger) endRow() {
	durations := []time.Duration{t.populate, t.evaluate}
	if t.validation {
		durations = append(durations, t.validate)
	}
	durations = append(durations, t.now().Sub(t.start))
	var b strings.Builder
	for _, d := range durations {
		fmt.Fprintf(&b, "%s%*.2f", t.sep, t.width, d.Seconds())
	}
	t.printf("%s\n", b.String())
}

func (t *TableLogger) lap() time.Duration {
	now := t.now()
	d := now.Sub(t.checkpoint)
	t.checkpoint = now
	return d
}

func (t *TableLogger) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}
