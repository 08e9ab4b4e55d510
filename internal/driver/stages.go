package driver

import (
	"encoding/json"
	"os"
	"time"
)

// TimingEnv names the environment variable holding the stage log path when
// Options.TimingPath is empty.
const TimingEnv = "HDLGEN_TIMING_JSONL"

// Stage names one step of a job.
type Stage string

const (
	StageLoad    Stage = "load"
	StageCompile Stage = "compile"
	StagePolicy  Stage = "policy"
	StageWrite   Stage = "write"
	// StageTotal spans the life of a Driver and has no job.
	StageTotal Stage = "total"
)

// StageTiming is one finished stage. Times are milliseconds since the
// driver was created.
type StageTiming struct {
	Stage      Stage   `json:"stage"`
	Entity     string  `json:"entity,omitempty"`
	Backend    string  `json:"backend,omitempty"`
	Status     string  `json:"status"`
	StartMS    float64 `json:"start_ms"`
	DurationMS float64 `json:"duration_ms"`
}

// stageLog times job stages into the job reports, and mirrors them as JSON
// lines when a log file is open.
type stageLog struct {
	origin time.Time
	file   *os.File
	enc    *json.Encoder
}

func openStageLog(origin time.Time, path string) (*stageLog, error) {
	l := &stageLog{origin: origin}
	if path == "" {
		path = os.Getenv(TimingEnv)
	}
	if path == "" {
		return l, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return l, err
	}
	l.file, l.enc = f, json.NewEncoder(f)
	return l, nil
}

// begin starts stage of the job reported by rep. The returned func ends it:
// a failed stage has status "error", a compile served from the output cache
// "cached".
func (l *stageLog) begin(rep *Report, stage Stage) func(err error) {
	start := time.Now()
	return func(err error) {
		st := StageTiming{
			Stage:      stage,
			Entity:     rep.Job.Entity,
			Backend:    rep.Job.Backend,
			Status:     "ok",
			StartMS:    millis(start.Sub(l.origin)),
			DurationMS: millis(time.Since(start)),
		}
		switch {
		case err != nil:
			st.Status = "error"
		case stage == StageCompile && rep.Cached:
			st.Status = "cached"
		}
		rep.Timings = append(rep.Timings, st)
		l.emit(st)
	}
}

// close records the total stage and closes the log file.
func (l *stageLog) close() {
	l.emit(StageTiming{Stage: StageTotal, Status: "ok", DurationMS: millis(time.Since(l.origin))})
	if l.file != nil {
		_ = l.file.Close()
		l.file, l.enc = nil, nil
	}
}

func (l *stageLog) emit(st StageTiming) {
	if l.enc != nil {
		_ = l.enc.Encode(st)
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
