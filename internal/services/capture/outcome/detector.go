// Package outcome detects which classification tool a pipeline run invoked
// Dispatch is on the tool name as a tagged variant, never on free text
package outcome

import (
	"encoding/json"
	"fmt"

	"secondbrain/internal/services/capture/domain"
)

// The fixed set of recognized classification tools
const (
	ToolFile    = "classify_and_file"
	ToolClarify = "request_clarification"
	ToolJunk    = "mark_as_junk"
)

// ZeroConfidenceFallback replaces a degenerate 0.0 confidence when a bucket
// was actually chosen. Policy constant, logged as an anomaly on every use
const ZeroConfidenceFallback = 0.75

// knownTool reports membership in the recognized set
func knownTool(name string) bool {
	switch name {
	case ToolFile, ToolClarify, ToolJunk:
		return true
	}
	return false
}

// ToolArgs is the superset of arguments across the three tools
type ToolArgs struct {
	Bucket        string  `json:"bucket"`
	Confidence    float64 `json:"confidence"`
	PeopleScore   float64 `json:"people_score"`
	ProjectsScore float64 `json:"projects_score"`
	IdeasScore    float64 `json:"ideas_score"`
	AdminScore    float64 `json:"admin_score"`
	RawText       string  `json:"raw_text"`
	Title         string  `json:"title"`
	QuestionText  string  `json:"question_text"`
}

// Scores assembles the per-bucket score map
func (a ToolArgs) Scores() map[string]float64 {
	return map[string]float64{
		string(domain.BucketPeople):   a.PeopleScore,
		string(domain.BucketProjects): a.ProjectsScore,
		string(domain.BucketIdeas):    a.IdeasScore,
		string(domain.BucketAdmin):    a.AdminScore,
	}
}

// ParseArgs decodes tool arguments defensively
// Accepts a native JSON object or a string-encoded object; anything else
// yields the zero argument set with ok=false so the run never fails on parse
func ParseArgs(raw json.RawMessage) (ToolArgs, bool) {
	var args ToolArgs
	if len(raw) == 0 {
		return args, false
	}
	if err := json.Unmarshal(raw, &args); err == nil {
		return args, true
	}
	// string-encoded form: unwrap once and try again
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &args); err == nil {
			return args, true
		}
	}
	return ToolArgs{}, false
}

// Clamp bounds a confidence to [0,1]
func Clamp(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Detection is the authoritative first recognized tool invocation of a run
type Detection struct {
	Tool   string
	Args   ToolArgs
	Handle string
}

// Detector scans pipeline events for recognized tool invocations
// The first one wins; later ones are anomalies. Single-goroutine like the
// translator: only the runner's emit callback touches it
type Detector struct {
	onFirst   func(Detection)
	onAnomaly func(kind, detail string)

	det    *Detection
	handle string
}

// New builds a detector. onFirst fires exactly once, synchronously, the
// moment the first recognized invocation lands; filing hangs off it so the
// side effect commits even if the client has disconnected
func New(onFirst func(Detection), onAnomaly func(kind, detail string)) *Detector {
	if onFirst == nil {
		onFirst = func(Detection) {}
	}
	if onAnomaly == nil {
		onAnomaly = func(string, string) {}
	}
	return &Detector{onFirst: onFirst, onAnomaly: onAnomaly}
}

// OnEvent inspects one pipeline event
func (d *Detector) OnEvent(ev domain.PipelineEvent) {
	if ev.Handle != "" && d.handle == "" {
		d.handle = ev.Handle
	}
	if ev.Kind != domain.EventToolCall || !knownTool(ev.Tool) {
		return
	}
	if d.det != nil {
		// arrival order breaks ties; everything after the first is ignored
		d.onAnomaly("duplicate_tool", fmt.Sprintf("ignoring %s after %s", ev.Tool, d.det.Tool))
		return
	}

	args, ok := ParseArgs(ev.Args)
	if !ok {
		d.onAnomaly("unparseable_args", fmt.Sprintf("tool %s arguments could not be parsed", ev.Tool))
	}

	// the fallback applies only when the model sent exactly 0, not when a
	// negative value was clamped to 0
	rawConfidence := args.Confidence
	args.Confidence = Clamp(rawConfidence)
	if ev.Tool == ToolFile && rawConfidence == 0 {
		if _, valid := domain.ParseBucket(args.Bucket); valid {
			args.Confidence = ZeroConfidenceFallback
			d.onAnomaly("zero_confidence", fmt.Sprintf("bucket %s arrived with confidence 0, substituted %.2f", args.Bucket, ZeroConfidenceFallback))
		}
	}

	det := Detection{Tool: ev.Tool, Args: args, Handle: d.handle}
	d.det = &det
	d.onFirst(det)
}

// Detected returns the winning invocation, if any
func (d *Detector) Detected() (Detection, bool) {
	if d.det == nil {
		return Detection{}, false
	}
	return *d.det, true
}

// Handle returns the conversation handle observed on the stream, if any
func (d *Detector) Handle() string { return d.handle }
