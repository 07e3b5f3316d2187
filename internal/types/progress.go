package types

// JobKind identifies a class of long-running job. At most one job of each
// kind runs at a time.
type JobKind string

// Job kind constants.
const (
	JobIndex    JobKind = "index"
	JobDiscover JobKind = "discover"
	JobGeocode  JobKind = "geocode"
)

// IsValid checks if the job kind value is valid.
func (k JobKind) IsValid() bool {
	switch k {
	case JobIndex, JobDiscover, JobGeocode:
		return true
	}
	return false
}

// ProgressType is the phase of a progress event. Every job emits exactly
// one terminal event: completed, cancelled, or error.
type ProgressType string

// Progress phase constants.
const (
	ProgressStarted   ProgressType = "started"
	ProgressWorking   ProgressType = "progress"
	ProgressCompleted ProgressType = "completed"
	ProgressCancelled ProgressType = "cancelled"
	ProgressError     ProgressType = "error"
)

// IsTerminal reports whether this event ends the job's stream.
func (t ProgressType) IsTerminal() bool {
	switch t {
	case ProgressCompleted, ProgressCancelled, ProgressError:
		return true
	}
	return false
}

// Counters carries running totals for a job. Pointer-valued on Progress so
// phases that have nothing to report omit it from the wire form.
type Counters struct {
	Discovered int `json:"discovered"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
}

// Progress is one event in a job's stream. The shape is identical across
// job kinds so subscription UIs can render any job uniformly. Total is 0
// when unknown (unbounded crawls).
type Progress struct {
	Type        ProgressType `json:"type"`
	JobID       string       `json:"job_id"`
	Kind        JobKind      `json:"kind"`
	Current     int          `json:"current"`
	Total       int          `json:"total"`
	Message     string       `json:"message,omitempty"`
	CurrentItem string       `json:"current_item,omitempty"`
	Counters    *Counters    `json:"counters,omitempty"`
}
