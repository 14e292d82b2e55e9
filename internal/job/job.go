package job

// State is the lifecycle state of a single page URL pipeline.
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

func (s State) String() string {
	return string(s)
}

// IsLive reports whether the job still holds a transfer (active or paused).
func (s State) IsLive() bool {
	return s == StateActive || s == StatePaused
}

// IsFinished reports whether the job reached a terminal state.
func (s State) IsFinished() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

// Job is a point-in-time view of one download. The key is the original page URL.
type Job struct {
	Key      string `json:"url"`
	AssetURL string `json:"assetUrl,omitempty"`
	Path     string `json:"path,omitempty"`
	State    State  `json:"state"`
	Written  int64  `json:"written"`
	Total    int64  `json:"total"` // -1 when the server did not announce a size
}

// Percent returns the rounded completion percentage, or -1 when the total is unknown.
func (j Job) Percent() int {
	if j.Total <= 0 {
		return -1
	}

	return int(float64(j.Written)*100/float64(j.Total) + 0.5)
}
