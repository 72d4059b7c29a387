package workflow

import (
	"errors"
	"time"
)

// State is the single active state of the controller
type State int

const (
	Idle State = iota
	Estimating
	EstimationShown
	Analyzing
	ResultShown
	ErrorShown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Estimating:
		return "estimating"
	case EstimationShown:
		return "estimation-shown"
	case Analyzing:
		return "analyzing"
	case ResultShown:
		return "result-shown"
	case ErrorShown:
		return "error-shown"
	default:
		return "unknown"
	}
}

// Busy reports whether a request is in flight
func (s State) Busy() bool {
	return s == Estimating || s == Analyzing
}

// transitions lists the legal moves out of each state
var transitions = map[State][]State{
	Idle:            {Estimating, Analyzing, ResultShown},
	Estimating:      {EstimationShown, ErrorShown},
	EstimationShown: {Idle, Estimating, Analyzing, ResultShown},
	Analyzing:       {ResultShown, ErrorShown},
	ResultShown:     {Idle, Estimating, Analyzing, ResultShown},
	ErrorShown:      {Idle, Estimating, EstimationShown, Analyzing, ResultShown},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	// ErrBusy is returned when an estimate or analysis is already in flight
	ErrBusy = errors.New("another request is in progress")

	// ErrNoFile is returned by Estimate and Analyze without a selected file
	ErrNoFile = errors.New("no file selected")

	// ErrInvalidTransition is returned for actions not offered in the current state
	ErrInvalidTransition = errors.New("action not available in the current state")

	// ErrNotViewable is returned by ShowContract for records that are not completed
	ErrNotViewable = errors.New("only completed analyses can be viewed")
)

// NoticeKind distinguishes the two uses of the notice area
type NoticeKind int

const (
	NoticeError NoticeKind = iota
	NoticeSuccess
)

// Notice is the single user-facing message slot
type Notice struct {
	Kind    NoticeKind
	Message string
	// ExpiresAt is zero for notices that stay until dismissed
	ExpiresAt time.Time
}

// Result is the analysis currently on screen
type Result struct {
	Content    string
	Filename   string
	Model      string
	Date       time.Time
	ContractID int64 // 0 for a fresh analysis
}

// Controls is the enablement of every user action
type Controls struct {
	SelectFile       bool
	Estimate         bool
	Analyze          bool
	ApplyRecommended bool
	Proceed          bool
	CancelEstimate   bool
	EditSettings     bool
	DismissNotice    bool
}
