package agent

import (
	"github.com/haivivi/autoppa/pkg/chat"
	"github.com/haivivi/autoppa/pkg/convo"
	"github.com/haivivi/autoppa/pkg/genx"
)

// State is a phase of the optimization loop.
type State int

const (
	// StateInit builds the first prompt.
	StateInit State = iota

	// StateGenerate streams a candidate design from the model.
	StateGenerate

	// StateValidate runs simulation and synthesis on the candidate.
	StateValidate

	// StateFeedback turns the tool reports into the next prompt.
	StateFeedback

	// StateDecide counts the iteration and chooses whether to continue.
	StateDecide

	// StateStopByUser is terminal: the Decider or the caller stopped the loop.
	StateStopByUser

	// StateStopByLimit is terminal: the iteration limit was reached.
	StateStopByLimit
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateGenerate:
		return "GENERATE"
	case StateValidate:
		return "VALIDATE"
	case StateFeedback:
		return "FEEDBACK"
	case StateDecide:
		return "DECIDE"
	case StateStopByUser:
		return "STOP_BY_USER"
	case StateStopByLimit:
		return "STOP_BY_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s ends the loop.
func (s State) Terminal() bool {
	return s == StateStopByUser || s == StateStopByLimit
}

// Decision is the answer of a Decider.
type Decision int

const (
	Continue Decision = iota
	Stop
)

func (d Decision) String() string {
	if d == Stop {
		return "stop"
	}
	return "continue"
}

// Outcome is the result of one generate/validate iteration.
type Outcome struct {
	// Iteration counts from 1.
	Iteration int

	// Source is the full generated text.
	Source      string
	SimReport   string
	SynthReport string

	// Usage is what the model reported for the generation.
	Usage genx.Usage

	// ContextTokens is the conversation token count after the generation.
	ContextTokens int

	// Degraded reports that the system prompt has been truncated away.
	Degraded bool

	// Artifacts are the archived object names, if an Archiver is set.
	Artifacts []string

	// Next is the state chosen at DECIDE. It is StateDecide while the
	// decision is pending.
	Next State
}

// EventKind classifies observer events.
type EventKind int

const (
	// EventSystem carries the system prompt, published once at INIT.
	EventSystem EventKind = iota + 1

	// EventPrompt carries a user turn as it is sent to the model.
	EventPrompt

	// EventFragment carries one streamed piece of the assistant reply.
	EventFragment

	// EventReply carries the complete assistant reply.
	EventReply

	// EventReport carries one tool report.
	EventReport

	// EventTruncated is published when the newest message alone exceeded the
	// context budget.
	EventTruncated

	// EventStopped is published on entering a terminal state. Text holds the
	// state name.
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventSystem:
		return "system"
	case EventPrompt:
		return "prompt"
	case EventFragment:
		return "fragment"
	case EventReply:
		return "reply"
	case EventReport:
		return "report"
	case EventTruncated:
		return "truncated"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is published to the Observer as the loop progresses.
type Event struct {
	Kind      EventKind
	Iteration int
	Role      chat.Role
	Text      string

	// Truncation is set for EventTruncated.
	Truncation convo.Truncation
}
