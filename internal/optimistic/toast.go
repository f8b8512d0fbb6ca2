package optimistic

import "time"

// Level is the severity of a toast.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Toast is a transient user-facing message describing a mutation outcome.
type Toast struct {
	Level       Level     `json:"level"`
	Message     string    `json:"message"`
	Description string    `json:"description,omitempty"`
	Kind        ErrorKind `json:"kind,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier shows toasts to the user.
type Notifier interface {
	Notify(t Toast)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(t Toast)

func (f NotifierFunc) Notify(t Toast) { f(t) }
