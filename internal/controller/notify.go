package controller

import (
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"
	"go.uber.org/zap"
)

// Level of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a transient message for the user.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier shows notifications; it must not block.
type Notifier interface {
	Notify(Notification)
}

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Notify(msg Notification) {
	switch msg.Level {
	case LevelError:
		n.Log.Warn(msg.Message, zap.String("notification", string(msg.Level)))
	default:
		n.Log.Info(msg.Message, zap.String("notification", string(msg.Level)))
	}
}

// WriterNotifier prints notifications on a terminal, one per line.
type WriterNotifier struct {
	mu      sync.Mutex
	w       io.Writer
	colours bool
}

func NewWriterNotifier(w io.Writer, colours bool) *WriterNotifier {
	return &WriterNotifier{w: w, colours: colours}
}

func (n *WriterNotifier) Notify(msg Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	prefix := "•"
	if n.colours {
		switch msg.Level {
		case LevelSuccess:
			prefix = color.Green.Render("✔")
		case LevelError:
			prefix = color.Red.Render("✖")
		default:
			prefix = color.Cyan.Render("•")
		}
	}

	_, _ = fmt.Fprintf(n.w, "%s %s\n", prefix, msg.Message)
}

// Notifiers fans a notification out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) Notify(msg Notification) {
	for _, n := range ns {
		n.Notify(msg)
	}
}
