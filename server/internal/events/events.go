package events

import evbus "github.com/asaskevich/EventBus"

const (
	// payload: internal.ProcessSnapshot
	TopicProgress = "download:progress"
	// payload: internal.ProcessSnapshot of a successful download
	TopicCompleted = "download:completed"
)

var bus = evbus.New()

// Bus returns the process wide event bus.
func Bus() evbus.Bus { return bus }
