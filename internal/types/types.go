package types

import "time"

// Event is the envelope fanned out to notifier destinations.
type Event struct {
	Type      string    `json:"type"`
	BotID     string    `json:"botId"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

const (
	EventCaption = "caption"
	EventStatus  = "status"
)

// Caption is one finalized caption line.
type Caption struct {
	BotID      string    `json:"botId"`
	Speaker    string    `json:"speaker"`
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Instance is the launcher's record of one deployed bot.
type Instance struct {
	BotID         string     `json:"botId"`
	ContainerName string     `json:"containerName"`
	Port          int        `json:"port"`
	MeetingURL    string     `json:"meetingUrl"`
	NotifierURLs  []string   `json:"notifierUrls"`
	RuntimeID     string     `json:"runtimeId,omitempty"`
	State         string     `json:"state"`
	StartedAt     time.Time  `json:"startedAt"`
	ExitedAt      *time.Time `json:"exitedAt,omitempty"`
	ExitCode      int        `json:"exitCode,omitempty"`
}

const (
	InstanceStarting = "starting"
	InstanceRunning  = "running"
	InstanceExited   = "exited"
)
