package queue

import "github.com/roach88/claimwiz/internal/notify"

// KindSyncComplete tags the message sent after a background delivery.
const KindSyncComplete = "sync-complete"

// SyncCompleteMessage is the text of a sync-complete message.
const SyncCompleteMessage = "Your data has been successfully submitted."

// Message crosses from the background worker to any active view.
type Message struct {
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	SubmissionID string `json:"submission_id,omitempty"`
}

// Channel is the message channel between the background worker and views.
// Views that are not listening when a message is posted do not receive it.
type Channel struct {
	hub notify.Hub[Message]
}

// NewChannel creates an empty channel.
func NewChannel() *Channel {
	return &Channel{}
}

// Post delivers msg to every current listener.
func (c *Channel) Post(msg Message) {
	c.hub.Publish(msg)
}

// Listen registers fn for every posted message.
func (c *Channel) Listen(fn func(Message)) (unsubscribe func()) {
	return c.hub.Subscribe(fn)
}
