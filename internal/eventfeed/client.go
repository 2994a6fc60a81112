package eventfeed

import "tutorhub/backend/internal/models"

// Client is one subscriber to the live event feed of a session.
type Client interface {
	// GetUserID returns the user the connection was authenticated as.
	GetUserID() string
	// GetSessionID returns the session whose events the client receives.
	GetSessionID() string
	// GetSendChannel returns the channel the hub delivers events on.
	GetSendChannel() chan<- models.Event

	Run()
	Close()
}
