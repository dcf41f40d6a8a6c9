package pushsubscription

import "time"

// Subscription is one browser push endpoint registered by a participant.
// Push delivery for a recipient targets every subscription they own.
type Subscription struct {
	ID          string    `yaml:"id"`
	Participant string    `yaml:"participant"`
	Endpoint    string    `yaml:"endpoint"`
	P256dhKey   string    `yaml:"p256dh_key"`
	AuthKey     string    `yaml:"auth_key"`
	CreatedAt   time.Time `yaml:"created_at"`
}
