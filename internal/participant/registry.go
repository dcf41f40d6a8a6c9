package participant

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

var (
	ErrUnknownParticipant = fmt.Errorf("unknown participant")
	ErrIdentityMismatch   = fmt.Errorf("access key does not match participant identity")
)

// Participant is one of the two fixed identities sharing the task set.
type Participant struct {
	ID      string
	Name    string
	Email   string
	keyHash string // hex sha256 of the participant's access key
}

// Registry holds exactly the two configured participants. The design assumes
// two writers; nothing here scales to arbitrary membership.
type Registry struct {
	participants []Participant
}

// New builds a registry from the two configured participants. Key hashes are
// hex-encoded SHA-256 digests of the access keys.
func New(a, b Participant) *Registry {
	return &Registry{participants: []Participant{a, b}}
}

// NewParticipant constructs a Participant with its access-key hash.
func NewParticipant(id, name, email, keyHash string) Participant {
	return Participant{
		ID:      id,
		Name:    name,
		Email:   email,
		keyHash: strings.ToLower(strings.TrimSpace(keyHash)),
	}
}

func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Get returns the participant with the given id.
func (r *Registry) Get(id string) (Participant, bool) {
	for _, p := range r.participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// IDs returns both participant ids, which double as the partition names of
// the remote store.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.participants))
	for i, p := range r.participants {
		ids[i] = p.ID
	}
	return ids
}

// Others returns every participant except actor. For this two-writer system
// that is exactly the one other participant.
func (r *Registry) Others(actor string) []Participant {
	var others []Participant
	for _, p := range r.participants {
		if p.ID != actor {
			others = append(others, p)
		}
	}
	return others
}

// Authenticate verifies that the presented access key belongs to the claimed
// participant id. A key that hashes correctly for a different participant is
// an identity mismatch, not a grant.
func (r *Registry) Authenticate(id, accessKey string) (Participant, error) {
	p, ok := r.Get(id)
	if !ok {
		return Participant{}, ErrUnknownParticipant
	}
	presented := HashKey(accessKey)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(p.keyHash)) != 1 {
		return Participant{}, ErrIdentityMismatch
	}
	return p, nil
}
