package participant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	return New(
		NewParticipant("hades", "Hades", "hades@example.com", HashKey("llave-hades")),
		NewParticipant("reiger", "Reiger", "reiger@example.com", HashKey("llave-reiger")),
	)
}

func TestAuthenticate(t *testing.T) {
	r := testRegistry()

	p, err := r.Authenticate("hades", "llave-hades")
	require.NoError(t, err)
	assert.Equal(t, "hades", p.ID)
	assert.Equal(t, "Hades", p.Name)
}

func TestAuthenticateWrongKey(t *testing.T) {
	r := testRegistry()
	_, err := r.Authenticate("hades", "incorrecta")
	assert.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestAuthenticateCrossIdentity(t *testing.T) {
	r := testRegistry()
	// Reiger's valid key must not unlock Hades' identity.
	_, err := r.Authenticate("hades", "llave-reiger")
	assert.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestAuthenticateUnknownID(t *testing.T) {
	r := testRegistry()
	_, err := r.Authenticate("nobody", "llave-hades")
	assert.ErrorIs(t, err, ErrUnknownParticipant)
}

func TestOthers(t *testing.T) {
	r := testRegistry()
	others := r.Others("hades")
	require.Len(t, others, 1)
	assert.Equal(t, "reiger", others[0].ID)

	// An unknown actor gets everyone, which keeps fan-out safe if an event
	// ever arrives with a bad actor id.
	assert.Len(t, r.Others("nobody"), 2)
}

func TestIDs(t *testing.T) {
	assert.Equal(t, []string{"hades", "reiger"}, testRegistry().IDs())
}

func TestKeyHashNormalization(t *testing.T) {
	upper := NewParticipant("hades", "Hades", "hades@example.com", "  "+"ABCDEF"+"  ")
	assert.Equal(t, "abcdef", upper.keyHash)
}
