// internal/fixture/user_test.go
package fixture

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		u := NewUser()
		require.False(t, seen[u.Email], "duplicate e-mail %s", u.Email)
		seen[u.Email] = true
	}
}

func TestNewUserShape(t *testing.T) {
	u := NewUser()
	digits := regexp.MustCompile(`^[0-9]+$`)

	assert.Regexp(t, `^qa\.[0-9a-f]{10}@example\.com$`, u.Email)
	assert.True(t, digits.MatchString(u.Phone), u.Phone)
	assert.Len(t, u.Phone, 11)
	assert.True(t, digits.MatchString(u.CEP), u.CEP)
	assert.Len(t, u.CEP, 8)
	assert.Len(t, u.SSN, 9)
	assert.Equal(t, u.FirstName+" "+u.LastName, u.FullName())
}

func TestLookup(t *testing.T) {
	u := NewUser()
	for _, f := range Fields() {
		v, ok := u.Lookup(f)
		assert.True(t, ok, f)
		assert.NotEmpty(t, v, f)
	}
	email, _ := u.Lookup("email")
	assert.Equal(t, u.Email, email)

	_, ok := u.Lookup("shoeSize")
	assert.False(t, ok)
}
