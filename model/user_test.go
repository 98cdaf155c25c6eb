package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUserID(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeUserID(" Alice@Example.COM "))
	assert.Equal(t, "", NormalizeUserID("   "))
	assert.Equal(t, "bob", NormalizeUserID("BOB"))
}

func TestDisplayNameFallback(t *testing.T) {
	u := &User{UserID: "alice@example.com", Name: "Alice A", Username: "alice"}
	assert.Equal(t, "alice", u.DisplayName())

	u.Username = ""
	assert.Equal(t, "Alice A", u.DisplayName())

	u.Name = ""
	assert.Equal(t, "alice@example.com", u.DisplayName())

	var nilUser *User
	assert.Equal(t, "", nilUser.DisplayName())
}
