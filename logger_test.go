package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatLog(t *testing.T) {
	assert.Equal(t, "login\n", formatLog("login"))
	assert.Equal(t, "login user_id=u1 ok=true\n", formatLog("login", "user_id", "u1", "ok", true))
	assert.Equal(t, "rate 100% dangling\n", formatLog("rate 100%", "dangling"))
}
