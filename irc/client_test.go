package irc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPingExpiry(t *testing.T) {
	c := &Client{}

	// Zero lastPong is long past any timeout.
	assert.True(t, c.pingExpired(time.Minute))

	c.handlePong(nil)
	assert.False(t, c.pingExpired(time.Minute))
	assert.True(t, c.pingExpired(-time.Second))
}
