package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***@nova.io", MaskEmail("alice@nova.io"))
	assert.Equal(t, "b***", MaskEmail("bob"))
	assert.Equal(t, "", MaskEmail(""))
}
