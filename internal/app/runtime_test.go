package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	_ "github.com/annotation-backoffice/backoffice/testing"
)

func TestInTestModeFromBootstrap(t *testing.T) {
	assert.True(t, InTestMode())
}
