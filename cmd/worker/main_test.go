package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"CareVault/config"
)

func TestRunWithoutBroker(t *testing.T) {
	err := run(&config.Config{}, zap.NewNop())
	assert.ErrorContains(t, err, "RABBITMQ_URL")
}
