package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "import", "rules", "history", "products", "serve"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}

func TestRulesSubcommands(t *testing.T) {
	var found []string
	for _, c := range rulesCmd.Commands() {
		found = append(found, c.Name())
	}
	assert.Contains(t, found, "apply")
	assert.Contains(t, found, "check")
}
