package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studygroup-backend/internal/config"
	"studygroup-backend/internal/lock"
)

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := rootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "worker", "migrate", "version"}, names)

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("no-workers"))
}

func TestRootCmd_Version(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "studygroup version "+Version+"\n", out.String())
}

func TestNewProvider(t *testing.T) {
	p, closeFn, err := newProvider(context.Background(), &config.Config{LLMProvider: "openai", LLMAPIKey: "k"})
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, "openai", p.Name())

	_, _, err = newProvider(context.Background(), &config.Config{LLMProvider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNewLocker_Local(t *testing.T) {
	l := newLocker(&config.Config{SessionLock: "local"}, nil)
	_, ok := l.(*lock.Local)
	assert.True(t, ok)
}
