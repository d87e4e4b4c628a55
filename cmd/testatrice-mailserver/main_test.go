package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := &options{
		hostname:       "test",
		smtpAddr:       "127.0.0.1:0",
		activationAddr: "127.0.0.1:0",
		resetAddr:      "127.0.0.1:0",
		mailLog:        filepath.Join(t.TempDir(), "mails.txt"),
	}

	done := make(chan error, 1)
	go func() { done <- run(ctx, opts) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	opts := &options{
		smtpAddr:       "256.0.0.1:25",
		activationAddr: "127.0.0.1:0",
		resetAddr:      "127.0.0.1:0",
	}

	err := run(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen on 256.0.0.1:25")
}

func TestNewCmd_Defaults(t *testing.T) {
	cmd := newCmd()

	smtp, err := cmd.Flags().GetString("smtp")
	require.NoError(t, err)
	assert.Equal(t, ":25", smtp)

	act, err := cmd.Flags().GetString("activation")
	require.NoError(t, err)
	assert.Equal(t, ":1110", act)

	reset, err := cmd.Flags().GetString("reset")
	require.NoError(t, err)
	assert.Equal(t, ":1111", reset)
}
