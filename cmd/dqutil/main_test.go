//go:build unit

package main

import (
	"bytes"
	"context"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestRun(t *testing.T) {
	t.Run("push then pop through the command line", func(t *testing.T) {
		// Prepare
		path := t.TempDir()
		var stdout, stderr bytes.Buffer
		base := []string{"--path", path, "--name", "q", "--rec-len", "2"}

		// Execute
		pushCode := run(context.Background(), append([]string{"push", "0102", "0304"}, base...), &stdout, &stderr)
		stdout.Reset()
		popCode := run(context.Background(), append([]string{"pop", "--count", "3"}, base...), &stdout, &stderr)

		// Check
		assert.Equal(t, 0, pushCode, "push exit code, stderr: %s", stderr.String())
		assert.Equal(t, 0, popCode, "pop exit code, stderr: %s", stderr.String())
		assert.Equal(t, "0102\n0304\nempty\n", stdout.String(), "records in order")

		stdout.Reset()
		assert.Equal(t, 0, run(context.Background(), append([]string{"size"}, base...), &stdout, &stderr), "size exit code")
		assert.Equal(t, "0\n", stdout.String(), "drained")
	})

	t.Run("push rejects records of the wrong length", func(t *testing.T) {
		// Prepare
		var stdout, stderr bytes.Buffer

		// Execute
		code := run(context.Background(),
			[]string{"push", "--path", t.TempDir(), "--name", "q", "--rec-len", "2", "010203"}, &stdout, &stderr)

		// Check
		assert.Equal(t, 1, code, "exit code")
		assert.Contains(t, stderr.String(), "wrong record length", "error")
	})

	t.Run("drive keeps FIFO order across blocks", func(t *testing.T) {
		// Prepare
		var stdout, stderr bytes.Buffer

		// Execute
		code := run(context.Background(),
			[]string{"drive", "--path", t.TempDir(), "--name", "q", "--max-block", "64", "--rounds", "50"}, &stdout, &stderr)

		// Check
		assert.Equal(t, 0, code, "exit code, stderr: %s", stderr.String())
		assert.Contains(t, stdout.String(), "ok pushed 1000 popped 1000", "report")
	})

	t.Run("bang moves every record exactly once", func(t *testing.T) {
		// Prepare
		var stdout, stderr bytes.Buffer

		// Execute
		code := run(context.Background(),
			[]string{"bang", "--path", t.TempDir(), "--name", "q", "--max-block", "256", "--count", "2000", "--workers", "4"},
			&stdout, &stderr)

		// Check
		assert.Equal(t, 0, code, "exit code, stderr: %s", stderr.String())
		assert.Equal(t, "ok 2000 records through 4 consumers, queue 0\n", stdout.String(), "report")
	})

	t.Run("negative count is rejected", func(t *testing.T) {
		var stdout, stderr bytes.Buffer

		code := run(context.Background(),
			[]string{"bang", "--path", t.TempDir(), "--name", "q", "--count", "-1"}, &stdout, &stderr)

		assert.Equal(t, 1, code, "exit code")
		assert.Contains(t, stderr.String(), "must not be negative", "error")
	})

	t.Run("missing name fails", func(t *testing.T) {
		var stdout, stderr bytes.Buffer

		code := run(context.Background(), []string{"size", "--path", t.TempDir()}, &stdout, &stderr)

		assert.Equal(t, 1, code, "exit code")
	})
}
