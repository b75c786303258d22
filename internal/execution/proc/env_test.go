package proc_test

import (
	"testing"

	"github.com/lambda-feedback/procpipe/internal/execution/proc"
	"github.com/stretchr/testify/assert"
)

func TestEnvPlus(t *testing.T) {
	t.Setenv("PROCPIPE_KEEP", "kept")
	t.Setenv("PROCPIPE_OVERRIDE", "old")

	env := proc.EnvPlus(map[string]string{
		"PROCPIPE_OVERRIDE": "new",
		"PROCPIPE_ADDED":    "added",
	})

	assert.Equal(t, "kept", env["PROCPIPE_KEEP"])
	assert.Equal(t, "new", env["PROCPIPE_OVERRIDE"])
	assert.Equal(t, "added", env["PROCPIPE_ADDED"])
}

func TestEnvPlus_Nil(t *testing.T) {
	t.Setenv("PROCPIPE_KEEP", "kept")

	env := proc.EnvPlus(nil)

	assert.Equal(t, "kept", env["PROCPIPE_KEEP"])
}
