package proc_test

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/lambda-feedback/procpipe/internal/execution/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPipeline(t *testing.T, cmds ...*proc.Cmd) *proc.Pipeline {
	t.Helper()

	p, err := proc.NewPipeline(cmds...)
	require.NoError(t, err)

	return p
}

func catPipeline(t *testing.T, stages int) *proc.Pipeline {
	t.Helper()

	cmds := make([]*proc.Cmd, stages)
	for i := range cmds {
		cmds[i] = mustCmd(t, "cat")
	}

	return mustPipeline(t, cmds...)
}

func randomBytes(size int) []byte {
	data := make([]byte, size)

	rnd := rand.New(rand.NewSource(int64(size)))
	_, _ = rnd.Read(data)

	return data
}

func TestNewPipeline_FailsWithoutCommands(t *testing.T) {
	_, err := proc.NewPipeline()
	assert.ErrorIs(t, err, proc.ErrInvalidArgument)

	_, err = proc.NewPipeline(mustCmd(t, "cat"), nil)
	assert.ErrorIs(t, err, proc.ErrInvalidArgument)
}

func TestPipeline_Run_DoesNotDeadlock(t *testing.T) {
	sizes := []int{0, 1, 511, 4095, 4096, 4097, 65536, 65537, 1 << 20, 4 << 20}

	for _, stages := range []int{1, 2, 5} {
		for _, size := range sizes {
			t.Run(fmt.Sprintf("%d stages %d bytes", stages, size), func(t *testing.T) {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				data := randomBytes(size)

				out, err := catPipeline(t, stages).Run(ctx, data)
				require.NoError(t, err)

				require.Equal(t, len(data), len(out))
				assert.True(t, bytes.Equal(data, out), "output differs from input")
			})
		}
	}
}

func TestPipeline_ReturnCodes(t *testing.T) {
	p := mustPipeline(t,
		mustCmd(t, "echo", "hello"),
		mustCmd(t, "sh", "-c", "cat >/dev/null; exit 7"),
		mustCmd(t, "cat"),
	)

	running, err := p.Popen(proc.PopenConfig{})
	require.NoError(t, err)

	_, _, err = running.Communicate(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 7, 0}, running.Wait())
	assert.Equal(t, []int{0, 7, 0}, running.ReturnCodes())

	code, ok := running.ReturnCode()
	require.True(t, ok)
	assert.Equal(t, 0, code)
}

func TestPipeline_Run_ReportsFailedStage(t *testing.T) {
	p := mustPipeline(t,
		mustCmd(t, "echo", "hello"),
		mustCmd(t, "sh", "-c", "cat >/dev/null; echo broken >&2; exit 7"),
		mustCmd(t, "cat"),
	)

	_, err := p.Run(context.Background(), nil)

	cmdErr, ok := proc.AsCommandError(err)
	require.True(t, ok)

	assert.Equal(t, 7, cmdErr.ExitCode)
	assert.Equal(t, []int{0, 7, 0}, cmdErr.ReturnCodes)
	assert.Equal(t, "broken\n", string(cmdErr.Stderr))
}

func TestPipeline_StreamIsolation(t *testing.T) {
	p := mustPipeline(t, mustCmd(t, "echo", "hello"), mustCmd(t, "cat"))

	running, err := p.Popen(proc.PopenConfig{})
	require.NoError(t, err)

	stdout, stderr, err := running.Communicate(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "hello\n", string(stdout))
	assert.Empty(t, stderr)
}

func TestPipeline_MergesStderr(t *testing.T) {
	for _, stages := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("%d following stages", stages), func(t *testing.T) {
			cmds := []*proc.Cmd{mustCmd(t, "sh", "-c", "echo oops >&2; echo data")}
			for range stages {
				cmds = append(cmds, mustCmd(t, "cat"))
			}

			running, err := mustPipeline(t, cmds...).Popen(proc.PopenConfig{})
			require.NoError(t, err)

			stdout, stderr, err := running.Communicate(context.Background(), nil)
			require.NoError(t, err)

			assert.Equal(t, "data\n", string(stdout))
			assert.Equal(t, "oops\n", string(stderr))
		})
	}
}

func TestPipeline_RunOutput_ReturnsMergedStderr(t *testing.T) {
	p := mustPipeline(t,
		mustCmd(t, "sh", "-c", "echo first >&2; echo data"),
		mustCmd(t, "sh", "-c", "cat; echo second >&2"),
	)

	stdout, stderr, err := p.RunOutput(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "data\n", string(stdout))
	assert.Contains(t, string(stderr), "first\n")
	assert.Contains(t, string(stderr), "second\n")
}

func TestPipeline_StageKeepsOwnStderr(t *testing.T) {
	quiet, err := proc.New(
		[]string{"sh", "-c", "echo hidden >&2; echo data"},
		proc.WithStderr(proc.DevNull),
	)
	require.NoError(t, err)

	loud := mustCmd(t, "sh", "-c", "cat; echo visible >&2")

	running, err := quiet.Pipe(loud).Popen(proc.PopenConfig{})
	require.NoError(t, err)

	stdout, stderr, err := running.Communicate(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "data\n", string(stdout))
	assert.Equal(t, "visible\n", string(stderr))
}

func TestPipeline_FanIn(t *testing.T) {
	data := randomBytes(1 << 20)

	for _, stages := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("%d stages", stages), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			cmds := make([]*proc.Cmd, stages)
			for i := range cmds {
				cmds[i] = mustCmd(t, "head", "-c", "100")
			}

			running, err := mustPipeline(t, cmds...).Popen(proc.PopenConfig{})
			require.NoError(t, err)

			stdout, _, err := running.Communicate(ctx, data)
			require.NoError(t, err)

			require.Len(t, stdout, 100)
			assert.True(t, bytes.Equal(data[:100], stdout))
		})
	}
}

func TestPipeline_UpdateAppliesDefaultsToStages(t *testing.T) {
	dir := realDir(t)
	own := realDir(t)

	withDir, err := proc.New([]string{"sh", "-c", "pwd; cat"}, proc.WithDir(own))
	require.NoError(t, err)

	p := mustPipeline(t, mustCmd(t, "pwd"), withDir)
	updated := p.Update(proc.WithDir(dir))

	out, err := updated.Run(context.Background(), nil)
	require.NoError(t, err)

	// the second stage keeps its own directory and forwards the first
	assert.Equal(t, own+"\n"+dir+"\n", string(out))

	// the original descriptor is untouched
	out, err = p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.NotContains(t, string(out), dir)
}

func TestPipeline_Pipe(t *testing.T) {
	p := mustPipeline(t, mustCmd(t, "echo", "hello"))

	extended := p.Pipe(mustCmd(t, "cat")).Pipe(catPipeline(t, 2))

	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 4, extended.Len())

	out, err := extended.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestPipeline_String(t *testing.T) {
	p := mustCmd(t, "echo", "hello world").Pipe(mustCmd(t, "cat"))

	assert.Equal(t, "echo 'hello world' | cat", p.String())
}
