package definition_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lambda-feedback/procpipe/internal/execution/definition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const definitions = `
pipelines:
  shout:
    description: upper-cases its input
    stages:
      - argv: [tr, a-z, A-Z]
      - argv: [cat]
  greet:
    env:
      GREETING: hello
    stages:
      - argv: ['echo "$GREETING $NAME"']
        shell: true
        env:
          NAME: world
  quiet:
    stages:
      - argv: [sh, -c, "echo hidden >&2; echo shown"]
        stderr: devnull
`

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pipelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	catalog, err := definition.Load(writeFile(t, definitions))
	require.NoError(t, err)

	assert.Equal(t, 3, catalog.Len())

	entries := catalog.Entries()
	require.Len(t, entries, 3)

	assert.Equal(t, "greet", entries[0].Name)
	assert.Equal(t, "quiet", entries[1].Name)
	assert.Equal(t, "shout", entries[2].Name)
	assert.Equal(t, "upper-cases its input", entries[2].Description)
	assert.Equal(t, "tr a-z A-Z | cat", entries[2].Command)
}

func TestLoad_BuildsRunnablePipelines(t *testing.T) {
	catalog, err := definition.Load(writeFile(t, definitions))
	require.NoError(t, err)

	tests := []struct {
		name  string
		stdin string
		want  string
	}{
		{name: "shout", stdin: "hello", want: "HELLO"},
		{name: "greet", want: "hello world\n"},
		{name: "quiet", want: "shown\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := catalog.Get(tt.name)
			require.True(t, ok)

			out, err := p.Run(context.Background(), []byte(tt.stdin))
			require.NoError(t, err)

			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestLoad_ReadsParentEnvironmentAtRun(t *testing.T) {
	catalog, err := definition.Load(writeFile(t, `
pipelines:
  late:
    env:
      PROCPIPE_OVERRIDE: fixed
    stages:
      - argv: ['echo "$PROCPIPE_OVERRIDE $PROCPIPE_LATE"']
        shell: true
`))
	require.NoError(t, err)

	t.Setenv("PROCPIPE_LATE", "late")

	p, ok := catalog.Get("late")
	require.True(t, ok)

	out, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "fixed late\n", string(out))
}

func TestLoad_FailsForMissingFile(t *testing.T) {
	_, err := definition.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := definition.Parse(strings.NewReader("pipelines:\n  a:\n    stagez: []\n"))
	assert.Error(t, err)
}

func TestParse_FailsForEmptyDocument(t *testing.T) {
	_, err := definition.Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, definition.ErrNoDefinitions)
}

func TestFile_AddTo_Errors(t *testing.T) {
	tests := []struct {
		name string
		file definition.File
		want error
	}{
		{
			name: "no definitions",
			file: definition.File{},
			want: definition.ErrNoDefinitions,
		},
		{
			name: "no stages",
			file: definition.File{Pipelines: map[string]definition.Definition{
				"empty": {},
			}},
			want: definition.ErrNoStages,
		},
		{
			name: "invalid stderr",
			file: definition.File{Pipelines: map[string]definition.Definition{
				"bad": {Stages: []definition.Stage{{Argv: []string{"cat"}, Stderr: "file"}}},
			}},
			want: definition.ErrInvalidStderr,
		},
		{
			name: "invalid name",
			file: definition.File{Pipelines: map[string]definition.Definition{
				"no/slashes": {Stages: []definition.Stage{{Argv: []string{"cat"}}}},
			}},
			want: definition.ErrInvalidName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.file.AddTo(definition.NewCatalog())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCatalog_Add_RejectsDuplicates(t *testing.T) {
	catalog := definition.NewCatalog()

	p, err := definition.Definition{
		Stages: []definition.Stage{{Argv: []string{"cat"}}},
	}.Pipeline()
	require.NoError(t, err)

	require.NoError(t, catalog.Add("cat", p, ""))
	assert.ErrorIs(t, catalog.Add("cat", p, ""), definition.ErrDuplicateName)

	_, ok := catalog.Get("dog")
	assert.False(t, ok)
}
