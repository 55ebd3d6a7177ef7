package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	vars := map[string]any{
		"title":   "Add journal",
		"files":   7,
		"context": map[string]any{"repo": map[string]any{"name": "mailflow"}},
	}

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"no placeholders", "plain text", "plain text"},
		{"string", "Review ${title}", "Review Add journal"},
		{"number", "${files} files", "7 files"},
		{"dotted", "repo ${context.repo.name}", "repo mailflow"},
		{"repeated", "${title}/${title}", "Add journal/Add journal"},
		{"missing kept", "hello ${who}", "hello ${who}"},
		{"path through scalar", "${title.length}", "${title.length}"},
		{"dollar without braces", "$title", "$title"},
		{"empty", "", ""},
	}

	exp := New()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := exp.Expand(tc.in, vars)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExpand_Strict(t *testing.T) {
	exp := New(Strict())

	got, err := exp.Expand("${a} and ${b}", map[string]any{"a": 1})
	var undef *UndefinedError
	require.ErrorAs(t, err, &undef)
	assert.Equal(t, []string{"b"}, undef.Names)
	assert.Equal(t, "1 and ${b}", got)
	assert.Equal(t, "undefined variable: b", err.Error())

	_, err = exp.Expand("${x}${y}", nil)
	assert.EqualError(t, err, "undefined variables: x, y")

	got, err = exp.Expand("${a}", map[string]any{"a": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestExpandArgs(t *testing.T) {
	vars := map[string]any{"bucket": "logs", "n": 3}
	args := map[string]any{
		"path":   "s3://${bucket}/run",
		"limit":  10,
		"nested": map[string]any{"label": "${n} items"},
		"list":   []any{"${bucket}", 2},
	}

	got, err := New().ExpandArgs(args, vars)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"path":   "s3://logs/run",
		"limit":  10,
		"nested": map[string]any{"label": "3 items"},
		"list":   []any{"logs", 2},
	}, got)
	assert.Equal(t, "s3://${bucket}/run", args["path"], "input is not modified")

	none, err := New().ExpandArgs(nil, vars)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = New(Strict()).ExpandArgs(map[string]any{"p": "${missing}"}, vars)
	assert.ErrorContains(t, err, "arg p")
}

func TestLookup(t *testing.T) {
	vars := map[string]any{"a": map[string]any{"b": nil}}

	v, ok := Lookup(vars, "a.b")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = Lookup(vars, "a.c")
	assert.False(t, ok)
	_, ok = Lookup(nil, "a")
	assert.False(t, ok)
}
