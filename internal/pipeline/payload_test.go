package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyJSON_SingleMapping(t *testing.T) {
	t.Parallel()

	p := ClassifyJSON([]byte(`{"title":"Example","summary":"ok"}`))
	require.Equal(t, PayloadSingle, p.Kind())
	require.Len(t, p.Candidates(), 1)
	require.Equal(t, "Example", p.Candidates()[0]["title"])
}

func TestClassifyJSON_SequenceOfMappings(t *testing.T) {
	t.Parallel()

	p := ClassifyJSON([]byte(`[{"title":"a"},{"title":"b"}]`))
	require.Equal(t, PayloadMulti, p.Kind())
	require.Len(t, p.Candidates(), 2)
}

func TestClassifyJSON_MalformedShapes(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`"bare string"`:  "string",
		`42`:             "number",
		`null`:           "null",
		`true`:           "boolean",
		`[1,2]`:          "sequence containing number",
		`[{"a":1},"x"]`:  "sequence containing string",
		`{not even json`: "invalid JSON",
	}
	for raw, shape := range cases {
		p := ClassifyJSON([]byte(raw))
		require.Equal(t, PayloadMalformed, p.Kind(), "input %s", raw)
		require.Equal(t, shape, p.Shape(), "input %s", raw)
	}
}

func TestClassifyValue_EmptySequenceIsMulti(t *testing.T) {
	t.Parallel()

	p := ClassifyValue([]any{})
	require.Equal(t, PayloadMulti, p.Kind())
	require.Empty(t, p.Candidates())
}
