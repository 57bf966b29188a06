package upstream

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDirSource_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alice.json", `{"role": "engineer", "years": 7}`)
	writeFile(t, dir, "bob.yml", "role: designer\nskills: [figma, research]\n")

	src := NewDirSource(dir)
	ctx := context.Background()

	p, err := src.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "engineer", p["role"])
	assert.EqualValues(t, 7, p["years"])

	p, err = src.Load(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "designer", p["role"])
	assert.Len(t, p["skills"], 2)
}

func TestDirSource_JSONWinsOverYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "carol.json", `{"source": "json"}`)
	writeFile(t, dir, "carol.yaml", "source: yaml\n")

	p, err := NewDirSource(dir).Load(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, "json", p["source"])
}

func TestDirSource_Missing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.json", `{}`)
	src := NewDirSource(dir)

	_, err := src.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrMissingUpstreamData)

	_, err = src.Load(context.Background(), "empty")
	assert.ErrorIs(t, err, ErrMissingUpstreamData)
}

func TestDirSource_RejectsPathTraversal(t *testing.T) {
	src := NewDirSource(t.TempDir())
	for _, id := range []string{"", "..", "../etc/passwd", `a\b`} {
		_, err := src.Load(context.Background(), id)
		require.Error(t, err, id)
		assert.NotErrorIs(t, err, ErrMissingUpstreamData, id)
	}
}

func TestDirSource_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", `{not json`)
	_, err := NewDirSource(dir).Load(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestMapSource(t *testing.T) {
	src := NewMapSource(map[string]Payload{"a": {"k": "v"}})

	p, err := src.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "v", p["k"])

	_, err = src.Load(context.Background(), "b")
	assert.ErrorIs(t, err, ErrMissingUpstreamData)

	src.Set("b", Payload{})
	_, err = src.Load(context.Background(), "b")
	assert.ErrorIs(t, err, ErrMissingUpstreamData, "empty payload counts as missing")
}
