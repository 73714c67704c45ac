package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Revision int      `json:"revision"`
	Items    []string `json:"items"`
}

func (d *testDoc) GetRevision() int    { return d.Revision }
func (d *testDoc) SetRevision(rev int) { d.Revision = rev }

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	var doc testDoc
	corrupt, err := Load(path, &doc)
	require.NoError(t, err)
	assert.False(t, corrupt)
	assert.Equal(t, 0, doc.Revision)
	assert.Empty(t, doc.Items)
}

func TestLoadCorruptFileBacksUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var doc testDoc
	corrupt, err := Load(path, &doc)
	require.NoError(t, err)
	assert.True(t, corrupt)

	// Original is gone, backup with .bad. suffix remains.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), ".bad.")
}

func TestWriteThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	in := testDoc{Revision: 7, Items: []string{"a", "b"}}
	require.NoError(t, Write(path, &in))

	var out testDoc
	corrupt, err := Load(path, &out)
	require.NoError(t, err)
	assert.False(t, corrupt)
	assert.Equal(t, in, out)

	// The on-disk bytes are complete, valid JSON.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestUpdateIncrementsRevision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	newDoc := func() Revisioned { return &testDoc{} }
	err := Update(path, newDoc, func(doc Revisioned) error {
		doc.(*testDoc).Items = append(doc.(*testDoc).Items, "first")
		return nil
	})
	require.NoError(t, err)

	var doc testDoc
	_, err = Load(path, &doc)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Revision)
	assert.Equal(t, []string{"first"}, doc.Items)

	err = Update(path, newDoc, func(doc Revisioned) error {
		doc.(*testDoc).Items = append(doc.(*testDoc).Items, "second")
		return nil
	})
	require.NoError(t, err)

	doc = testDoc{}
	_, err = Load(path, &doc)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Revision)
	assert.Equal(t, []string{"first", "second"}, doc.Items)
}

func TestUpdateFirstWriteCreatesRevisionOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	err := Update(path, func() Revisioned { return &testDoc{} }, func(doc Revisioned) error {
		return nil
	})
	require.NoError(t, err)

	var doc testDoc
	_, err = Load(path, &doc)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Revision)
}
