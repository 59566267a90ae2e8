package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btraven00/tinkuy/pkg/xref"
)

func TestKnown(t *testing.T) {
	m, ok := Known("ERP127673")
	require.True(t, ok)
	assert.Equal(t, "PRJEB43688", m.BioProjectID)
	assert.Equal(t, "E-MTAB-10220", m.GEOID)
	assert.Equal(t, "known", m.Source)

	// Callers get a copy, not the table entry.
	m.BioProjectID = "mutated"
	again, ok := Known("ERP127673")
	require.True(t, ok)
	assert.Equal(t, "PRJEB43688", again.BioProjectID)

	_, ok = Known("SRP000000")
	assert.False(t, ok)
}

func TestStorePutGet(t *testing.T) {
	store := NewStore("")

	m, ok := store.Get("SRP324458")
	assert.False(t, ok)
	assert.Nil(t, m)

	store.Put(&xref.Mapping{Accession: "SRP324458", BioProjectID: "PRJNA738600"})
	assert.Equal(t, 1, store.Len())

	m, ok = store.Get("SRP324458")
	require.True(t, ok)
	assert.Equal(t, "PRJNA738600", m.BioProjectID)

	// First write wins.
	store.Put(&xref.Mapping{Accession: "SRP324458", BioProjectID: "PRJNA000000"})
	m, _ = store.Get("SRP324458")
	assert.Equal(t, "PRJNA738600", m.BioProjectID)

	// Nil and blank accessions are ignored.
	store.Put(nil)
	store.Put(&xref.Mapping{BioProjectID: "PRJNA111111"})
	assert.Equal(t, 1, store.Len())
}

func TestStoreGetReturnsCopy(t *testing.T) {
	store := NewStore("")
	store.Put(&xref.Mapping{Accession: "ERP127673", BioProjectID: "PRJEB43688"})

	m, ok := store.Get("ERP127673")
	require.True(t, ok)

	m.BioProjectID = "mutated"

	again, ok := store.Get("ERP127673")
	require.True(t, ok)
	assert.Equal(t, "PRJEB43688", again.BioProjectID)
}

func TestStoreSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xrefs", "cache.json")

	store := NewStore(path)
	store.Put(&xref.Mapping{Accession: "SRP324458", BioProjectID: "PRJNA738600", GEOID: "GSE178360"})
	store.Put(&xref.Mapping{Accession: "ERP127673", BioProjectID: "PRJEB43688"})

	require.NoError(t, store.Save())

	loaded := NewStore(path)
	require.NoError(t, loaded.Load())
	assert.Equal(t, 2, loaded.Len())

	m, ok := loaded.Get("SRP324458")
	require.True(t, ok)
	assert.Equal(t, "PRJNA738600", m.BioProjectID)
	assert.Equal(t, "GSE178360", m.GEOID)
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope.json"))
	assert.NoError(t, store.Load())
	assert.Equal(t, 0, store.Len())
}

func TestStoreLoadKeepsMemoryEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ERP127673":{"bioproject_id":"PRJEB00000"}}`), 0o644))

	store := NewStore(path)
	store.Put(&xref.Mapping{Accession: "ERP127673", BioProjectID: "PRJEB43688"})

	require.NoError(t, store.Load())

	m, ok := store.Get("ERP127673")
	require.True(t, ok)
	assert.Equal(t, "PRJEB43688", m.BioProjectID)
}

func TestStoreLoadFillsAccession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"SRP324458":{"bioproject_id":"PRJNA738600"}}`), 0o644))

	store := NewStore(path)
	require.NoError(t, store.Load())

	m, ok := store.Get("SRP324458")
	require.True(t, ok)
	assert.Equal(t, "SRP324458", m.Accession)
}

func TestStoreSaveWithoutPath(t *testing.T) {
	store := NewStore("")
	store.Put(&xref.Mapping{Accession: "ERP127673", BioProjectID: "PRJEB43688"})
	assert.NoError(t, store.Save())
}

func TestStoreSaveSkipsUnmodified(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	store := NewStore(path)
	require.NoError(t, store.Save())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "Save with no entries should not create a file")
}
