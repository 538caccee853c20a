package countries

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/pubmed-harvester/internal/domain"
)

func TestCatalog_Resolve(t *testing.T) {
	catalog, err := New([]Entry{
		{Name: "Japan"},
		{Name: "Nigeria"},
		{Name: "Niger"},
		{Name: "United States", Aliases: []string{"USA"}},
	})
	require.NoError(t, err)

	tests := []struct {
		name        string
		affiliation string
		want        string
		found       bool
	}{
		{"canonical name", "Dept. of Biology, University of Tokyo, Japan", "Japan", true},
		{"case-insensitive", "BOSTON, USA.", "United States", true},
		{"alias", "Harvard Medical School, Boston, MA, USA", "United States", true},
		{"specific before general", "University of Lagos, Nigeria", "Nigeria", true},
		{"general still resolves", "Universite Abdou Moumouni, Niamey, Niger", "Niger", true},
		{"no match", "Institute of Somewhere", "", false},
		{"empty affiliation", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := catalog.Resolve(tt.affiliation)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalog_Resolve_FirstMatchWins(t *testing.T) {
	// Substring matching is order-sensitive: an earlier entry wins even when a
	// later one would be the better answer.
	catalog, err := New([]Entry{
		{Name: "Japan"},
		{Name: "Switzerland"},
	})
	require.NoError(t, err)

	got, ok := catalog.Resolve("Research on the Japanese Alps, Bern, Switzerland")
	require.True(t, ok)
	assert.Equal(t, "Japan", got)
}

func TestCatalog_Resolve_EarlierPrefixEntryShadowsLonger(t *testing.T) {
	catalog, err := New([]Entry{
		{Name: "Japan"},
		{Name: "Japanese Alps"},
	})
	require.NoError(t, err)

	got, ok := catalog.Resolve("Japanese Alps University")
	require.True(t, ok)
	assert.Equal(t, "Japan", got)
}

func TestNew(t *testing.T) {
	t.Run("rejects empty name", func(t *testing.T) {
		_, err := New([]Entry{{Name: "France"}, {Name: "  "}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("drops blank aliases", func(t *testing.T) {
		catalog, err := New([]Entry{{Name: "Spain", Aliases: []string{"", "España"}}})
		require.NoError(t, err)
		assert.Equal(t, []string{"España"}, catalog.Entries()[0].Aliases)
	})

	t.Run("entries are copied", func(t *testing.T) {
		catalog, err := New([]Entry{{Name: "Peru", Aliases: []string{"Peru"}}})
		require.NoError(t, err)

		entries := catalog.Entries()
		entries[0].Name = "Mutated"
		entries[0].Aliases[0] = "Mutated"

		assert.Equal(t, "Peru", catalog.Entries()[0].Name)
		assert.Equal(t, "Peru", catalog.Entries()[0].Aliases[0])
	})
}

func TestDefault(t *testing.T) {
	catalog := Default()
	require.Greater(t, catalog.Len(), 50)

	tests := []struct {
		affiliation string
		want        string
	}{
		{"Ahmadu Bello University, Zaria, Nigeria", "Nigeria"},
		{"Port Moresby, Papua New Guinea", "Papua New Guinea"},
		{"Juba, South Sudan", "South Sudan"},
		{"Khartoum, Sudan", "Sudan"},
		{"Santo Domingo, Dominican Republic", "Dominican Republic"},
		{"Queen's University Belfast, Northern Ireland", "United Kingdom"},
		{"Trinity College Dublin, Ireland", "Ireland"},
		{"Seoul National University, Seoul, Republic of Korea", "South Korea"},
		{"Pyongyang, Democratic People's Republic of Korea", "North Korea"},
		{"Kinshasa, Democratic Republic of the Congo", "Democratic Republic of the Congo"},
		{"Stanford University, Stanford, CA, USA", "United States"},
		{"Indiana University School of Medicine, Indianapolis, IN, USA", "United States"},
		{"Indiana University, Bloomington", "United States"},
		{"All India Institute of Medical Sciences, New Delhi, India", "India"},
		{"Universita degli Studi di Perugia, Perugia", "Italy"},
		{"Universidad Peruana Cayetano Heredia, Lima, Peru", "Peru"},
	}

	for _, tt := range tests {
		t.Run(tt.affiliation, func(t *testing.T) {
			got, ok := catalog.Resolve(tt.affiliation)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "countries.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"name":"Chile","aliases":["Chili"]}]`), 0o600))

		catalog, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 1, catalog.Len())

		got, ok := catalog.Resolve("Santiago, chili")
		require.True(t, ok)
		assert.Equal(t, "Chile", got)
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "countries.yaml")
		content := "- name: Kenya\n  aliases: [Nairobi]\n- name: Ghana\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		catalog, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2, catalog.Len())

		got, ok := catalog.Resolve("University of Nairobi")
		require.True(t, ok)
		assert.Equal(t, "Kenya", got)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.json"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

		_, err := Load(path)
		require.Error(t, err)
	})
}
