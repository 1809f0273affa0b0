package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbabilityVectorArgMax(t *testing.T) {
	assert.Equal(t, 0, ProbabilityVector{0.9, 0.05, 0.05}.ArgMax())
	assert.Equal(t, 2, ProbabilityVector{0.1, 0.2, 0.7}.ArgMax())
	assert.Equal(t, 0, ProbabilityVector{0.5, 0.5}.ArgMax(), "ties go to the lowest index")
}

func TestProbabilityVectorValidate(t *testing.T) {
	assert.NoError(t, ProbabilityVector{0.9, 0.05, 0.05}.Validate(3))

	err := ProbabilityVector{0.5, 0.5}.Validate(3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClassCountMismatch))
	assert.Equal(t, KindInvariant, KindOf(err))

	assert.Error(t, ProbabilityVector{1.2, -0.2}.Validate(2))
	assert.Error(t, ProbabilityVector{0.3, 0.3}.Validate(2))
}

func TestNewClassTable(t *testing.T) {
	table, err := NewClassTable([]string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, "B", table.Name(1))

	names := table.Names()
	names[0] = "mutated"
	assert.Equal(t, "A", table.Name(0))

	for _, bad := range [][]string{nil, {"A", "A"}, {"A", " "}} {
		_, err := NewClassTable(bad)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidClassTable))
		assert.Equal(t, KindConfiguration, KindOf(err))
	}
}

func TestLoadClassTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "class_names.json")
	require.NoError(t, os.WriteFile(path, []byte(`["Bacterial Leaf Blight","Brown Spot","Leaf Smut"]`), 0o644))

	table, err := LoadClassTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bacterial Leaf Blight", "Brown Spot", "Leaf Smut"}, table.Names())

	_, err = LoadClassTable(filepath.Join(dir, "missing.json"))
	assert.Equal(t, KindConfiguration, KindOf(err))

	require.NoError(t, os.WriteFile(path, []byte(`{"not":"a list"}`), 0o644))
	_, err = LoadClassTable(path)
	assert.Equal(t, KindConfiguration, KindOf(err))
}
