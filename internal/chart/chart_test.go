package chart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	valid := map[string]string{
		"x.png":                  "x.png",
		"plots/salary_dist.png":  "salary_dist.png",
		"../../etc/chart.svg":    "chart.svg",
		`plots\win.pdf`:          "win.pdf",
		"Dept-Count.v2.jpg":      "Dept-Count.v2.jpg",
	}
	for in, want := range valid {
		got, err := SanitizeName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "plots/", "x.exe", "x.png.sh", ".hidden.png", "a b.png", "x.PNG"} {
		_, err := SanitizeName(in)
		assert.ErrorIs(t, err, ErrInvalidName, in)
	}
}

func TestStore_Save(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "plots"))
	require.NoError(t, err)

	fig := NewFigure(4, 3)
	assert.True(t, fig.Empty())
	require.NoError(t, fig.Hist([]float64{1, 2, 2, 3, 3, 3, 4}, 4))
	fig.SetTitle("Salary Distribution")
	assert.False(t, fig.Empty())

	name, err := store.Save("abc12345", "plots/salary.png", fig)
	require.NoError(t, err)
	assert.Equal(t, "abc12345_salary.png", name)

	path, err := store.Path(name)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	_, err = store.Save("abc12345", "salary.png", fig)
	assert.Error(t, err, "existing artifacts are never overwritten")

	svg, err := store.Save("abc12345", "salary.svg", fig)
	require.NoError(t, err)
	assert.Equal(t, "abc12345_salary.svg", svg)
}

func TestStore_PathRejectsTraversal(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../x.png", "a/b.png", "x.txt"} {
		_, err := store.Path(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestFigure_Kinds(t *testing.T) {
	fig := NewFigure(0, 0)
	require.NoError(t, fig.Bar([]string{"HR", "Sales"}, []float64{3, 5}))
	require.NoError(t, fig.Line([]float64{0, 1}, []float64{1, 2}))
	require.NoError(t, fig.Scatter([]float64{0, 1}, []float64{1, 2}))
	require.NoError(t, fig.Box([]string{"a", "b"}, [][]float64{{1, 2, 3}, {4, 5, 6}}))

	assert.Error(t, fig.Bar([]string{"a"}, []float64{1, 2}))
	assert.Error(t, fig.Hist(nil, 5))
	assert.Error(t, fig.Scatter([]float64{1}, nil))
	assert.Error(t, fig.Box(nil, [][]float64{{}}))
}
