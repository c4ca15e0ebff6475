package pkg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type evidenceRecord struct {
	From  string
	To    string
	Kind  string
	Flags uint8
}

func TestFileSpill(t *testing.T) {
	t.Run("NewFileSpill creates file under dir", func(t *testing.T) {
		dir := t.TempDir()

		spill, err := NewFileSpill[int](dir)
		require.NoError(t, err)
		defer spill.Close()

		require.Equal(t, dir, filepath.Dir(spill.Path()))
	})

	t.Run("empty dir falls back to default", func(t *testing.T) {
		spill, err := NewFileSpill[int]("")
		require.NoError(t, err)
		defer spill.Remove()

		require.Contains(t, spill.Path(), DefaultSpillDir)
	})

	t.Run("Append and Get", func(t *testing.T) {
		spill, err := NewFileSpill[string](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		require.NoError(t, spill.Append("first"))
		require.NoError(t, spill.Append("second"))

		val, err := spill.Get(1)
		require.NoError(t, err)
		require.Equal(t, "second", val)

		val, err = spill.Get(3)
		require.Error(t, err)
		require.Equal(t, "", val)
	})

	t.Run("AppendBatch and Range keep order", func(t *testing.T) {
		spill, err := NewFileSpill[evidenceRecord](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		records := []evidenceRecord{
			{From: "a.py", To: "b.py", Kind: "static"},
			{From: "b.py", To: "c.py", Kind: "runtime", Flags: 2},
			{From: "README.md", To: "c.py", Kind: "text"},
		}
		require.NoError(t, spill.AppendBatch(records))
		require.Equal(t, uint64(3), spill.Len())

		var collected []evidenceRecord
		require.NoError(t, spill.Range(func(_ uint64, item evidenceRecord) error {
			collected = append(collected, item)
			return nil
		}))
		require.Equal(t, records, collected)
	})

	t.Run("Range callback error stops iteration", func(t *testing.T) {
		spill, err := NewFileSpill[int](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		require.NoError(t, spill.AppendBatch([]int{1, 2, 3}))

		count := 0
		rangeErr := spill.Range(func(index uint64, _ int) error {
			count++
			if index == 1 {
				return errors.New("stop at index 1")
			}

			return nil
		})

		require.Error(t, rangeErr)
		require.Equal(t, 2, count)
	})

	t.Run("data survives Close", func(t *testing.T) {
		spill, err := NewFileSpill[int](t.TempDir())
		require.NoError(t, err)

		require.NoError(t, spill.Append(7))
		require.NoError(t, spill.Close())
		require.NoError(t, spill.Close())
		require.Error(t, spill.Append(8))

		val, err := spill.Get(0)
		require.NoError(t, err)
		require.Equal(t, 7, val)

		_, err = os.Stat(spill.Path())
		require.NoError(t, err)
	})

	t.Run("Remove deletes the backing file", func(t *testing.T) {
		spill, err := NewFileSpill[int](t.TempDir())
		require.NoError(t, err)

		require.NoError(t, spill.Append(1))
		require.NoError(t, spill.Remove())

		_, err = os.Stat(spill.Path())
		require.True(t, os.IsNotExist(err))
	})
}

func TestFileSpillEdgeCases(t *testing.T) {
	t.Run("empty range returns no items", func(t *testing.T) {
		spill, err := NewFileSpill[int](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		count := 0
		require.NoError(t, spill.Range(func(uint64, int) error {
			count++
			return nil
		}))
		require.Equal(t, 0, count)
	})

	t.Run("get on empty spill returns error", func(t *testing.T) {
		spill, err := NewFileSpill[int](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		_, err = spill.Get(0)
		require.Error(t, err)
	})

	t.Run("zero values round trip", func(t *testing.T) {
		spill, err := NewFileSpill[evidenceRecord](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		require.NoError(t, spill.Append(evidenceRecord{From: "x.py"}))
		require.NoError(t, spill.Append(evidenceRecord{From: "y.py", Kind: "static"}))

		val, err := spill.Get(0)
		require.NoError(t, err)
		require.Equal(t, evidenceRecord{From: "x.py"}, val)
	})
}

func BenchmarkAppend(b *testing.B) {
	spill, err := NewFileSpill[evidenceRecord](b.TempDir())
	if err != nil {
		b.Fatalf("failed to create filespill: %v", err)
	}
	defer spill.Close()

	rec := evidenceRecord{From: "pkg/a.py", To: "pkg/b.py", Kind: "static"}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = spill.Append(rec)
	}
}

func BenchmarkRange(b *testing.B) {
	spill, err := NewFileSpill[int](b.TempDir())
	if err != nil {
		b.Fatalf("failed to create filespill: %v", err)
	}
	defer spill.Close()

	for i := 0; i < 1000; i++ {
		_ = spill.Append(i)
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = spill.Range(func(uint64, int) error { return nil })
	}
}
