package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/TheMichaelB/blockbox/internal/content"
	"github.com/TheMichaelB/blockbox/internal/registry"
	"github.com/TheMichaelB/blockbox/internal/state"
	"github.com/TheMichaelB/blockbox/test/testutil"
)

func BenchmarkLocalContentPut(b *testing.B) {
	store, err := content.NewLocalStore(b.TempDir(), testutil.NewTestLogger())
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	files := testutil.GenerateFiles(b.N, 4096)

	b.SetBytes(4096)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := store.Put(ctx, files[i].Data, content.Metadata{Name: files[i].Name}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLocalContentGet(b *testing.B) {
	store, err := content.NewLocalStore(b.TempDir(), testutil.NewTestLogger())
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	id, err := store.Put(ctx, testutil.AllBytes(64*1024), content.Metadata{Name: "blob"})
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(64 * 1024)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := store.Get(ctx, id); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRegistryAdd measures one persisted add per iteration against each
// file-backed registry store, with a partition that grows as it runs.
func BenchmarkRegistryAdd(b *testing.B) {
	backends := map[string]func(dir string) (state.Store, error){
		"json": func(dir string) (state.Store, error) {
			return state.NewJSONStore(dir, testutil.NewTestLogger())
		},
		"sqlite": func(dir string) (state.Store, error) {
			return state.NewSQLiteStore(filepath.Join(dir, "registry.db"), testutil.NewTestLogger())
		},
		"bolt": func(dir string) (state.Store, error) {
			return state.NewBoltStore(filepath.Join(dir, "registry.bolt"), testutil.NewTestLogger())
		},
	}

	for name, open := range backends {
		b.Run(name, func(b *testing.B) {
			store, err := open(b.TempDir())
			if err != nil {
				b.Fatal(err)
			}
			defer store.Close()

			reg := registry.New(store, testutil.NewTestLogger())
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				rec := testutil.SampleRecord("0xbench", fmt.Sprintf("f%d.txt", i), int64(i))
				if err := reg.Add(ctx, rec); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRegistryStats(b *testing.B) {
	for _, count := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("%dRecords", count), func(b *testing.B) {
			reg := registry.New(state.NewMockStore(), testutil.NewTestLogger())
			ctx := context.Background()

			for i := 0; i < count; i++ {
				rec := testutil.SampleRecord("0xbench", fmt.Sprintf("f%d.txt", i), int64(i))
				if err := reg.Add(ctx, rec); err != nil {
					b.Fatal(err)
				}
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := reg.Stats(ctx, "0xbench"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
