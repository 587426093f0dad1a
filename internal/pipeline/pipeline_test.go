package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/tools/go/packages"

	"github.com/funvibe/specialize/internal/cache"
	"github.com/funvibe/specialize/internal/diagnostics"
	"github.com/funvibe/specialize/internal/inspect/inspecttest"
)

const sizesSrc = `package sizes

type Class int

const (
	Small Class = iota
	Large
)

type S struct{}

type L struct{}

func Size[T any](n int) int { return n }
`

const sizesTable = `
dispatchers:
  - name: SizeOf
    operation: Size
    selector: {type: Class}
    rules:
      - {match: Small, type: S}
      - {match: Large, type: L}
`

type fixture struct {
	dir    string
	table  string
	output string
	loader *inspecttest.Loader
}

func setup(t *testing.T, tableSrc string) *fixture {
	t.Helper()
	dir := t.TempDir()
	write(t, filepath.Join(dir, "sizes.go"), sizesSrc)
	write(t, filepath.Join(dir, "dispatch.yaml"), tableSrc)
	pkg := inspecttest.Package(t, dir, "example.com/sizes", map[string]string{"sizes.go": sizesSrc})
	return &fixture{
		dir:    dir,
		table:  filepath.Join(dir, "dispatch.yaml"),
		output: filepath.Join(dir, "dispatch_gen.go"),
		loader: &inspecttest.Loader{Pkgs: []*packages.Package{pkg}},
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) run(opts Options) *PipelineContext {
	if opts.Loader == nil {
		opts.Loader = f.loader
	}
	return ForMode(opts.Mode).Run(NewContext(context.Background(), f.table, opts, zerolog.Nop()))
}

func TestGenerate(t *testing.T) {
	f := setup(t, sizesTable)

	ctx := f.run(Options{})
	if err := ctx.Result(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ctx.Written {
		t.Fatal("output not written")
	}

	data, err := os.ReadFile(f.output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src := string(data)
	for _, want := range []string{
		"// Source: dispatch.yaml",
		"func SizeOf(sel Class, args func() int) dispatch.Option[int] {",
		"return dispatch.Present(Size[L](a0))",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("output missing %q:\n%s", want, src)
		}
	}

	fp, err := cache.ReadFingerprint(f.output)
	if err != nil || fp != ctx.Fingerprint {
		t.Errorf("header fingerprint = %q (%v), want %q", fp, err, ctx.Fingerprint)
	}

	again := f.run(Options{})
	if again.Written {
		t.Error("identical output should not be rewritten")
	}
}

func TestGenerateUsesCache(t *testing.T) {
	f := setup(t, sizesTable)
	store, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	first := f.run(Options{Store: store})
	if err := first.Result(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Entry == nil || first.Entry.Rules != 2 {
		t.Fatalf("generation not recorded: %+v", first.Entry)
	}

	second := f.run(Options{Store: store})
	if !second.UpToDate {
		t.Fatal("second run should be up to date")
	}
	if len(f.loader.Calls) != 1 {
		t.Errorf("packages loaded %d times, want 1", len(f.loader.Calls))
	}
	if second.Entry.RunID != first.Entry.RunID {
		t.Errorf("cache hit returned run %s, want %s", second.Entry.RunID, first.Entry.RunID)
	}

	forced := f.run(Options{Store: store, Force: true})
	if forced.UpToDate || len(f.loader.Calls) != 2 {
		t.Error("--force must bypass the cache")
	}

	write(t, filepath.Join(f.dir, "sizes.go"), sizesSrc+"\n// edited\n")
	edited := f.run(Options{Store: store})
	if edited.UpToDate {
		t.Error("a source change must invalidate the cache")
	}

	noCache := f.run(Options{Store: store, NoCache: true})
	if noCache.UpToDate {
		t.Error("NoCache must bypass the cache")
	}
}

func TestCheckAndListDoNotWrite(t *testing.T) {
	f := setup(t, sizesTable)

	check := f.run(Options{Mode: ModeCheck})
	if err := check.Result(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if check.Generated == nil {
		t.Error("check mode should render the output")
	}

	list := f.run(Options{Mode: ModeList})
	if err := list.Result(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list.Plans) != 1 || len(list.Plans[0].Rules) != 2 {
		t.Errorf("plans = %+v", list.Plans)
	}
	if list.Generated != nil {
		t.Error("list mode should stop before rendering")
	}

	if _, err := os.Stat(f.output); !os.IsNotExist(err) {
		t.Errorf("output written by check or list: %v", err)
	}
}

func TestGenerationErrors(t *testing.T) {
	f := setup(t, `
dispatchers:
  - name: SizeOf
    operation: Size
    selector: {type: Class}
    rules:
      - {match: Small, type: Missing}
  - name: Other
    operation: Nope
    selector: {type: Class}
    rules:
      - {match: Small, type: S}
`)
	ctx := f.run(Options{})
	err := ctx.Result()
	list, ok := diagnostics.AsList(err)
	if !ok {
		t.Fatalf("expected diagnostics, got %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected one error per dispatcher, got %d: %v", len(list), err)
	}
	if _, err := os.Stat(f.output); !os.IsNotExist(err) {
		t.Error("output written despite errors")
	}
}

func TestStrictWarnings(t *testing.T) {
	table := `
dispatchers:
  - name: SizeOf
    operation: Size
    selector: {type: Class}
    rules:
      - {match: Small, type: S}
      - {match: Small, type: L}
`
	f := setup(t, table)

	strict := f.run(Options{Strict: true})
	if strict.Result() == nil {
		t.Fatal("strict mode should fail on warnings")
	}
	if _, err := os.Stat(f.output); !os.IsNotExist(err) {
		t.Error("output written in strict mode despite warnings")
	}

	lax := f.run(Options{})
	if err := lax.Result(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lax.Diagnostics.Warnings()) != 1 || !lax.Written {
		t.Errorf("expected one warning and a written file, got %v", lax.Diagnostics)
	}
}

func TestStrictIgnoresCache(t *testing.T) {
	f := setup(t, `
dispatchers:
  - name: SizeOf
    operation: Size
    selector: {type: Class}
    rules:
      - {match: Small, type: S}
      - {match: Small, type: L}
`)
	store, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	lax := f.run(Options{Store: store})
	if err := lax.Result(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !lax.Written || lax.Entry == nil {
		t.Fatal("first run should write and record the output")
	}

	strict := f.run(Options{Store: store, Strict: true})
	if strict.UpToDate {
		t.Fatal("strict run answered from the cache")
	}
	if strict.Result() == nil {
		t.Error("strict run should fail on the cached table's warnings")
	}
	if len(strict.Diagnostics.Warnings()) != 1 {
		t.Errorf("expected one warning, got %v", strict.Diagnostics)
	}
}

func TestFatalErrors(t *testing.T) {
	t.Run("missing table", func(t *testing.T) {
		f := setup(t, sizesTable)
		f.table = filepath.Join(f.dir, "missing.yaml")
		if err := f.run(Options{}).Result(); err == nil || !strings.Contains(err.Error(), "reading table") {
			t.Fatalf("expected read error, got %v", err)
		}
	})

	t.Run("package mismatch", func(t *testing.T) {
		f := setup(t, "package: other\n"+sizesTable)
		if err := f.run(Options{}).Result(); !errors.Is(err, ErrPackageMismatch) {
			t.Fatalf("expected ErrPackageMismatch, got %v", err)
		}
	})

	t.Run("loader failure", func(t *testing.T) {
		f := setup(t, sizesTable)
		f.loader.Err = errors.New("go list failed")
		if err := f.run(Options{}).Result(); err == nil || !strings.Contains(err.Error(), "go list failed") {
			t.Fatalf("expected loader error, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		f := setup(t, sizesTable)
		c, cancel := context.WithCancel(context.Background())
		cancel()
		ctx := ForMode(ModeGenerate).Run(NewContext(c, f.table, Options{Loader: f.loader}, zerolog.Nop()))
		if !errors.Is(ctx.Result(), context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", ctx.Result())
		}
		if len(f.loader.Calls) != 0 {
			t.Error("cancelled run loaded packages")
		}
	})
}

func TestCrossPackageOperationDisablesCache(t *testing.T) {
	f := setup(t, `
dispatchers:
  - name: SizeOf
    operation: example.com/other.Size
    selector: {type: Class}
    rules:
      - {match: Small, type: S}
`)
	ctx := ForMode(ModeList).Run(NewContext(context.Background(), f.table, Options{Loader: f.loader}, zerolog.Nop()))
	if ctx.Cacheable {
		t.Error("tables using operations from other packages must not be cached")
	}
}

func TestQualifiedNamesDisableCache(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		match    string
		typ      string
		want     bool
	}{
		{name: "own package", selector: "Class", match: "Small", typ: "S", want: true},
		{name: "qualified type argument", selector: "Class", match: "Small", typ: "other.T"},
		{name: "qualified selector type", selector: "other.Class", match: "_", typ: "S"},
		{name: "qualified pattern", selector: "Class", match: "[Small, other.Tiny]", typ: "S"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, fmt.Sprintf(`
dispatchers:
  - name: SizeOf
    operation: Size
    selector: {type: %s}
    rules:
      - {match: %s, type: %s}
`, tt.selector, tt.match, tt.typ))
			ctx := ForMode(ModeList).Run(NewContext(context.Background(), f.table, Options{Loader: f.loader}, zerolog.Nop()))
			if ctx.Cacheable != tt.want {
				t.Errorf("Cacheable = %v, want %v", ctx.Cacheable, tt.want)
			}
		})
	}
}
