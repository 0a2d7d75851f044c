package media

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/catalog/catalogtest"
	"github.com/IshaanNene/kitmanual/internal/config"
	"github.com/IshaanNene/kitmanual/internal/fetcher"
	"github.com/IshaanNene/kitmanual/internal/observability"
	"github.com/IshaanNene/kitmanual/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var pdfBody = []byte("%PDF-1.4\n%fake manual\n")

// fakeFiles is a FileFetcher that writes pdfBody and counts calls.
type fakeFiles struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	body  []byte
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{calls: map[string]int{}, fail: map[string]error{}, body: pdfBody}
}

func (f *fakeFiles) Download(_ context.Context, rawURL, destPath string) (int64, error) {
	f.mu.Lock()
	f.calls[rawURL]++
	err := f.fail[rawURL]
	f.mu.Unlock()
	if err != nil {
		_ = os.WriteFile(destPath, []byte("partial"), 0o644)
		return 0, err
	}
	if err := os.WriteFile(destPath, f.body, 0o644); err != nil {
		return 0, err
	}
	return int64(len(f.body)), nil
}

func (f *fakeFiles) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func record(id int64, name string) catalog.Record {
	return catalog.Record{
		ID:          id,
		PDFURL:      "https://manuals.test/pdf/" + strconv.FormatInt(id, 10) + ".pdf",
		NameForeign: catalog.StringPtr(name),
	}
}

func newTestDownloader(t *testing.T, store catalog.Store, files fetcher.FileFetcher, check PDFCheck) (*Downloader, *Resolver) {
	t.Helper()
	paths, err := NewResolver(t.TempDir())
	require.NoError(t, err)
	d := NewDownloader(store, files, paths, Options{Subdir: "manuals", Concurrency: 2, Check: check},
		observability.NewMetrics(testLogger), testLogger)
	return d, paths
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"RX-78-2 Gundam", "RX-78-2_Gundam"},
		{`MG 1/100 "Zaku" II?`, "MG_1_100_Zaku_II"},
		{"  spaced \t out\n", "spaced_out"},
		{"a:b*c|d<e>f", "a_b_c_d_e_f"},
		{"", "manual"},
		{"///", "manual"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}

	long := SanitizeName(strings.Repeat("ガ", 100))
	assert.Equal(t, 80, len([]rune(long)))
}

func TestFileName(t *testing.T) {
	rec := catalog.Record{ID: 4012, NameNative: catalog.StringPtr("ザク II")}
	assert.Equal(t, "4012-ザク_II.pdf", FileName(&rec))

	rec.NameForeign = catalog.StringPtr("Zaku II")
	assert.Equal(t, "4012-Zaku_II.pdf", FileName(&rec))
	assert.Equal(t, "manuals/4012-Zaku_II.pdf", ExpectedPath("manuals/", &rec))

	assert.Equal(t, "7-manual.pdf", FileName(&catalog.Record{ID: 7}))
}

func TestResolver(t *testing.T) {
	root := t.TempDir()
	r, err := NewResolver(root)
	require.NoError(t, err)

	abs, ok := r.Resolve("manuals/1-a.pdf")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(r.Root(), "manuals", "1-a.pdf"), abs)

	_, ok = r.Resolve("../outside.pdf")
	assert.False(t, ok)
	_, ok = r.Resolve("manuals/../../outside.pdf")
	assert.False(t, ok)
	_, ok = r.Resolve(filepath.Join(root, "manuals", "1-a.pdf"))
	assert.False(t, ok, "absolute paths never resolve")
	_, ok = r.Resolve("")
	assert.False(t, ok)

	rel, err := r.ToRelative(abs)
	require.NoError(t, err)
	assert.Equal(t, "manuals/1-a.pdf", rel)

	_, err = r.ToRelative(filepath.Join(filepath.Dir(r.Root()), "elsewhere.pdf"))
	assert.ErrorIs(t, err, ErrOutsideRoot)

	assert.Equal(t, abs, r.ToAbsolute("manuals/1-a.pdf"))
	assert.Equal(t, "/var/legacy/x.pdf", r.ToAbsolute("/var/legacy/x.pdf"))

	assert.True(t, r.IsInsideRoot(abs))
	assert.False(t, r.IsInsideRoot(r.Root()+"-sibling/x.pdf"))
}

func TestLegacyCandidates(t *testing.T) {
	assert.Nil(t, LegacyCandidates(""))
	assert.Equal(t, []string{"/srv/old/1.pdf"}, LegacyCandidates("/srv/old//1.pdf"))

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(wd, "data", "1.pdf")}, LegacyCandidates("data/1.pdf"))
}

func TestResolverLocate(t *testing.T) {
	base := t.TempDir()
	t.Chdir(base)
	r, err := NewResolver(filepath.Join(base, "data"))
	require.NoError(t, err)

	current := filepath.Join(base, "data", "manuals", "1.pdf")
	legacy := filepath.Join(base, "data", "old", "2.pdf")
	for _, p := range []string{current, legacy} {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, pdfBody, 0o644))
	}

	got, ok := r.Locate("manuals/1.pdf")
	assert.True(t, ok)
	assert.Equal(t, current, got)

	got, ok = r.Locate("data/old/2.pdf")
	assert.True(t, ok)
	assert.Equal(t, legacy, got)

	got, ok = r.Locate(legacy)
	assert.True(t, ok)
	assert.Equal(t, legacy, got)

	_, ok = r.Locate("manuals/missing.pdf")
	assert.False(t, ok)
	_, ok = r.Locate("")
	assert.False(t, ok)
}

func TestCheckHeader(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pdf")
	bad := filepath.Join(dir, "bad.pdf")
	short := filepath.Join(dir, "short.pdf")
	require.NoError(t, os.WriteFile(good, pdfBody, 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("<html>not found</html>"), 0o644))
	require.NoError(t, os.WriteFile(short, []byte("%P"), 0o644))

	assert.NoError(t, CheckHeader(good))
	assert.ErrorIs(t, CheckHeader(bad), types.ErrNotPDF)
	assert.ErrorIs(t, CheckHeader(short), types.ErrNotPDF)
	assert.ErrorIs(t, ValidatePDF(bad), types.ErrNotPDF)
}

func TestDownloaderDownloadsAndPersists(t *testing.T) {
	store := catalogtest.NewMemoryStore()
	rec := record(1, "Zaku II")
	store.Seed(rec)
	files := newFakeFiles()
	d, paths := newTestDownloader(t, store, files, CheckHeader)

	results, summary, err := d.Run(context.Background(), []catalog.Record{rec})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeDownloaded, results[0].Outcome)
	assert.Equal(t, "manuals/1-Zaku_II.pdf", results[0].LocalPath)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, int64(len(pdfBody)), summary.Bytes)

	got, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, got.LocalPath)
	assert.Equal(t, "manuals/1-Zaku_II.pdf", *got.LocalPath)

	abs, ok := paths.Resolve(*got.LocalPath)
	require.True(t, ok)
	body, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, pdfBody, body)
	_, err = os.Stat(abs + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloaderSkipsExistingWithoutNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(pdfBody)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Crawl.Delay = 0
	cfg.Download.Timeout = 2 * time.Second
	files, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	require.NoError(t, err)
	defer files.Close()

	store := catalogtest.NewMemoryStore()
	d, paths := newTestDownloader(t, store, files, nil)

	stored := record(1, "Stored")
	stored.PDFURL = srv.URL + "/pdf/1.pdf"
	stored.LocalPath = catalog.StringPtr("manuals/1-Stored.pdf")
	onDisk := record(2, "On Disk")
	onDisk.PDFURL = srv.URL + "/pdf/2.pdf"
	store.Seed(stored, onDisk)

	for _, rel := range []string{"manuals/1-Stored.pdf", "manuals/2-On_Disk.pdf"} {
		abs, ok := paths.Resolve(rel)
		require.True(t, ok)
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, pdfBody, 0o644))
	}

	results, summary, err := d.Run(context.Background(), []catalog.Record{stored, onDisk})
	require.NoError(t, err)
	assert.Equal(t, int32(0), hits.Load())
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, OutcomeSkipped, results[0].Outcome)
	assert.Equal(t, OutcomeSkipped, results[1].Outcome)

	// the file found at the expected path gets its location recorded
	got, err := store.Get(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, got.LocalPath)
	assert.Equal(t, "manuals/2-On_Disk.pdf", *got.LocalPath)
	assert.Equal(t, 1, store.PathSets)
}

func TestDownloaderHealsLegacyAbsolutePath(t *testing.T) {
	store := catalogtest.NewMemoryStore()
	files := newFakeFiles()
	d, paths := newTestDownloader(t, store, files, nil)

	legacy := filepath.Join(paths.Root(), "old-layout", "3.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(legacy), 0o755))
	require.NoError(t, os.WriteFile(legacy, pdfBody, 0o644))

	rec := record(3, "Legacy")
	rec.LocalPath = catalog.StringPtr(legacy)
	store.Seed(rec)

	results, summary, err := d.Run(context.Background(), []catalog.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, 0, files.total())
	assert.True(t, results[0].Healed)
	assert.Equal(t, OutcomeSkipped, results[0].Outcome)
	assert.Equal(t, 1, summary.Healed)

	got, err := store.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "old-layout/3.pdf", *got.LocalPath)
}

func TestDownloaderHealsWorkingDirRelativePath(t *testing.T) {
	base := t.TempDir()
	t.Chdir(base)

	paths, err := NewResolver(filepath.Join(base, "data"))
	require.NoError(t, err)
	store := catalogtest.NewMemoryStore()
	files := newFakeFiles()
	d := NewDownloader(store, files, paths, Options{Subdir: "manuals", Concurrency: 2},
		observability.NewMetrics(testLogger), testLogger)

	legacy := filepath.Join(base, "data", "old", "5.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(legacy), 0o755))
	require.NoError(t, os.WriteFile(legacy, pdfBody, 0o644))

	rec := record(5, "Relative")
	rec.LocalPath = catalog.StringPtr("data/old/5.pdf")
	store.Seed(rec)

	results, summary, err := d.Run(context.Background(), []catalog.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, 0, files.total())
	assert.True(t, results[0].Healed)
	assert.False(t, results[0].External)
	assert.Equal(t, OutcomeSkipped, results[0].Outcome)
	assert.Equal(t, 1, summary.Healed)

	got, err := store.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "old/5.pdf", *got.LocalPath)
}

func TestDownloaderLeavesExternalPathAlone(t *testing.T) {
	store := catalogtest.NewMemoryStore()
	files := newFakeFiles()
	d, _ := newTestDownloader(t, store, files, nil)

	external := filepath.Join(t.TempDir(), "4.pdf")
	require.NoError(t, os.WriteFile(external, pdfBody, 0o644))

	rec := record(4, "External")
	rec.LocalPath = catalog.StringPtr(external)
	store.Seed(rec)

	results, _, err := d.Run(context.Background(), []catalog.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, 0, files.total())
	assert.True(t, results[0].External)
	assert.Equal(t, OutcomeSkipped, results[0].Outcome)
	assert.Equal(t, 0, store.PathSets)

	got, err := store.Get(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, external, *got.LocalPath)
}

func TestDownloaderIsolatesFailures(t *testing.T) {
	store := catalogtest.NewMemoryStore()
	files := newFakeFiles()
	d, paths := newTestDownloader(t, store, files, nil)

	var recs []catalog.Record
	for id := int64(1); id <= 5; id++ {
		recs = append(recs, record(id, "Kit"))
	}
	store.Seed(recs...)
	files.fail[recs[2].PDFURL] = &types.FetchError{URL: recs[2].PDFURL, StatusCode: http.StatusInternalServerError}

	results, summary, err := d.Run(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)

	for i, res := range results {
		assert.Equal(t, recs[i].ID, res.ID, "results keep input order")
	}
	assert.Equal(t, OutcomeFailed, results[2].Outcome)
	assert.Error(t, results[2].Err)

	got, err := store.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, got.LocalPath)

	abs, _ := paths.Resolve(ExpectedPath("manuals", &recs[2]))
	_, err = os.Stat(abs + ".part")
	assert.True(t, os.IsNotExist(err), "partial file is removed")
	_, err = os.Stat(abs)
	assert.True(t, os.IsNotExist(err))
}

func TestDownloaderRejectsInvalidPDF(t *testing.T) {
	store := catalogtest.NewMemoryStore()
	files := newFakeFiles()
	files.body = []byte("<html>maintenance</html>")
	d, _ := newTestDownloader(t, store, files, CheckHeader)

	rec := record(5, "Broken")
	store.Seed(rec)

	results, summary, err := d.Run(context.Background(), []catalog.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.ErrorIs(t, results[0].Err, types.ErrNotPDF)
	assert.Equal(t, 0, store.PathSets)
}

func TestDownloaderPropagatesPersistenceErrors(t *testing.T) {
	store := catalogtest.NewMemoryStore()
	files := newFakeFiles()
	d, _ := newTestDownloader(t, store, files, nil)

	rec := record(6, "Persist")
	store.Seed(rec)
	store.SetPathErr = catalogtest.ErrInjected

	results, _, err := d.Run(context.Background(), []catalog.Record{rec})
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalogtest.ErrInjected))
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KB", humanSize(1536))
	assert.Equal(t, "2.0 MB", humanSize(2*1024*1024))
}
