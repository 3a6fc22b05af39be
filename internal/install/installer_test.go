package install

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ZebulonRouseFrantzich/zigvm/internal/download"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/platform"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/store"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/testutil"
)

const indexBody = `{
  "0.11.0": {
    "date": "2023-08-04",
    "x86_64-linux": {
      "tarball": "https://ziglang.org/download/0.11.0/zig-linux-x86_64-0.11.0.tar.gz",
      "shasum": "feedface",
      "size": "1000"
    }
  },
  "0.12.0": {
    "date": "2024-04-20",
    "x86_64-linux": {
      "tarball": "https://ziglang.org/download/0.12.0/zig-linux-x86_64-0.12.0.tar.gz",
      "shasum": "cafebabe",
      "size": "1000"
    }
  }
}`

// fakeFetcher stands in for the download orchestrator. On success it
// writes a real gzip tarball with the extracted-archive layout the
// upstream releases use.
type fakeFetcher struct {
	fail  bool
	calls int
}

func (f *fakeFetcher) FetchAndVerify(ctx context.Context, originURL, destPath, expectedChecksum string) (*download.Result, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("%w: injected failure", download.ErrExhausted)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, err
	}
	out, err := os.Create(destPath)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	version := filepath.Base(filepath.Dir(destPath))
	topDir := "zig-linux-x86_64-" + version
	body := "#!/bin/sh\necho " + version + "\n"
	entries := []*tar.Header{
		{Name: topDir, Typeflag: tar.TypeDir, Mode: 0755},
		{Name: topDir + "/zig", Typeflag: tar.TypeReg, Mode: 0755, Size: int64(len(body))},
	}
	for _, hdr := range entries {
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(body)); err != nil {
				return nil, err
			}
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}

	return &download.Result{
		SourceURL:         originURL,
		SignatureURL:      originURL + ".minisig",
		ChecksumVerified:  expectedChecksum != "",
		SignatureVerified: true,
	}, nil
}

// newTestInstaller builds an installer against local test servers for
// the release index and the mirror list, with the fake fetcher wired
// in place of the real orchestrator.
func newTestInstaller(t *testing.T) (*Installer, *fakeFetcher, string) {
	t.Helper()

	root := testutil.SetupTestEnv(t)

	indexSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(indexBody))
	}))
	t.Cleanup(indexSrv.Close)

	mirrorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("https://mirror.example\n"))
	}))
	t.Cleanup(mirrorSrv.Close)

	inst, err := New(Config{
		RootDir:       root,
		Platform:      &platform.Info{OS: "linux", Arch: "amd64"},
		IndexURL:      indexSrv.URL,
		MirrorListURL: mirrorSrv.URL,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	f := &fakeFetcher{}
	inst.fetcher = f
	return inst, f, root
}

func TestDownloadVersion(t *testing.T) {
	inst, _, root := newTestInstaller(t)

	if err := inst.DownloadVersion(context.Background(), "0.11.0"); err != nil {
		t.Fatalf("DownloadVersion failed: %v", err)
	}

	rec, err := inst.Store().Get("0.11.0")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("no install record")
	}
	if rec.Status != store.StatusCompleted {
		t.Errorf("status = %s, want completed", rec.Status)
	}
	if !rec.SignatureVerified || !rec.ChecksumVerified {
		t.Errorf("verification flags wrong: %+v", rec)
	}
	if rec.VerificationStatus != store.VerificationVerified {
		t.Errorf("verification status = %s", rec.VerificationStatus)
	}
	if rec.Checksum != "feedface" {
		t.Errorf("checksum = %q, want feedface", rec.Checksum)
	}
	if rec.Signature == "" || rec.SourceURL == "" {
		t.Errorf("provenance missing: %+v", rec)
	}

	exe := filepath.Join(root, "versions", "0.11.0", "zig-linux-x86_64-0.11.0", "zig")
	if _, err := os.Stat(exe); err != nil {
		t.Errorf("extracted binary missing: %v", err)
	}

	// The archive is deleted after unpacking.
	archive := filepath.Join(root, "versions", "0.11.0", "zig-linux-x86_64-0.11.0.tar.gz")
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Error("archive left behind after extraction")
	}

	if inst.CurrentDownload() != nil {
		t.Error("cleanup token still registered after completion")
	}
}

func TestDownloadVersionAlreadyInstalled(t *testing.T) {
	inst, f, _ := newTestInstaller(t)

	if err := inst.DownloadVersion(context.Background(), "0.11.0"); err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := f.calls

	err := inst.DownloadVersion(context.Background(), "0.11.0")
	if !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("expected ErrAlreadyInstalled, got %v", err)
	}
	if f.calls != callsAfterFirst {
		t.Error("a second fetch was attempted for an installed version")
	}
}

func TestDownloadVersionFailureRevertsEverything(t *testing.T) {
	inst, f, root := newTestInstaller(t)
	f.fail = true

	err := inst.DownloadVersion(context.Background(), "0.11.0")
	if !errors.Is(err, download.ErrExhausted) {
		t.Fatalf("expected wrapped ErrExhausted, got %v", err)
	}

	rec, getErr := inst.Store().Get("0.11.0")
	if getErr != nil {
		t.Fatal(getErr)
	}
	if rec != nil {
		t.Errorf("failed download left a record: %+v", rec)
	}
	if _, statErr := os.Stat(filepath.Join(root, "versions", "0.11.0")); !os.IsNotExist(statErr) {
		t.Error("failed download left an install directory")
	}
}

func TestDownloadVersionUnknownVersion(t *testing.T) {
	inst, _, root := newTestInstaller(t)

	if err := inst.DownloadVersion(context.Background(), "0.99.0"); err == nil {
		t.Fatal("expected resolve failure for unknown version")
	}
	if _, err := os.Stat(filepath.Join(root, "versions", "0.99.0")); !os.IsNotExist(err) {
		t.Error("unknown version left an install directory")
	}
}

func TestDownloadVersionRejectsSystem(t *testing.T) {
	inst, _, _ := newTestInstaller(t)

	err := inst.DownloadVersion(context.Background(), store.VersionSystem)
	if !errors.Is(err, ErrSystemProtected) {
		t.Fatalf("expected ErrSystemProtected, got %v", err)
	}
}

func TestUseVersion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	inst, _, root := newTestInstaller(t)
	if err := inst.DownloadVersion(context.Background(), "0.11.0"); err != nil {
		t.Fatal(err)
	}

	if err := inst.UseVersion("0.11.0"); err != nil {
		t.Fatalf("UseVersion failed: %v", err)
	}

	target, err := os.Readlink(filepath.Join(root, "bin", "zig"))
	if err != nil {
		t.Fatalf("launcher link missing: %v", err)
	}
	want := filepath.Join(root, "versions", "0.11.0", "zig-linux-x86_64-0.11.0", "zig")
	if target != want {
		t.Errorf("launcher points at %q, want %q", target, want)
	}

	st, err := inst.Store().Load()
	if err != nil {
		t.Fatal(err)
	}
	if st.Active != "0.11.0" {
		t.Errorf("active = %q, want 0.11.0", st.Active)
	}
}

func TestUseVersionNotInstalled(t *testing.T) {
	inst, _, _ := newTestInstaller(t)

	err := inst.UseVersion("0.11.0")
	if !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}

	st, loadErr := inst.Store().Load()
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if st.Active != "" {
		t.Errorf("active pointer changed by failed use: %q", st.Active)
	}
}

func TestUseVersionRejectsIncompleteInstall(t *testing.T) {
	inst, _, _ := newTestInstaller(t)

	err := inst.Store().Update(func(st *store.State) error {
		st.Installs["0.11.0"] = &store.InstalledVersion{
			Version: "0.11.0",
			Status:  store.StatusDownloading,
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := inst.UseVersion("0.11.0"); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled for a downloading record, got %v", err)
	}
}

func TestUseSystem(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	inst, _, root := newTestInstaller(t)
	exe := testutil.FakeSystemToolchain(t, "zig")

	if err := inst.UseVersion(store.VersionSystem); err != nil {
		t.Fatalf("UseVersion(system) failed: %v", err)
	}

	st, err := inst.Store().Load()
	if err != nil {
		t.Fatal(err)
	}
	if st.Active != store.VersionSystem {
		t.Errorf("active = %q, want system", st.Active)
	}
	if st.System == nil || st.System.Path != exe {
		t.Errorf("system record = %+v, want path %s", st.System, exe)
	}

	target, err := os.Readlink(filepath.Join(root, "bin", "zig"))
	if err != nil {
		t.Fatal(err)
	}
	if target != exe {
		t.Errorf("launcher points at %q, want %q", target, exe)
	}
}

func TestUseSystemNotFound(t *testing.T) {
	inst, _, _ := newTestInstaller(t)

	err := inst.UseVersion(store.VersionSystem)
	if !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}
}

func TestUseSystemClearsStaleRecord(t *testing.T) {
	inst, _, _ := newTestInstaller(t)

	err := inst.Store().Update(func(st *store.State) error {
		st.System = &store.SystemInstallation{Path: "/nonexistent/zig"}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := inst.UseVersion(store.VersionSystem); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}

	st, err := inst.Store().Load()
	if err != nil {
		t.Fatal(err)
	}
	if st.System != nil {
		t.Errorf("stale system record not cleared: %+v", st.System)
	}
}

func TestRemoveVersion(t *testing.T) {
	inst, _, root := newTestInstaller(t)
	if err := inst.DownloadVersion(context.Background(), "0.11.0"); err != nil {
		t.Fatal(err)
	}

	if err := inst.RemoveVersion("0.11.0"); err != nil {
		t.Fatalf("RemoveVersion failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "versions", "0.11.0")); !os.IsNotExist(err) {
		t.Error("install directory still present")
	}
	rec, err := inst.Store().Get("0.11.0")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Errorf("record still present: %+v", rec)
	}
}

func TestRemoveActiveVersionClearsLauncher(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	inst, _, root := newTestInstaller(t)
	if err := inst.DownloadVersion(context.Background(), "0.11.0"); err != nil {
		t.Fatal(err)
	}
	if err := inst.UseVersion("0.11.0"); err != nil {
		t.Fatal(err)
	}

	if err := inst.RemoveVersion("0.11.0"); err != nil {
		t.Fatalf("RemoveVersion failed: %v", err)
	}

	if _, err := os.Lstat(filepath.Join(root, "bin", "zig")); !os.IsNotExist(err) {
		t.Error("launcher still present after removing the active version")
	}
	st, err := inst.Store().Load()
	if err != nil {
		t.Fatal(err)
	}
	if st.Active != "" {
		t.Errorf("active = %q, want cleared", st.Active)
	}
}

func TestRemoveVersionSystemProtected(t *testing.T) {
	inst, _, _ := newTestInstaller(t)

	err := inst.RemoveVersion(store.VersionSystem)
	if !errors.Is(err, ErrSystemProtected) {
		t.Fatalf("expected ErrSystemProtected, got %v", err)
	}
}

func TestRemoveVersionNotInstalled(t *testing.T) {
	inst, _, _ := newTestInstaller(t)

	err := inst.RemoveVersion("0.11.0")
	if !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}
}

func TestCleanExceptCurrent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	inst, _, root := newTestInstaller(t)
	for _, v := range []string{"0.11.0", "0.12.0"} {
		if err := inst.DownloadVersion(context.Background(), v); err != nil {
			t.Fatal(err)
		}
	}
	if err := inst.UseVersion("0.12.0"); err != nil {
		t.Fatal(err)
	}

	removed, err := inst.CleanExceptCurrent()
	if err != nil {
		t.Fatalf("CleanExceptCurrent failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := os.Stat(filepath.Join(root, "versions", "0.12.0")); err != nil {
		t.Errorf("active version was removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "versions", "0.11.0")); !os.IsNotExist(err) {
		t.Error("inactive version survived cleaning")
	}
	st, err := inst.Store().Load()
	if err != nil {
		t.Fatal(err)
	}
	if st.Active != "0.12.0" {
		t.Errorf("active = %q, want 0.12.0", st.Active)
	}
}

func TestCleanAllVersionsPromotesSystem(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	inst, _, root := newTestInstaller(t)
	exe := testutil.FakeSystemToolchain(t, "zig")

	if err := inst.DownloadVersion(context.Background(), "0.11.0"); err != nil {
		t.Fatal(err)
	}
	if err := inst.UseVersion("0.11.0"); err != nil {
		t.Fatal(err)
	}
	// Record the system install, then switch back to the managed one.
	if err := inst.UseVersion(store.VersionSystem); err != nil {
		t.Fatal(err)
	}
	if err := inst.UseVersion("0.11.0"); err != nil {
		t.Fatal(err)
	}

	removed, err := inst.CleanAllVersions()
	if err != nil {
		t.Fatalf("CleanAllVersions failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	st, err := inst.Store().Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Installs) != 0 {
		t.Errorf("installs not emptied: %+v", st.Installs)
	}
	if st.Active != store.VersionSystem {
		t.Errorf("active = %q, want system", st.Active)
	}

	target, err := os.Readlink(filepath.Join(root, "bin", "zig"))
	if err != nil {
		t.Fatalf("launcher not relinked to system: %v", err)
	}
	if target != exe {
		t.Errorf("launcher points at %q, want %q", target, exe)
	}
}

func TestCleanAllVersionsWithoutSystem(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	inst, _, root := newTestInstaller(t)
	if err := inst.DownloadVersion(context.Background(), "0.11.0"); err != nil {
		t.Fatal(err)
	}
	if err := inst.UseVersion("0.11.0"); err != nil {
		t.Fatal(err)
	}

	if _, err := inst.CleanAllVersions(); err != nil {
		t.Fatalf("CleanAllVersions failed: %v", err)
	}

	st, err := inst.Store().Load()
	if err != nil {
		t.Fatal(err)
	}
	if st.Active != "" {
		t.Errorf("active = %q, want cleared", st.Active)
	}
	if _, err := os.Lstat(filepath.Join(root, "bin", "zig")); !os.IsNotExist(err) {
		t.Error("launcher still present")
	}
}

func TestCleanupCollectsInterruptedDownloads(t *testing.T) {
	inst, _, root := newTestInstaller(t)
	if err := inst.DownloadVersion(context.Background(), "0.11.0"); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash mid-download of another version.
	stalePath := filepath.Join(root, "versions", "0.12.0")
	if err := os.MkdirAll(stalePath, 0755); err != nil {
		t.Fatal(err)
	}
	err := inst.Store().Update(func(st *store.State) error {
		st.Installs["0.12.0"] = &store.InstalledVersion{
			Version:     "0.12.0",
			InstallPath: stalePath,
			Status:      store.StatusDownloading,
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := inst.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Error("interrupted download directory survived")
	}
	rec, err := inst.Store().Get("0.12.0")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Error("interrupted download record survived")
	}

	// The completed install is untouched.
	rec, err = inst.Store().Get("0.11.0")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Status != store.StatusCompleted {
		t.Errorf("completed install affected by cleanup: %+v", rec)
	}
}

func TestCleanupTokenRunsOnce(t *testing.T) {
	runs := 0
	token := NewCleanupToken(func() { runs++ })

	token.Cleanup()
	token.Cleanup()
	token.Cleanup()

	if runs != 1 {
		t.Errorf("cleanup ran %d times, want 1", runs)
	}
	if token.ID() == "" {
		t.Error("token has no identity")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Platform: &platform.Info{OS: "linux", Arch: "amd64"}}); err == nil {
		t.Error("expected error for missing RootDir")
	}
	if _, err := New(Config{RootDir: t.TempDir()}); err == nil {
		t.Error("expected error for missing Platform")
	}
}
