package install

import (
	"os"

	"github.com/ZebulonRouseFrantzich/zigvm/internal/store"
)

// CleanExceptCurrent removes every installed version except the active
// one. One failing deletion does not abort the batch; the count of
// successfully removed versions is returned.
func (i *Installer) CleanExceptCurrent() (int, error) {
	st, err := i.store.Load()
	if err != nil {
		return 0, err
	}

	removed := 0
	for version, rec := range st.Installs {
		if version == st.Active {
			continue
		}
		if err := os.RemoveAll(rec.InstallPath); err != nil {
			i.logger.Warn("cannot remove install directory", "version", version, "error", err)
			continue
		}
		delete(st.Installs, version)
		removed++
	}

	if err := i.store.Save(st); err != nil {
		return removed, err
	}
	return removed, nil
}

// CleanAllVersions removes every installed version, active or not, and
// clears the launcher. If a system installation is recorded it is
// promoted to active; otherwise the active pointer is cleared.
func (i *Installer) CleanAllVersions() (int, error) {
	st, err := i.store.Load()
	if err != nil {
		return 0, err
	}

	removed := 0
	for version, rec := range st.Installs {
		if err := os.RemoveAll(rec.InstallPath); err != nil {
			i.logger.Warn("cannot remove install directory", "version", version, "error", err)
			continue
		}
		delete(st.Installs, version)
		removed++
	}

	if err := i.strategy.Deactivate(i.launcherDir); err != nil {
		i.logger.Warn("cannot clear launcher", "error", err)
	}
	st.Active = ""

	if st.System != nil {
		st.Active = store.VersionSystem
		if err := i.strategy.Activate(st.System.Path, store.VersionSystem, i.launcherDir); err != nil {
			i.logger.Warn("cannot relink system toolchain", "error", err)
		}
	}

	if err := i.store.Save(st); err != nil {
		return removed, err
	}
	return removed, nil
}

// Cleanup garbage-collects versions stuck in the downloading state,
// which implies a previous run crashed mid-download.
func (i *Installer) Cleanup() error {
	st, err := i.store.Load()
	if err != nil {
		return err
	}

	for version, rec := range st.Installs {
		if rec.Status != store.StatusDownloading {
			continue
		}
		i.logger.Info("removing interrupted download", "version", version)
		if err := os.RemoveAll(rec.InstallPath); err != nil {
			i.logger.Warn("cannot remove install directory", "version", version, "error", err)
			continue
		}
		delete(st.Installs, version)
	}

	return i.store.Save(st)
}
