package deploy

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/remote"
)

// Rename moves a target specific file into place inside a release.
type Rename struct {
	// From is the target specific file, such as config/app.prod.php.
	From string

	// To is the file the application reads, such as config/app.php.
	To string
}

// TargetFile returns the target specific variant of file: the target is
// inserted before the extension.
func TargetFile(file, target string) string {
	ext := path.Ext(file)
	return strings.TrimSuffix(file, ext) + "." + target + ext
}

// renames lists the target specific files and checks that each exists below localDir.
func renames(localDir, target string, files []string) ([]Rename, error) {
	out := make([]Rename, 0, len(files))
	for _, f := range files {
		r := Rename{From: TargetFile(f, target), To: f}
		if _, err := os.Stat(filepath.Join(localDir, filepath.FromSlash(r.From))); err != nil {
			return nil, fmt.Errorf("%w: target specific file %s: %w", pupdeploy.ErrConfiguration, r.From, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// prepareScript creates the release directory root and the shared data directories.
func prepareScript(remoteDir, prefix string, dataDirs []string) string {
	script := "mkdir -p " + remote.Quote(remoteDir)
	if len(dataDirs) == 0 {
		return script
	}

	dirs := make([]string, len(dataDirs))
	for i, d := range dataDirs {
		dirs[i] = remote.Quote(path.Join(remoteDir, prefix, d))
	}
	return script + " && mkdir -m 0775 -p " + strings.Join(dirs, " ")
}

// listScript prints the entries of the release directory root, one per line.
func listScript(remoteDir string) string {
	return "ls -1 " + remote.Quote(remoteDir)
}

// readlinkScript prints the target of the active release link.
func readlinkScript(remoteDir, symlink string) string {
	return "readlink " + remote.Quote(path.Join(remoteDir, symlink))
}

// symlinkScript points the active release link at release.
// The new link is created aside and renamed over the old one, so the
// link is never missing.
func symlinkScript(remoteDir, symlink, release string) string {
	tmp := remote.Quote(symlink + ".tmp")
	return fmt.Sprintf("cd %s && rm -f %s && ln -s %s %s && mv -Tf %s %s",
		remote.Quote(remoteDir), tmp, remote.Quote(release), tmp, tmp, remote.Quote(symlink))
}

// dataDirScript links each data directory of a release to the shared copy.
func dataDirScript(remoteDir, prefix, releaseDir string, dataDirs []string) string {
	if len(dataDirs) == 0 {
		return ""
	}

	parts := []string{"cd " + remote.Quote(releaseDir)}
	for _, d := range dataDirs {
		d = strings.Trim(d, "/")
		if parent := path.Dir(d); parent != "." {
			parts = append(parts, "mkdir -p "+remote.Quote(parent))
		}
		parts = append(parts,
			"rm -rf "+remote.Quote(d),
			"ln -s "+remote.Quote(path.Join(remoteDir, prefix, d))+" "+remote.Quote(d))
	}
	return strings.Join(parts, " && ")
}

// renameScript moves target specific files into place.
func renameScript(releaseDir string, renames []Rename) string {
	if len(renames) == 0 {
		return ""
	}

	parts := []string{"cd " + remote.Quote(releaseDir)}
	for _, r := range renames {
		parts = append(parts, "mv "+remote.Quote(r.From)+" "+remote.Quote(r.To))
	}
	return strings.Join(parts, " && ")
}

// workerScript restarts every worker function on every job server.
func workerScript(releaseDir, target string, w WorkerConfig) string {
	if !w.Enabled() {
		return ""
	}

	parts := []string{"cd " + remote.Quote(releaseDir)}
	for _, s := range w.Servers {
		for _, fn := range w.Functions {
			fn = strings.ReplaceAll(fn, "%s", target)
			parts = append(parts, fmt.Sprintf("%s --ip=%s --port=%s --function=%s",
				w.Restarter, remote.Quote(s.IP), strconv.Itoa(s.Port), remote.Quote(fn)))
		}
	}
	return strings.Join(parts, " && ")
}

// removeScript deletes release directories.
func removeScript(remoteDir string, releases []string) string {
	sorted := append([]string(nil), releases...)
	sort.Strings(sorted)

	quoted := make([]string, len(sorted))
	for i, r := range sorted {
		quoted[i] = remote.Quote(r)
	}
	return fmt.Sprintf("cd %s && rm -rf %s", remote.Quote(remoteDir), strings.Join(quoted, " "))
}
