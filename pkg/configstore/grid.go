package configstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iClaustron/iclaustron-sub000/pkg/configstore/ini"
	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

// ClusterRef is one grid-file entry: a cluster's identity without its full
// configuration (spec §3.5's config.ini.N, §4.C load_grid).
type ClusterRef struct {
	Name     string
	ID       uint32
	Password string
}

func gridFileName(version int) string  { return fmt.Sprintf("config.ini.%d", version) }
func clusterFileName(name string, version int) string {
	return fmt.Sprintf("%s.ini.%d", name, version)
}

// ClusterFilePath returns the on-disk path of a cluster's INI file for a
// given generation, for callers (pkg/csserver) that need to load a named
// cluster out of a generation already located via LoadGrid.
func ClusterFilePath(dir, name string, version int) string {
	return filepath.Join(dir, clusterFileName(name, version))
}

// LoadGrid reads config.ini.v (spec §4.C load_grid): a simple sectioned
// INI with one [cluster] section per cluster.
func LoadGrid(dir string, version int) ([]ClusterRef, error) {
	path := filepath.Join(dir, gridFileName(version))
	f, err := ini.Load(path)
	if err != nil {
		return nil, icerr.Wrap(icerr.FailedToOpenFile, err, "loading %s", path)
	}

	var refs []ClusterRef
	for _, sec := range f.SectionsNamed("cluster") {
		name, ok := sec.Keys["cluster_name"]
		if !ok {
			return nil, icerr.New(icerr.NoSuchConfigKey, "cluster section missing cluster_name in %s", path)
		}
		idStr, ok := sec.Keys["cluster_id"]
		if !ok {
			return nil, icerr.New(icerr.NoSuchConfigKey, "cluster section missing cluster_id in %s", path)
		}
		var id uint32
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return nil, icerr.Wrap(icerr.ProtocolError, err, "cluster_id %q not numeric in %s", idStr, path)
		}
		refs = append(refs, ClusterRef{
			Name:     name,
			ID:       id,
			Password: sec.Keys["password"],
		})
	}
	return refs, nil
}

func writeGridFile(dir string, version int, clusters []*types.ClusterConfig) error {
	path := filepath.Join(dir, gridFileName(version))
	var body string
	for _, c := range clusters {
		body += fmt.Sprintf("[cluster]\ncluster_name=%s\ncluster_id=%d\npassword=%s\n\n", c.Name, c.ID, c.Password)
	}
	return os.WriteFile(path, []byte(body), 0o644)
}

func writeClusterFile(dir string, version int, c *types.ClusterConfig, reg *registry.Registry) error {
	path := filepath.Join(dir, clusterFileName(c.Name, version))
	body := renderClusterINI(c, reg)
	return os.WriteFile(path, []byte(body), 0o644)
}

// generationFiles lists the on-disk files belonging to generation v, given
// the cluster name set (grid file plus one file per cluster).
func generationFiles(dir string, v int, names []string) []string {
	files := []string{filepath.Join(dir, gridFileName(v))}
	for _, n := range names {
		files = append(files, filepath.Join(dir, clusterFileName(n, v)))
	}
	return files
}

func removeAllIgnoreMissing(files []string) {
	for _, f := range files {
		_ = os.Remove(f) // sweep of a possibly-partial prior generation: missing files are expected
	}
}

// CommitNewGeneration implements spec §4.C commit_new_generation: a
// transactional version bump that writes generation old+1's files, then
// the version file (the commit point), then sweeps the now-superseded
// generations in the order spec §8.2 scenario 4 requires — delete the
// oldest leftover generation first, commit, then delete the
// just-superseded generation last.
func CommitNewGeneration(dir string, clusters []*types.ClusterConfig, oldVersion int, reg *registry.Registry) (int, error) {
	newVersion := oldVersion + 1
	names := clusterNames(clusters)

	if oldVersion >= 2 {
		removeAllIgnoreMissing(generationFiles(dir, oldVersion-1, names))
	}

	newFiles := generationFiles(dir, newVersion, names)
	if err := writeGridFile(dir, newVersion, clusters); err != nil {
		removeAllIgnoreMissing(newFiles)
		return 0, icerr.Wrap(icerr.FailedToOpenFile, err, "writing grid file for generation %d", newVersion)
	}
	for _, c := range clusters {
		if err := writeClusterFile(dir, newVersion, c, reg); err != nil {
			removeAllIgnoreMissing(newFiles)
			if oldVersion == 0 {
				_ = os.Remove(filepath.Join(dir, versionFileName))
			}
			return 0, icerr.Wrap(icerr.FailedToOpenFile, err, "writing cluster file for generation %d", newVersion)
		}
	}

	if err := WriteVersion(dir, newVersion, StateBusy, os.Getpid()); err != nil {
		removeAllIgnoreMissing(newFiles)
		if oldVersion == 0 {
			_ = os.Remove(filepath.Join(dir, versionFileName))
		}
		return 0, err
	}

	if oldVersion >= 1 {
		removeAllIgnoreMissing(generationFiles(dir, oldVersion, names))
	}

	return newVersion, nil
}

func clusterNames(clusters []*types.ClusterConfig) []string {
	names := make([]string, len(clusters))
	for i, c := range clusters {
		names[i] = c.Name
	}
	return names
}
