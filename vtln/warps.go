package vtln

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SaveWarps writes a warp mapping to a YAML file with one `key: warp` entry
// per line, keys sorted. Refuses to overwrite an existing file.
func SaveWarps(path string, warps map[string]float64) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(ErrIOConflict, "warps file %q already exists", path)
		}
		return errors.Wrapf(err, "create warps file %q", path)
	}
	defer f.Close()

	keys := make([]string, 0, len(warps))
	for k := range warps {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var doc yaml.Node
	doc.Kind = yaml.MappingNode
	for _, k := range keys {
		var key, val yaml.Node
		key.SetString(k)
		if err := val.Encode(warps[k]); err != nil {
			return errors.Wrapf(err, "encode warp for %q", k)
		}
		doc.Content = append(doc.Content, &key, &val)
	}

	enc := yaml.NewEncoder(f)
	if err := enc.Encode(&doc); err != nil {
		return errors.Wrapf(err, "write warps file %q", path)
	}
	return enc.Close()
}

// LoadWarps reads a warp mapping written by SaveWarps.
func LoadWarps(path string) (map[string]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrIOConflict, "warps file %q does not exist", path)
		}
		return nil, errors.Wrapf(err, "read warps file %q", path)
	}
	warps := make(map[string]float64)
	if err := yaml.Unmarshal(raw, &warps); err != nil {
		return nil, errors.Wrapf(err, "parse warps file %q", path)
	}
	return warps, nil
}
