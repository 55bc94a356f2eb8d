package pkgdata

import (
	"encoding/json"

	"github.com/repoforge/repomgr/pkg/storage"
)

// PackageCodec returns the storage.Codec a StorageCache[Package] needs to
// read and write Package values, the same way pkg/env's manager round-trips
// its records through encoding/json rather than a binary format.
func PackageCodec() storage.Codec[Package] {
	return storage.Codec[Package]{
		Encode: func(p *Package) ([]byte, error) { return json.Marshal(p) },
		Decode: func(b []byte) (*Package, error) {
			p := &Package{}
			if err := json.Unmarshal(b, p); err != nil {
				return nil, err
			}
			return p, nil
		},
		Name: func(p *Package) string { return p.Name },
	}
}
