package relay

import (
	"io/ioutil"

	"github.com/dchisholm125/kestrel-hq-sub001/io/file"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type lanesFile struct {
	Lanes []LaneConfig `yaml:"lanes"`
}

// LoadLaneConfigs reads lane declarations from a YAML file. Lane ids must be
// unique and every lane needs a host.
func LoadLaneConfigs(path string) ([]LaneConfig, error) {
	expanded, err := file.ExpandPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not expand lanes config path")
	}
	raw, err := ioutil.ReadFile(expanded) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "could not read lanes config")
	}
	var f lanesFile
	if err := yaml.UnmarshalStrict(raw, &f); err != nil {
		return nil, errors.Wrap(err, "could not parse lanes config")
	}
	seen := make(map[string]bool, len(f.Lanes))
	for _, lane := range f.Lanes {
		if lane.ID == "" || lane.Host == "" {
			return nil, errors.Errorf("lane %q needs both an id and a host", lane.ID)
		}
		if seen[lane.ID] {
			return nil, errors.Errorf("duplicate lane id %q", lane.ID)
		}
		seen[lane.ID] = true
	}
	return f.Lanes, nil
}
