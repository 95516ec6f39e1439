package manifest

import (
	"bytes"
	"errors"
	"io"

	"gopkg.in/yaml.v3"
)

// decodeYAML decodes strictly: unknown keys are errors, so a typo such as
// "sample-rate" fails instead of silently falling back to the default.
func decodeYAML(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return &m, nil
		}
		return nil, &LoadError{Code: ErrCodeDecode, Message: err.Error()}
	}
	return &m, nil
}
