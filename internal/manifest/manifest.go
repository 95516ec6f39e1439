// Package manifest loads bake manifests.
//
// A manifest is the configuration of one batch: the default sample rate,
// the render order, whether the shared engine is remote, the capacities of
// local tables, and the tasks to bake.
//
//	name: drums
//	sample_rate: 44100
//	order: fifo
//	tables:
//	  - {name: kick, size: 88200}
//	tasks:
//	  - {patch: patches/kick.yaml, array: kick, duration: 2}
//
// Manifests are written in YAML (.yaml, .yml) or CUE (.cue). CUE manifests
// are unified with the embedded #Manifest schema before decoding.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
	"github.com/Mr00Anderson/gdx-pd/internal/bake"
)

// DefaultSampleRate is used by tasks that set neither their own rate nor
// inherit one from the manifest.
const DefaultSampleRate = 44100

// Manifest is a decoded batch description.
type Manifest struct {
	Name       string     `yaml:"name" json:"name,omitempty"`
	SampleRate int        `yaml:"sample_rate" json:"sample_rate,omitempty"`
	Order      string     `yaml:"order" json:"order,omitempty"`
	Remote     bool       `yaml:"remote" json:"remote,omitempty"`
	Tables     []Table    `yaml:"tables" json:"tables,omitempty"`
	Tasks      []TaskSpec `yaml:"tasks" json:"tasks"`

	// Path is the file the manifest was loaded from.
	Path string `yaml:"-" json:"-"`
}

// Table declares a local destination array and its capacity in frames.
type Table struct {
	Name string `yaml:"name" json:"name"`
	Size int    `yaml:"size" json:"size"`
}

// TaskSpec is one task as written in the manifest.
type TaskSpec struct {
	Patch      string  `yaml:"patch" json:"patch"`
	Array      string  `yaml:"array" json:"array"`
	SampleRate int     `yaml:"sample_rate" json:"sample_rate,omitempty"`
	Duration   float64 `yaml:"duration" json:"duration"`
}

// Dir is the directory patch paths are resolved against.
func (m *Manifest) Dir() string {
	if m.Path == "" {
		return "."
	}
	return filepath.Dir(m.Path)
}

// DisplayName is the manifest name, falling back to the file name.
func (m *Manifest) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return filepath.Base(m.Path)
}

// BakeOrder returns the parsed render order. Load has already validated it.
func (m *Manifest) BakeOrder() bake.Order {
	o, _ := bake.ParseOrder(m.Order)
	return o
}

// PatchResolver maps a manifest patch path to the path the render engine opens.
type PatchResolver func(patch string) (string, error)

// BuildTasks builds scheduler tasks in manifest order.
//
// Task sample rates fall back to the manifest rate. With a nil resolver,
// relative patch paths are resolved against Dir().
func (m *Manifest) BuildTasks(resolve PatchResolver) ([]*bake.Task, error) {
	if resolve == nil {
		resolve = m.resolveLocal
	}

	tasks := make([]*bake.Task, 0, len(m.Tasks))
	for i, ts := range m.Tasks {
		patch, err := resolve(ts.Patch)
		if err != nil {
			return nil, fmt.Errorf("task %d (%s): %w", i, ts.Array, err)
		}
		rate := ts.SampleRate
		if rate == 0 {
			rate = m.SampleRate
		}
		tasks = append(tasks, bake.NewTask(audio.PatchRef(patch), ts.Array, rate, ts.Duration))
	}
	return tasks, nil
}

func (m *Manifest) resolveLocal(patch string) (string, error) {
	if filepath.IsAbs(patch) {
		return patch, nil
	}
	return filepath.Join(m.Dir(), filepath.FromSlash(patch)), nil
}

// Load reads, decodes, normalizes and validates a manifest.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest not found: %s", path)}
		}
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: err.Error()}
	}
	return Parse(path, data)
}

// Parse decodes manifest data. The extension of path selects the format.
func Parse(path string, data []byte) (*Manifest, error) {
	var (
		m   *Manifest
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		m, err = decodeYAML(data)
	case ".cue":
		m, err = decodeCUE(path, data)
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported manifest extension %q", ext)}
	}
	if err != nil {
		return nil, err
	}

	m.Path = path
	m.normalize()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// normalize applies defaults and NFC-normalizes array names, so names typed
// with combining marks match the names declared by the shared engine.
func (m *Manifest) normalize() {
	if m.SampleRate == 0 {
		m.SampleRate = DefaultSampleRate
	}
	for i := range m.Tables {
		m.Tables[i].Name = norm.NFC.String(m.Tables[i].Name)
	}
	for i := range m.Tasks {
		m.Tasks[i].Array = norm.NFC.String(m.Tasks[i].Array)
	}
}
