package output

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/vulnverified/posture/internal/engine"
)

// WriteJSON writes the snapshot as indented JSON to w.
func WriteJSON(w io.Writer, snap *engine.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// WriteYAML writes the snapshot as YAML to w, using the same keys as the JSON form.
func WriteYAML(w io.Writer, snap *engine.Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return err
	}
	return enc.Close()
}
