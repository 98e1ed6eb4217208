package stage

import (
	"os/exec"
	"strings"
)

// Health is one entry of the /health stage list.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Binary string `json:"binary,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Healthy reports a stage with no external requirement as ready.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// BinaryHealth reports name as ready when binary resolves on PATH. Binary
// holds the resolved location, or the configured value when lookup fails.
func BinaryHealth(name, binary string) Health {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return Health{Name: name, Detail: "no binary configured"}
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return Health{Name: name, Binary: binary, Detail: binary + " not found"}
	}
	return Health{Name: name, Ready: true, Binary: resolved}
}
