// Package supervisor implements a declarative fleet lifecycle: a CLI-
// facing Manager that drives a long-running Daemon over a line-
// delimited JSON protocol spoken on a Unix domain socket.
package supervisor

import "github.com/forwardimpact/monorepo-sub001/internal/faults"

// Type distinguishes a longrun service (started and tracked by the
// daemon, not restarted when it exits)
// from a oneshot one (an up command run synchronously at start, a
// down command at stop, never supervised).
type Type string

const (
	Longrun Type = "longrun"
	Oneshot Type = "oneshot"
)

// ServiceSpec declares one fleet member.
type ServiceSpec struct {
	Name    string   `json:"name" yaml:"name"`
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`
	Type    Type     `json:"type,omitempty" yaml:"type,omitempty"`
	Up      []string `json:"up,omitempty" yaml:"up,omitempty"`
	Down    []string `json:"down,omitempty" yaml:"down,omitempty"`
}

func (s ServiceSpec) serviceType() Type {
	if s.Type == "" {
		return Longrun
	}
	return s.Type
}

func indexOf(specs []ServiceSpec, name string) (int, error) {
	for i, s := range specs {
		if s.Name == name {
			return i, nil
		}
	}
	return -1, faults.NotFoundf("unknown service %q", name)
}
