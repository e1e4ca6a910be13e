package datacenter

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// LaunchSpec describes how to reach one data source's server. The manager
// treats it as opaque; it only asks for the transport to drive.
type LaunchSpec interface {
	transport() (mcp.Transport, error)
}

// StdioLaunchSpec starts the source's server as a child process and speaks
// the protocol over its standard input/output pipes. The spawned process and
// both pipe ends are owned by the resulting session.
type StdioLaunchSpec struct {
	Command string
	Args    []string
	Env     map[string]string
}

func (s *StdioLaunchSpec) transport() (mcp.Transport, error) {
	if s.Command == "" {
		return nil, fmt.Errorf("datacenter: launch command missing")
	}
	cmd := exec.Command(s.Command, s.Args...)
	if len(s.Env) > 0 {
		env := os.Environ()
		for k, v := range s.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

// TransportLaunchSpec wires an existing transport instead of spawning a
// process. Used by tests and in-process embeddings.
type TransportLaunchSpec struct {
	Transport mcp.Transport
}

func (s *TransportLaunchSpec) transport() (mcp.Transport, error) {
	if s.Transport == nil {
		return nil, fmt.Errorf("datacenter: transport missing")
	}
	return s.Transport, nil
}
