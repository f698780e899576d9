package runtime

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botcrew/botcrew/internal/common/config"
)

func TestPhaseFromContainerState(t *testing.T) {
	cases := map[string]Phase{
		"created":    PhasePending,
		"restarting": PhasePending,
		"running":    PhaseRunning,
		"exited":     PhaseFailed,
		"dead":       PhaseFailed,
		"paused":     PhaseFailed,
		"removing":   PhaseFailed,
	}
	for state, want := range cases {
		assert.Equal(t, want, phaseFromContainerState(state), "state %q", state)
	}
}

func TestHandleForAgent(t *testing.T) {
	assert.Equal(t, "agent-a1b2", HandleForAgent("a1b2"))
}

func TestResolveHostPrecedence(t *testing.T) {
	t.Run("explicit host wins", func(t *testing.T) {
		host, err := resolveHost(config.DockerConfig{Host: "tcp://docker:2375", ConfigFile: "/nonexistent"})
		require.NoError(t, err)
		assert.Equal(t, "tcp://docker:2375", host)
	})

	t.Run("ambient env defers to SDK", func(t *testing.T) {
		t.Setenv("DOCKER_HOST", "unix:///var/run/docker.sock")
		host, err := resolveHost(config.DockerConfig{ConfigFile: "/nonexistent"})
		require.NoError(t, err)
		assert.Empty(t, host)
	})

	t.Run("config file fallback", func(t *testing.T) {
		t.Setenv("DOCKER_HOST", "")
		path := filepath.Join(t.TempDir(), "docker.json")
		data, err := json.Marshal(hostFileConfig{Host: "tcp://remote:2376"})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		host, err := resolveHost(config.DockerConfig{ConfigFile: path})
		require.NoError(t, err)
		assert.Equal(t, "tcp://remote:2376", host)
	})

	t.Run("missing config file is not an error", func(t *testing.T) {
		t.Setenv("DOCKER_HOST", "")
		host, err := resolveHost(config.DockerConfig{ConfigFile: filepath.Join(t.TempDir(), "absent.json")})
		require.NoError(t, err)
		assert.Empty(t, host)
	})
}
