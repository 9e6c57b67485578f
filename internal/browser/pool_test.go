package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types/mount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerConfigsBindAbsoluteUserData(t *testing.T) {
	wd := t.TempDir()
	t.Chdir(wd)

	p := &ContainerLauncher{image: DefaultImage, dataRoot: "storage/userdata"}
	cfg, host, opts, err := p.configs(LaunchOptions{
		SessionID:      "tok",
		UserDataDir:    filepath.Join("storage", "userdata", "dG9r"),
		ViewportWidth:  1280,
		ViewportHeight: 800,
	})
	require.NoError(t, err)

	require.Len(t, host.Mounts, 1)
	m := host.Mounts[0]
	assert.Equal(t, mount.TypeBind, m.Type)
	assert.True(t, filepath.IsAbs(m.Source), m.Source)
	assert.Equal(t, filepath.Join(wd, "storage", "userdata", "dG9r"), m.Source)
	assert.Equal(t, m.Source, opts.UserDataDir)
	assert.Contains(t, cfg.Cmd, "--window-size=1280,800")

	_, err = os.Stat(m.Source)
	assert.NoError(t, err)
}

func TestContainerConfigsDefaultDirUnderDataRoot(t *testing.T) {
	wd := t.TempDir()
	t.Chdir(wd)

	p := &ContainerLauncher{image: DefaultImage, dataRoot: "data"}
	_, host, _, err := p.configs(LaunchOptions{SessionID: "tok"})
	require.NoError(t, err)

	require.Len(t, host.Mounts, 1)
	assert.Equal(t, filepath.Join(wd, "data", "tok"), host.Mounts[0].Source)
}

func TestContainerConfigsMinimalMountsNothing(t *testing.T) {
	p := &ContainerLauncher{image: DefaultImage, dataRoot: t.TempDir()}
	cfg, host, opts, err := p.configs(LaunchOptions{SessionID: "tok", Minimal: true, UserDataDir: "ignored"})
	require.NoError(t, err)

	assert.Empty(t, host.Mounts)
	assert.Empty(t, cfg.Cmd)
	assert.Empty(t, opts.UserDataDir)
	assert.Equal(t, DefaultImage, cfg.Image)
}
