package browser

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultImage  = "chromedp/headless-shell:latest"
	devToolsPort  = "9222/tcp"
	containerData = "/data"
)

// ContainerLauncher runs each session's browser in its own docker container
type ContainerLauncher struct {
	client   *client.Client
	image    string
	dataRoot string
	probe    *DevToolsProbe
	logger   *zap.Logger
}

// NewContainerLauncher connects to the docker daemon from the environment
func NewContainerLauncher(image, dataRoot string, probe *DevToolsProbe, logger *zap.Logger) (*ContainerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if image == "" {
		image = DefaultImage
	}
	if dataRoot == "" {
		dataRoot = filepath.Join(os.TempDir(), "browser-data")
	}
	if dataRoot, err = filepath.Abs(dataRoot); err != nil {
		return nil, fmt.Errorf("failed to resolve data root: %w", err)
	}

	return &ContainerLauncher{
		client:   cli,
		image:    image,
		dataRoot: dataRoot,
		probe:    probe,
		logger:   logger.Named("containers"),
	}, nil
}

func (p *ContainerLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	containerConfig, hostConfig, opts, err := p.configs(opts)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("session-%s-%s", shortID(opts.SessionID), uuid.NewString()[:8])
	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	teardown := func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return p.stop(stopCtx, resp.ID)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		teardown()
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		teardown()
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	bindings := inspect.NetworkSettings.Ports[devToolsPort]
	if len(bindings) == 0 {
		teardown()
		return nil, fmt.Errorf("container %s exposes no devtools port", shortID(resp.ID))
	}

	info, err := p.probe.Version(ctx, "http://127.0.0.1:"+bindings[0].HostPort)
	if err != nil {
		teardown()
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), info.WebSocketDebuggerURL)
	h, err := start(ctx, allocCtx, allocCancel, opts, teardown, p.logger)
	if err != nil {
		return nil, err
	}
	h.debugURL = info.WebSocketDebuggerURL

	p.logger.Info("browser container started",
		zap.String("session", opts.SessionID),
		zap.String("container", shortID(resp.ID)),
		zap.Bool("minimal", opts.Minimal))
	return h, nil
}

// configs builds the container and host configuration for one launch. Bind
// mount sources must be absolute, so the user-data dir is resolved here.
func (p *ContainerLauncher) configs(opts LaunchOptions) (*container.Config, *container.HostConfig, LaunchOptions, error) {
	containerConfig := &container.Config{
		Image: p.image,
		Labels: map[string]string{
			"session-id": opts.SessionID,
			"managed-by": "browserbase-control",
		},
		ExposedPorts: nat.PortSet{
			devToolsPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			devToolsPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		AutoRemove: false,
	}

	// The minimal profile runs the image defaults with no mounted profile.
	if opts.Minimal {
		opts.UserDataDir = ""
		return containerConfig, hostConfig, opts, nil
	}

	if opts.UserDataDir == "" {
		opts.UserDataDir = filepath.Join(p.dataRoot, opts.SessionID)
	}
	dir, err := filepath.Abs(opts.UserDataDir)
	if err != nil {
		return nil, nil, opts, fmt.Errorf("failed to resolve user data directory: %w", err)
	}
	opts.UserDataDir = dir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, opts, fmt.Errorf("failed to create user data directory: %w", err)
	}
	hostConfig.Mounts = []mount.Mount{
		{
			Type:   mount.TypeBind,
			Source: dir,
			Target: containerData,
		},
	}
	containerConfig.Cmd = []string{"--user-data-dir=" + containerData}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		containerConfig.Cmd = append(containerConfig.Cmd,
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight))
	}
	return containerConfig, hostConfig, opts, nil
}

func (p *ContainerLauncher) stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := p.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		p.logger.Warn("failed to stop container", zap.String("container", shortID(containerID)), zap.Error(err))
	}
	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// EnsureImage pulls the browser image if it is not present locally
func (p *ContainerLauncher) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == p.image {
				return nil
			}
		}
	}

	reader, err := p.client.ImagePull(ctx, p.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (p *ContainerLauncher) Close() error {
	return p.client.Close()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
