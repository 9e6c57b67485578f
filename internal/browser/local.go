package browser

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// LocalLauncher starts a headless browser process on this host
type LocalLauncher struct {
	ExecPath string
	DataRoot string

	probe  *DevToolsProbe
	logger *zap.Logger
}

// NewLocalLauncher creates a launcher for host browser processes
func NewLocalLauncher(execPath, dataRoot string, probe *DevToolsProbe, logger *zap.Logger) *LocalLauncher {
	if dataRoot == "" {
		dataRoot = filepath.Join(os.TempDir(), "browser-data")
	}
	return &LocalLauncher{
		ExecPath: execPath,
		DataRoot: dataRoot,
		probe:    probe,
		logger:   logger.Named("launcher"),
	}
}

func (l *LocalLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("reserve debugging port: %w", err)
	}

	if !opts.Minimal && opts.UserDataDir == "" {
		opts.UserDataDir = filepath.Join(l.DataRoot, opts.SessionID)
		if err := os.MkdirAll(opts.UserDataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create user data directory: %w", err)
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions(opts, port)...)

	h, err := start(ctx, allocCtx, allocCancel, opts, nil, l.logger)
	if err != nil {
		return nil, err
	}

	info, err := l.probe.Version(ctx, fmt.Sprintf("http://127.0.0.1:%d", port))
	if err != nil {
		l.logger.Warn("debugging url unavailable", zap.String("session", opts.SessionID), zap.Error(err))
	} else {
		h.debugURL = info.WebSocketDebuggerURL
	}

	l.logger.Info("browser launched",
		zap.String("session", opts.SessionID),
		zap.Bool("minimal", opts.Minimal),
		zap.Int("port", port))
	return h, nil
}

func (l *LocalLauncher) allocatorOptions(opts LaunchOptions, port int) []chromedp.ExecAllocatorOption {
	var alloc []chromedp.ExecAllocatorOption
	if opts.Minimal {
		alloc = []chromedp.ExecAllocatorOption{
			chromedp.NoFirstRun,
			chromedp.NoDefaultBrowserCheck,
			chromedp.Headless,
			chromedp.Flag("no-sandbox", true),
		}
	} else {
		alloc = append(alloc, chromedp.DefaultExecAllocatorOptions[:]...)
		alloc = append(alloc,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-background-timer-throttling", true),
			chromedp.Flag("disable-renderer-backgrounding", true),
		)
		if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
			alloc = append(alloc, chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight))
		}
	}

	alloc = append(alloc, chromedp.Flag("remote-debugging-port", fmt.Sprint(port)))
	if opts.UserDataDir != "" {
		alloc = append(alloc, chromedp.UserDataDir(opts.UserDataDir))
	}
	if l.ExecPath != "" {
		alloc = append(alloc, chromedp.ExecPath(l.ExecPath))
	}
	return alloc
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
