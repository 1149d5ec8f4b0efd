// touchmap - keyboard and mouse to touch mapping editor
// Edits the mapping document a touch runtime loads, and serves it.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"touchmap/internal/api"
	"touchmap/internal/autostart"
	"touchmap/internal/capture"
	"touchmap/internal/config"
	"touchmap/internal/embedded"
	"touchmap/internal/keymap"
	"touchmap/internal/osutils"
	"touchmap/internal/remote"
	"touchmap/internal/session"
	"touchmap/internal/store"
	"touchmap/internal/tray"
	"touchmap/internal/ui"
)

var (
	version      = "0.1.0"
	configPath   = flag.String("config", "", "Path to the config file (.json, .yaml or .yml)")
	editorOnly   = flag.Bool("ui", false, "Run only the editor, against the configured remote backend")
	serveOnly    = flag.Bool("serve", false, "Run only the mapping backend")
	validateFile = flag.String("validate", "", "Validate a mapping file and exit")
	printDefault = flag.Bool("print-default", false, "Print the default mapping document")
	showVer      = flag.Bool("version", false, "Show version")
	autoStart    = flag.String("autostart", "", "Start the backend on login: on or off")
	discover     = flag.Bool("discover", false, "List mapping backends on the local network")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("touchmap version %s\n", version)
		return
	}

	if *printDefault {
		if err := printDefaultDocument(); err != nil {
			log.Fatalf("Failed to print default mapping: %v", err)
		}
		return
	}

	if *validateFile != "" {
		os.Exit(validate(*validateFile))
	}

	if *autoStart != "" {
		if err := setAutostart(*autoStart); err != nil {
			log.Fatalf("Autostart: %v", err)
		}
		return
	}

	if *discover {
		if err := listBackends(); err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		return
	}

	if *editorOnly && *serveOnly {
		log.Fatalf("-ui and -serve are exclusive")
	}

	// Initialize config
	cfgMgr, err := newConfigManager()
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	if err := cfgMgr.Load(); err != nil {
		log.Printf("Warning: failed to load config: %v", err)
	}
	cfgMgr.RegisterChangeCallback(func() {
		log.Printf("Config: %s changed, restart to apply listener changes", cfgMgr.Path())
	})
	cfg := cfgMgr.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if !*editorOnly {
		if err := runBackend(gctx, g, cfg.Backend); err != nil {
			log.Fatalf("Failed to start backend: %v", err)
		}
	}

	if *serveOnly {
		log.Println("touchmap backend running. Press Ctrl+C to stop.")
		if err := g.Wait(); err != nil {
			log.Fatalf("Backend stopped: %v", err)
		}
		return
	}

	app := runEditor(gctx, g, cfg.Editor, !*editorOnly)

	if cfg.Editor.ShowTray {
		runTray(gctx, stop, app)
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("touchmap stopped: %v", err)
	}
	log.Println("Shutting down...")
}

func newConfigManager() (*config.Manager, error) {
	if *configPath != "" {
		return config.NewManagerWithPath(*configPath), nil
	}
	return config.NewManager()
}

func printDefaultDocument() error {
	doc, err := embedded.Default()
	if err != nil {
		return err
	}
	data, err := keymap.Encode(doc)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(os.Stdout)
	return err
}

// validate checks a mapping file and returns the process exit code
func validate(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		return 1
	}
	doc, err := keymap.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		return 1
	}
	fmt.Printf("%s: OK (%d key mappings, %d switch keys)\n", path, doc.KeyMaps.Len(), len(doc.Mouse.SwitchKeys))
	return 0
}

// setAutostart registers or removes the backend login item. The config path
// is passed along so the item serves the same mapping file.
func setAutostart(mode string) error {
	args := []string{"-serve"}
	if *configPath != "" {
		abs, err := filepath.Abs(*configPath)
		if err != nil {
			return err
		}
		args = append(args, "-config", abs)
	}
	entry, err := autostart.New(args...)
	if err != nil {
		return err
	}

	switch mode {
	case "on":
		if err := entry.Enable(); err != nil {
			return err
		}
		fmt.Printf("Autostart enabled: %s\n", strings.Join(entry.Command(), " "))
	case "off":
		if err := entry.Disable(); err != nil {
			return err
		}
		fmt.Println("Autostart disabled")
	default:
		return fmt.Errorf("unknown mode %q, want on or off", mode)
	}
	return nil
}

// listBackends prints the backends answering on the port of the configured remote
func listBackends() error {
	cfgMgr, err := newConfigManager()
	if err != nil {
		return err
	}
	if err := cfgMgr.Load(); err != nil {
		log.Printf("Warning: failed to load config: %v", err)
	}
	cfg := cfgMgr.Get()

	port := remote.Port(cfg.Editor.RemoteURL)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	found, err := remote.ScanLAN(ctx, port, cfg.Editor.APIToken)
	if err != nil {
		return err
	}

	fmt.Println("Mapping backends:")
	fmt.Println("-----------------")
	for _, b := range found {
		fmt.Printf("%s (%d key mappings)\n", b.URL, b.Keys)
	}
	if len(found) == 0 {
		fmt.Println("none found")
	}
	return nil
}

// runBackend starts the mapping backend and, if enabled, the file watcher in g
func runBackend(ctx context.Context, g *errgroup.Group, cfg config.BackendConfig) error {
	path := cfg.MappingFile
	if path == "" {
		dir, err := embedded.DataDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "mapping.json")
	}

	repo, err := api.NewRepository(path)
	if err != nil {
		return err
	}
	server := api.NewServer(repo, cfg)

	if runtime.GOOS == "windows" {
		port, public, err := osutils.ListenPort(cfg.Listen)
		if err != nil {
			return err
		}
		if public {
			go func() {
				if err := osutils.EnsureFirewallRule(port); err != nil {
					log.Printf("Firewall warning: %v", err)
				}
			}()
		}
	}

	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.WatchFile {
		g.Go(func() error {
			if err := server.Watch(ctx); err != nil {
				// Serving goes on without re-broadcasting external edits
				log.Printf("Warning: file watch disabled: %v", err)
			}
			return nil
		})
	}
	return nil
}

// editorApp is what the tray drives
type editorApp struct {
	server     *ui.Server
	session    *session.Session
	subscriber *remote.Subscriber
}

// runEditor loads the document, then starts the editor server and the push subscriber in g
func runEditor(ctx context.Context, g *errgroup.Group, cfg config.EditorConfig, localBackend bool) *editorApp {
	client := remote.NewClient(cfg.RemoteURL, cfg.APIToken)

	if localBackend {
		waitHealthy(ctx, client, 3*time.Second)
	}
	loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	doc, err := client.LoadOrDefault(loadCtx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to load the default mapping: %v", err)
	}

	st := store.New(doc)
	statusTTL := time.Duration(cfg.StatusMillis) * time.Millisecond
	sess := session.New(st, capture.NewTracker(), client, client, statusTTL)
	server := ui.NewServer(sess, st, cfg)

	app := &editorApp{server: server, session: sess}

	sub, err := remote.NewSubscriber(cfg.RemoteURL, cfg.APIToken)
	if err != nil {
		log.Printf("Warning: not following backend pushes: %v", err)
	} else {
		// Only edits made to the mapping file by other programs replace the
		// open document; our own exports come back as "set".
		sub.OnDocument = func(doc keymap.Document, origin string) {
			if origin != "file" {
				return
			}
			if err := sess.Replace(doc); err != nil {
				log.Printf("Warning: ignoring pushed document: %v", err)
				return
			}
			log.Printf("Editor: Reloaded mapping edited on the backend")
		}
		sub.Start()
		app.subscriber = sub
	}

	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		if sub != nil {
			sub.Close()
		}
		sess.WaitExports()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})
	return app
}

// waitHealthy gives a backend started in this process time to listen
func waitHealthy(ctx context.Context, client *remote.Client, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		if err := client.Health(ctx); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// runTray shows the tray menu and blocks until Quit or ctx is done
func runTray(ctx context.Context, quit func(), app *editorApp) {
	t := tray.New("touchmap", "touchmap - mapping editor")

	t.AddMenuItem("Open Editor", func() {
		go ui.OpenBrowser(app.server.URL())
	})
	t.AddMenuItem("Export", func() {
		seq := app.server.Export()
		log.Printf("Tray: Export %d started", seq)
	})
	t.AddSeparator()
	statusID := t.AddMenuItem("Status: idle", nil)
	connectedID := t.AddMenuItem("Backend connected", nil)
	t.AddSeparator()
	t.AddMenuItem("Quit", func() {
		quit()
	})

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-ticker.C:
				status := app.session.Status()
				if status == "" {
					status = "idle"
				}
				t.SetItemTitle(statusID, "Status: "+status)
				if app.subscriber != nil {
					t.SetItemChecked(connectedID, app.subscriber.IsConnected())
				}
			}
		}
	}()

	log.Println("touchmap running. Use the tray menu or press Ctrl+C to stop.")
	t.Run()
	quit()
}
