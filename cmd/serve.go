package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/templens/internal/bridge"
	"github.com/conneroisu/templens/internal/config"
	"github.com/conneroisu/templens/internal/faults"
	"github.com/conneroisu/templens/internal/logging"
	"github.com/conneroisu/templens/internal/notify"
	"github.com/conneroisu/templens/internal/registry"
	"github.com/conneroisu/templens/internal/scheduler"
	"github.com/conneroisu/templens/internal/server"
	"github.com/conneroisu/templens/internal/types"
	"github.com/conneroisu/templens/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Run the snapshot core with the change-event stream",
	Long: `Serve registers the configured projects, watches their documents on disk,
and broadcasts every committed change over the WebSocket event stream at
/events. Editors and analysis tools subscribe to stay current.`,
	RunE: runServe,
}

func init() {
	bindServerFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := faults.NewCollector()
	sched := scheduler.New(logger)
	queue := notify.NewQueue(collector, logger)
	manager := registry.NewSnapshotManager(sched, queue, collector, logger)
	br := bridge.New(sched, manager, bridge.NoBuffers{}, logger)
	stream := server.NewEventStream(logger)

	// Listener order is fixed here, at composition time: the bridge first so
	// open/closed state is settled before anything else reacts.
	queue.Register(br, notify.PriorityBridge)
	queue.Register(stream, notify.PriorityStream)

	sched.Start(ctx)
	defer sched.Stop()

	fw, err := watcher.NewFileWatcher(time.Duration(cfg.Watch.DebounceMs)*time.Millisecond, logger)
	if err != nil {
		return err
	}
	defer func() { _ = fw.Stop() }()

	extensions := map[string]bool{}
	for _, p := range cfg.Projects {
		descriptor := types.ProjectDescriptor{
			Path:            p.Path,
			LanguageVersion: p.LanguageVersion,
			Extensions:      p.Extensions,
		}
		br.AddProject(descriptor, p.Root)
		if err := fw.AddRecursive(p.Root); err != nil {
			logger.Warn(ctx, err, "watching project root", "root", p.Root)
		}
		for _, ext := range p.Extensions {
			extensions[ext] = true
		}
	}

	exts := make([]string, 0, len(extensions))
	for ext := range extensions {
		exts = append(exts, ext)
	}
	fw.AddFilter(watcher.ExtensionFilter(exts))
	fw.AddHandler(br.HandleFileEvents)
	fw.Start(ctx)

	return stream.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port)
}
