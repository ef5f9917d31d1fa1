package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/selfie2snap/selfie2snap/internal/config"
	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/gallery"
	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/logging"
	"github.com/selfie2snap/selfie2snap/internal/options"
	"github.com/selfie2snap/selfie2snap/internal/orchestrator"
	"github.com/selfie2snap/selfie2snap/internal/store"
	"github.com/selfie2snap/selfie2snap/internal/tui"
	"github.com/selfie2snap/selfie2snap/internal/upload"
)

// ErrAllFailed is returned by a headless run in which no frame succeeded.
var ErrAllFailed = errors.New("no frame succeeded")

var generateCmd = &cobra.Command{
	Use:   "generate --left <image> --right <image>",
	Short: "Generate frames from two portraits",
	Long: `Generate frames from a left and a right portrait.

By default an interactive view shows every frame as it completes; failed
frames can be retried with 'r' and finished frames exported with 'e'.
With --no-tui the run prints one line per frame event, exports every
succeeded frame to the output directory and exits.

Options not given on the command line come from the generation section
of the config file.`,
	Example: `  selfie2snap generate --left me.jpg --right you.png --frames 6 --scene beach
  selfie2snap generate --left a.png --right b.png --aspect 16:9 --style "film grain" --no-tui`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	addGenerateFlags(generateCmd)
}

func addGenerateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("left", "", "left portrait (required)")
	f.String("right", "", "right portrait (required)")
	f.Int("frames", 0, fmt.Sprintf("number of frames, clamped to %d-%d", options.MinFrameCount, options.MaxFrameCount))
	f.String("aspect", "", "aspect ratio: 1:1, 3:4, 4:3, 9:16 or 16:9")
	f.String("scene", "", "scene preset")
	f.String("style", "", "free-form style hint")
	f.StringP("output", "o", "", "export directory (overrides paths.output_dir)")
	f.Bool("no-tui", false, "print progress lines instead of the interactive view")
	_ = cmd.MarkFlagRequired("left")
	_ = cmd.MarkFlagRequired("right")
}

// generateRequest is the parsed command line of generate.
type generateRequest struct {
	left, right string
	update      options.Update
	outputDir   string
	headless    bool
}

func parseGenerateFlags(cmd *cobra.Command, cfg *config.Config) generateRequest {
	f := cmd.Flags()
	req := generateRequest{outputDir: cfg.Paths.ResolveOutputDir()}
	req.left, _ = f.GetString("left")
	req.right, _ = f.GetString("right")
	req.headless, _ = f.GetBool("no-tui")
	if out, _ := f.GetString("output"); out != "" {
		req.outputDir = out
	}
	if f.Changed("frames") {
		n, _ := f.GetInt("frames")
		req.update.FrameCount = &n
	}
	for name, dst := range map[string]**string{
		"aspect": &req.update.AspectRatio,
		"scene":  &req.update.Scene,
		"style":  &req.update.Style,
	} {
		if f.Changed(name) {
			v, _ := f.GetString(name)
			*dst = &v
		}
	}
	return req
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	req := parseGenerateFlags(cmd, cfg)

	// The interactive view owns the terminal, so logs only go to a file.
	var fallback io.Writer
	if req.headless {
		fallback = cmd.ErrOrStderr()
	}
	logger, err := newLogger(cfg.Logging, fallback)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return generate(ctx, cfg, req, cmd.OutOrStdout(), logger)
}

func generate(ctx context.Context, cfg *config.Config, req generateRequest, out io.Writer, logger *logging.Logger) error {
	bus := event.NewBus()

	uploads := upload.NewStore(upload.WithBus(bus))
	for pos, path := range map[upload.Position]string{upload.Left: req.left, upload.Right: req.right} {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s portrait: %w", pos, err)
		}
		if err := uploads.SetBlob(pos, filepath.Base(path), "", data); err != nil {
			return fmt.Errorf("%s portrait %s: %w", pos, path, err)
		}
	}

	defaults, err := sessionDefaults(cfg.Generation)
	if err != nil {
		return err
	}
	opts := options.NewState(defaults)
	if err := opts.Apply(req.update); err != nil {
		return err
	}

	orch, err := newOrchestrator(ctx, cfg, bus, logger)
	if err != nil {
		return err
	}
	defer orch.Close()

	gal := gallery.New(bus, store.NewMemory(), logger)
	defer gal.Close()

	if req.headless {
		return generateHeadless(ctx, bus, orch, gal, uploads, opts.Snapshot(), req.outputDir, out)
	}

	prefs, err := openSettings(ctx, cfg.Paths, bus, logger)
	if err != nil {
		return err
	}
	j, err := orch.Submit(uploads, opts.Snapshot())
	if err != nil {
		return err
	}
	return tui.New(bus, orch, gal, prefs, j.ID, req.outputDir, tui.WithAltScreen()).Run(ctx)
}

// progressPrinter writes event lines to out from a single goroutine so
// concurrent frame events never interleave.
type progressPrinter struct {
	mu     sync.Mutex
	lines  chan string
	done   chan struct{}
	closed bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	p := &progressPrinter{lines: make(chan string, 64), done: make(chan struct{})}
	go func() {
		defer close(p.done)
		for line := range p.lines {
			fmt.Fprintln(out, line)
		}
	}()
	return p
}

func (p *progressPrinter) handle(e event.Event) {
	line := describeEvent(e)
	if line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.lines <- line
	}
}

// Close flushes pending lines.
func (p *progressPrinter) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.lines)
	}
	p.mu.Unlock()
	<-p.done
}

func generateHeadless(ctx context.Context, bus *event.Bus, orch *orchestrator.Orchestrator, gal *gallery.Gallery, uploads *upload.Store, opts options.Options, outputDir string, out io.Writer) error {
	printer := newProgressPrinter(out)
	subID := bus.SubscribeAll(printer.handle)
	finish := func() {
		bus.Unsubscribe(subID)
		printer.Close()
	}

	j, err := orch.Submit(uploads, opts)
	if err != nil {
		finish()
		return err
	}
	status, err := orch.Wait(ctx, j.ID)
	finish()
	if err != nil {
		return err
	}

	paths, err := gal.ExportAll(j.ID, outputDir)
	for _, p := range paths {
		fmt.Fprintf(out, "exported %s\n", p)
	}
	if err != nil {
		return err
	}

	snap := j.Snapshot()
	fmt.Fprintf(out, "job %s %s: %d succeeded, %d failed, %d cancelled\n",
		j.ID, status, snap.Counts.Succeeded, snap.Counts.Failed, snap.Counts.Cancelled)
	if status == job.StatusAllFailed {
		return fmt.Errorf("%w: %d of %d frames failed", ErrAllFailed, snap.Counts.Failed, snap.Counts.Total)
	}
	return nil
}

// describeEvent renders a frame or job event as a progress line.
func describeEvent(e event.Event) string {
	switch ev := e.(type) {
	case event.JobSubmittedEvent:
		return fmt.Sprintf("job %s submitted: %d frames, %s, %s", ev.JobID, ev.FrameCount, ev.AspectRatio, ev.Scene)
	case event.FrameDispatchedEvent:
		return fmt.Sprintf("frame %d dispatched (attempt %d)", ev.Index+1, ev.Attempt)
	case event.FrameSucceededEvent:
		return fmt.Sprintf("frame %d succeeded", ev.Index+1)
	case event.FrameFailedEvent:
		return fmt.Sprintf("frame %d failed: %s: %s", ev.Index+1, ev.Kind, ev.Reason)
	case event.FrameCancelledEvent:
		return fmt.Sprintf("frame %d cancelled", ev.Index+1)
	case event.JobProgressEvent:
		return fmt.Sprintf("progress %.0f%% (%d/%d)", ev.Percent, ev.Terminal, ev.Total)
	default:
		return ""
	}
}
