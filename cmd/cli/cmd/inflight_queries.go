package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/oom-forensics/hprof-inflight/internal/inflight"
	"github.com/oom-forensics/hprof-inflight/pkg/config"
	"github.com/oom-forensics/hprof-inflight/pkg/telemetry"
	"github.com/oom-forensics/hprof-inflight/pkg/utils"
)

var (
	printFlag bool
	saveFlag  bool
	configPath string
)

var inflightQueriesCmd = &cobra.Command{
	Use:     "inflight-queries <hprof-file>",
	Aliases: []string{"inflight_queries"},
	Short:   "Recover in-flight HTTP request bodies from a heap dump",
	Args:    cobra.ExactArgs(1),
	RunE:    runInflightQueries,
}

func init() {
	inflightQueriesCmd.Flags().BoolVar(&printFlag, "print", false, "Print each recovered request body to stdout")
	inflightQueriesCmd.Flags().BoolVar(&saveFlag, "save", false, "Save each recovered request body as query_<n>.json in a <dump>.prof directory next to the dump")
	inflightQueriesCmd.Flags().StringVar(&configPath, "config", "", "Path to a config file (defaults: ./config.yaml, ./configs/config.yaml)")
	rootCmd.AddCommand(inflightQueriesCmd)
}

func runInflightQueries(cmd *cobra.Command, args []string) error {
	if !printFlag && !saveFlag {
		return fmt.Errorf("at least one of --print or --save is required")
	}

	hprofPath := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	shutdown, err := telemetry.Init(ctx)
	if err != nil {
		GetLogger().Warn("failed to initialize telemetry", "error", err)
	}
	defer shutdown(ctx)

	tracer := otel.Tracer("hprof-inflight")
	timer := utils.NewTimer("inflight-queries", utils.WithLogger(GetLogger()))

	if err := waitForStableFile(ctx, hprofPath, cfg.Wait.PollInterval, cfg.Wait.Timeout); err != nil {
		return fmt.Errorf("waiting for %q to finish writing: %w", hprofPath, err)
	}

	loadCtx, loadSpan := tracer.Start(ctx, "load_heap_dump")
	loadPhase := timer.Start("load")
	mapped, err := inflight.OpenMappedFile(hprofPath)
	if err != nil {
		loadPhase.Stop()
		loadSpan.End()
		return err
	}
	defer mapped.Close()

	profile, err := inflight.Load(mapped.Bytes, GetLogger())
	loadPhase.Stop()
	loadSpan.End()
	if err != nil {
		return err
	}

	reconstructCtx, reconstructSpan := tracer.Start(loadCtx, "reconstruct_inflight_queries")
	reconstructPhase := timer.Start("reconstruct")
	queries, err := inflight.ReadInflightQueries(reconstructCtx, profile)
	reconstructPhase.Stop()
	reconstructSpan.End()
	if err != nil {
		return err
	}

	var outDir string
	if saveFlag {
		outDir, err = prepareOutputDir(hprofPath)
		if err != nil {
			return err
		}
	}

	writePhase := timer.Start("write_output")
	for i, q := range queries {
		fmt.Fprintf(os.Stderr, "query %d\n", i)
		if printFlag {
			fmt.Println(q.Body)
		}
		if saveFlag {
			path := filepath.Join(outDir, fmt.Sprintf("query_%d.json", i))
			if err := os.WriteFile(path, []byte(q.Body), 0644); err != nil {
				writePhase.Stop()
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
		}
	}
	writePhase.Stop()
	timer.PrintSummary()

	return nil
}

// prepareOutputDir computes and creates the sibling ".prof" directory
// that --save writes query_<n>.json files into, mirroring the original
// implementation's convention of deriving a <dump-dir>/<dump-name>.prof
// directory from the input path.
func prepareOutputDir(hprofPath string) (string, error) {
	abs, err := filepath.Abs(hprofPath)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(filepath.Dir(abs), filepath.Base(abs)+".prof")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// waitForStableFile polls a file's size until it stops growing (or the
// file already exists and is not currently being written to), giving up
// after timeout. A crash-triggered heap dump can still be flushed to
// disk by the JVM after the crashing process is first noticed.
func waitForStableFile(ctx context.Context, path string, pollInterval, timeout time.Duration) error {
	return waitForStableFileWithClock(ctx, utils.NewRealClock(), path, pollInterval, timeout)
}

// waitForStableFileWithClock is the clock-injected implementation, split out
// so the poll loop itself stays testable without sleeping in real time.
func waitForStableFileWithClock(ctx context.Context, clock utils.Clock, path string, pollInterval, timeout time.Duration) error {
	deadline := clock.Now().Add(timeout)
	var lastSize int64 = -1

	for {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) && clock.Now().Before(deadline) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-clock.After(pollInterval):
					continue
				}
			}
			return err
		}

		if info.Size() == lastSize && lastSize > 0 {
			return nil
		}
		lastSize = info.Size()

		if clock.Now().After(deadline) {
			return fmt.Errorf("timed out after %s waiting for %q to stop growing", timeout, path)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(pollInterval):
		}
	}
}
