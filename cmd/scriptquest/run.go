package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scriptquest/internal/admin"
	"scriptquest/internal/config"
	"scriptquest/internal/emu"
	"scriptquest/internal/logging"
	"scriptquest/internal/memscan"
	"scriptquest/internal/runner"
	"scriptquest/internal/state"
)

var (
	runScript     string
	runChallenge  string
	runConfigPath string
	runSchemaPath string
	runBudget     int
	runLogFile    string
	runPrintOnly  bool
	runTUI        bool
	runAdmin      string
	runSeed       int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a script against a challenge",
	Long:  "run executes a player script against the emulated console and reports whether the challenge goal was reached within the frame budget.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := config.Load(runConfigPath, runSchemaPath)
		if err != nil {
			return err
		}
		ch, err := cat.Challenge(runChallenge)
		if err != nil {
			return err
		}
		script, err := os.ReadFile(runScript)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}

		logger := logging.New()
		ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), logger))
		defer cancel()

		seed := runSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		console := emu.NewSidescroller(seed)
		reader := state.NewReader(console)
		reader.LoadTable(cat.Table())

		base, err := memscan.New(console, cat.ScanProbe()).Discover(ctx)
		if err != nil {
			logger.Warn("memory discovery failed, state reads will degrade to zero", "err", err)
		} else {
			reader.SetBase(base)
			logger.Info("memory region located", "base", fmt.Sprintf("0x%X", base))
		}

		r := runner.NewRunner(runner.NewCoordinator(console, reader))

		var tui *runner.TUIWriter
		if runTUI {
			tui = runner.NewTUIWriter(ch.Name)
			r.SetStatusListener(tui.SetStatus)
		}
		writer, cleanup, err := newWriters(runPrintOnly, runLogFile, tui)
		if err != nil {
			return err
		}
		defer cleanup()

		if runAdmin != "" {
			srv := admin.NewServer(r)
			go func() {
				logger.Info("admin server listening", "addr", runAdmin)
				if err := srv.Start(ctx, runAdmin); err != nil && err != http.ErrServerClosed {
					logger.Error("admin server failed", "err", err)
				}
			}()
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigs
			r.Stop()
		}()

		budget := ch.Budget
		if runBudget > 0 {
			budget = runBudget
		}
		goal, err := ch.Goal.Predicate()
		if err != nil {
			return err
		}

		var onLog func(runner.LogLine)
		if ls, ok := writer.(runner.LogSink); ok {
			onLog = func(line runner.LogLine) { ls.WriteLog(line) }
		}

		res, err := r.Run(ctx, runner.Options{
			Script:      string(script),
			ChallengeID: ch.ID,
			Budget:      budget,
			SampleEvery: ch.SampleEvery,
			Goal:        goal,
			Writer:      writer,
			Callbacks:   runner.Callbacks{OnLog: onLog},
		})
		if err != nil {
			return err
		}

		if tui != nil {
			tui.Quit()
		}
		printResult(ch, res)
		return nil
	},
}

func printResult(ch *config.Challenge, res *runner.RunResult) {
	fmt.Printf("challenge: %s (%s)\n", ch.Name, ch.ID)
	fmt.Printf("status:    %s\n", res.Status)
	fmt.Printf("message:   %s\n", res.Message)
	fmt.Printf("frames:    %d\n", res.TicksUsed)
	if len(res.FinalSnapshot) > 0 {
		fmt.Println("state:")
		for _, name := range res.FinalSnapshot.Names() {
			fmt.Printf("  %-12s %d\n", name, res.FinalSnapshot[name])
		}
	}
	if res.ErrMessage != "" {
		fmt.Printf("error:     %s\n", res.ErrMessage)
		if res.Trace != "" {
			fmt.Println(res.Trace)
		}
	}
	if (res.Status == runner.StatusFailure || res.Status == runner.StatusTimeout) && len(ch.Hints) > 0 {
		fmt.Println("hints:")
		for _, h := range ch.Hints {
			fmt.Printf("  - %s\n", h)
		}
	}
}

func init() {
	runCmd.Flags().StringVar(&runScript, "script", "", "Path to the player script")
	runCmd.Flags().StringVar(&runChallenge, "challenge", "", "Challenge ID from the catalog")
	runCmd.Flags().StringVar(&runConfigPath, "config", "config/challenges.yaml", "Path to challenge catalog YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "config/schema.cue", "Path to CUE schema file")
	runCmd.Flags().IntVar(&runBudget, "budget", 0, "Frame budget override (0 uses the catalog value)")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Path to export snapshot rows (JSONL)")
	runCmd.Flags().BoolVar(&runPrintOnly, "print-only", false, "Print snapshots to STDOUT instead of writing to DB")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Render run progress in a terminal UI")
	runCmd.Flags().StringVar(&runAdmin, "admin", "", "Address for the admin HTTP server (e.g. :8080, empty disables)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "Console seed (0 picks a random seed)")
	runCmd.MarkFlagRequired("script")
	runCmd.MarkFlagRequired("challenge")
}
