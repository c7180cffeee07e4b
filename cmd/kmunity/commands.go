package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/dereneaton/kmunity/internal/config"
	"github.com/dereneaton/kmunity/internal/daemon"
	"github.com/dereneaton/kmunity/internal/domain"
	"github.com/dereneaton/kmunity/internal/entrez"
	"github.com/dereneaton/kmunity/internal/history"
	"github.com/dereneaton/kmunity/internal/notify"
	"github.com/dereneaton/kmunity/internal/pipeline"
)

var (
	runCategory  string
	autoCategory string
	historyLimit int
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run ACCESSION",
		Short: "Process one named sequencing run",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&runCategory, "category", "", "database category (inferred from taxonomy when omitted)")
	rootCmd.AddCommand(runCmd)

	// auto command
	autoCmd := &cobra.Command{
		Use:   "auto",
		Short: "Select and process the best unpopulated run",
		RunE:  runAuto,
	}
	autoCmd.Flags().StringVar(&autoCategory, "category", "", "database category (default from config)")
	rootCmd.AddCommand(autoCmd)

	// daemon command
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run automatic attempts on a cron schedule",
		RunE:  runDaemon,
	}
	rootCmd.AddCommand(daemonCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent attempts",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of attempts to show")
	rootCmd.AddCommand(historyCmd)

	// config command
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE:  runConfig,
	}
	rootCmd.AddCommand(configCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// signalContext cancels on interrupt so scratch cleanup still runs.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func buildOrchestrator(cfg *config.Config) (*pipeline.Orchestrator, *history.Store) {
	store, err := history.New(cfg.History.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: attempt history unavailable: %v\n", err)
		store = nil
	}

	notifier := notify.NewMultiNotifier(
		notify.NewWebhookNotifier(cfg.Notifications.WebhookURL),
		notify.NewDesktopNotifier(cfg.Notifications.Desktop),
	)

	orch := pipeline.New(cfg, entrez.NewClient(cfg.Entrez), store, notifier, os.Stderr)
	return orch, store
}

func reportResult(res *pipeline.Result) {
	switch res.Outcome {
	case domain.OutcomeDuplicate:
		fmt.Printf("%s was already recorded by another contributor (log: %s)\n", res.Run, res.LogPath)
	case domain.OutcomeRecorded:
		fmt.Printf("recorded %s: genome size %s Gb, heterozygosity %s (log: %s)\n",
			res.Run, res.Record.GenomeSize, res.Record.Heterozygosity, res.LogPath)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var category domain.Category
	if runCategory != "" {
		if category, err = domain.ParseCategory(runCategory); err != nil {
			return err
		}
	}

	orch, store := buildOrchestrator(cfg)
	if store != nil {
		defer store.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := orch.RunExplicit(ctx, args[0], category)
	if err != nil {
		return err
	}
	reportResult(res)
	return nil
}

func runAuto(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := autoCategory
	if name == "" {
		name = cfg.General.DefaultCategory
	}
	category, err := domain.ParseCategory(name)
	if err != nil {
		return err
	}

	orch, store := buildOrchestrator(cfg)
	if store != nil {
		defer store.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := orch.RunAuto(ctx, category)
	if err != nil {
		if errors.Is(err, domain.ErrNoCandidateFound) {
			return fmt.Errorf("no unpopulated candidates for category %s", category)
		}
		return err
	}
	reportResult(res)
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var categories []domain.Category
	for _, name := range cfg.Daemon.Categories {
		category, err := domain.ParseCategory(name)
		if err != nil {
			return err
		}
		categories = append(categories, category)
	}

	orch, store := buildOrchestrator(cfg)
	if store != nil {
		defer store.Close()
	}

	d, err := daemon.New(cfg.Daemon.Cron, categories, orch.RunAuto, os.Stdout)
	if err != nil {
		return err
	}
	watcher, err := daemon.NewDatabaseWatcher(cfg.General.RepoRoot, categories, d)
	if err != nil {
		return err
	}
	defer watcher.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("daemon started: schedule %q, categories %v\n", cfg.Daemon.Cron, categories)
	d.Start(ctx)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.New(cfg.History.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	attempts, err := store.ListRecent(historyLimit)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Println("no attempts recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCATEGORY\tSTAGE\tOUTCOME\tSTARTED\tERROR")
	for _, a := range attempts {
		outcome := string(a.Outcome)
		if outcome == "" {
			outcome = "in progress"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.Run, a.Category, a.Stage, outcome,
			a.StartedAt.Local().Format("2006-01-02 15:04"), a.Error)
	}
	return w.Flush()
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
