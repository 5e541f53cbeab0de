package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	"github.com/vonshlovens/obsync-notion/internal/config"
	"github.com/vonshlovens/obsync-notion/internal/notion"
	"github.com/vonshlovens/obsync-notion/internal/sync"
	"github.com/vonshlovens/obsync-notion/internal/vault"
	"github.com/vonshlovens/obsync-notion/internal/watcher"
)

const (
	keyringService = "obsync-notion"
	keyringUser    = "notion-token"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "obsync-notion",
		Short:   "Sync Notion databases with an Obsidian vault",
		Long:    `A cross-platform CLI that synchronizes Notion databases with markdown folders in an Obsidian vault, in either or both directions.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		syncCommand(),
		pullCommand(),
		pushCommand(),
		addCommand(),
		listCommand(),
		schemaCommand(),
		statusCommand(),
		authCommand(),
		initCommand(),
		daemonCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveToken finds the Notion API token: config/env first, then the
// OS keyring.
func resolveToken(settings *config.Settings) (string, error) {
	if settings.NotionToken != "" {
		return settings.NotionToken, nil
	}
	token, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		return "", fmt.Errorf("no Notion token configured; set notion_token, OBSYNC_NOTION_TOKEN, or run 'obsync-notion auth set'")
	}
	return token, nil
}

// buildEngine wires the engine and its collaborators from settings.
func buildEngine(settings *config.Settings, showProgress bool) (*sync.Engine, error) {
	token, err := resolveToken(settings)
	if err != nil {
		return nil, err
	}

	client := notion.NewClient(token, settings.RetryAttempts, settings.RequestDelayMs)
	store := vault.NewDirStore(settings.VaultPath, settings.IgnorePatterns, settings.IncludePatterns)

	persist := func(cfg config.SyncConfig) error {
		settings.ReplaceSyncConfig(cfg)
		return config.Save(settings)
	}

	return sync.NewEngine(client, store, sync.Options{
		ConflictPolicy: settings.ConflictPolicy,
		Persist:        persist,
		ShowProgress:   showProgress,
	}), nil
}

// runOne executes one pair with an optional direction override and
// records the result.
func runOne(ctx context.Context, settings *config.Settings, name string, override config.Direction) error {
	cfg := settings.FindSyncConfig(name)
	if cfg == nil {
		return fmt.Errorf("no sync pair named %q", name)
	}

	engine, err := buildEngine(settings, isTerminal())
	if err != nil {
		return err
	}

	started := time.Now()
	updated, summary, err := engine.Run(ctx, *cfg, override)

	if history, herr := sync.NewHistory(); herr == nil {
		history.RecordResult(sync.RunResult{Config: updated, Summary: summary, Err: err}, started)
		if serr := history.Save(); serr != nil {
			slog.Warn("failed to save run history", "error", serr)
		}
	}

	if err != nil {
		return err
	}

	settings.ReplaceSyncConfig(updated)
	if err := config.Save(settings); err != nil {
		slog.Warn("failed to persist settings", "error", err)
	}

	printSummary(updated.Name, summary)
	return nil
}

// runAll executes every enabled pair and records results.
func runAll(ctx context.Context, settings *config.Settings) error {
	engine, err := buildEngine(settings, isTerminal())
	if err != nil {
		return err
	}

	started := time.Now()
	results := engine.SyncAll(ctx, settings)

	history, herr := sync.NewHistory()
	for _, res := range results {
		if herr == nil {
			history.RecordResult(res, started)
		}
		if res.Err != nil {
			fmt.Printf("%s: FAILED: %v\n", res.Config.Name, res.Err)
			continue
		}
		printSummary(res.Config.Name, res.Summary)
	}
	if herr == nil {
		if err := history.Save(); err != nil {
			slog.Warn("failed to save run history", "error", err)
		}
	}

	return nil
}

func printSummary(name string, summary *sync.RunSummary) {
	if summary == nil {
		return
	}
	fmt.Printf("%s: %d created, %d updated, %d failed, %d conflicts\n",
		name, summary.Created, summary.Updated, summary.Failed, summary.Conflicts)
	for _, item := range summary.ConflictItems {
		fmt.Printf("  conflict: %s\n", item)
	}
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [pair]",
		Short: "Run one sync pair, or all enabled pairs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx := cmd.Context()
			if len(args) == 1 {
				return runOne(ctx, settings, args[0], "")
			}
			return runAll(ctx, settings)
		},
	}
}

func pullCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <pair>",
		Short: "Force a notion-to-obsidian sync for one pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runOne(cmd.Context(), settings, args[0], config.DirectionPull)
		},
	}
}

func pushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "push <pair>",
		Short: "Force an obsidian-to-notion sync for one pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runOne(cmd.Context(), settings, args[0], config.DirectionPush)
		},
	}
}

func addCommand() *cobra.Command {
	var (
		name       string
		folder     string
		databaseID string
		direction  string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new sync pair to the settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if name == "" || folder == "" || databaseID == "" {
				return fmt.Errorf("--name, --folder and --database are required")
			}

			pair := config.SyncConfig{
				ID:         uuid.NewString(),
				Name:       name,
				FolderPath: folder,
				DatabaseID: databaseID,
				Direction:  config.Direction(direction),
				Mode:       config.ModeManual,
				Enabled:    true,
			}
			settings.SyncConfigs = append(settings.SyncConfigs, pair)

			if err := config.Validate(settings); err != nil {
				return err
			}
			if err := config.Save(settings); err != nil {
				return err
			}

			fmt.Printf("Added sync pair %q (%s)\n", name, pair.ID)
			fmt.Println("Add field mappings to the config file to enable obsidian-to-notion sync.")
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name for the pair")
	cmd.Flags().StringVar(&folder, "folder", "", "vault folder, relative to vault_path")
	cmd.Flags().StringVar(&databaseID, "database", "", "Notion database id")
	cmd.Flags().StringVar(&direction, "direction", string(config.DirectionPull), "sync direction")
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured sync pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Name", "Folder", "Database", "Direction", "Mappings", "Enabled", "Last Sync"})

			for _, pair := range settings.SyncConfigs {
				lastSync := "never"
				if pair.LastSyncMillis > 0 {
					lastSync = time.UnixMilli(pair.LastSyncMillis).Format(time.RFC3339)
				}
				table.Append([]string{
					pair.Name,
					pair.FolderPath,
					pair.DatabaseID,
					string(pair.Direction),
					strconv.Itoa(len(pair.Mappings)),
					strconv.FormatBool(pair.Enabled),
					lastSync,
				})
			}
			table.Render()
			return nil
		},
	}
}

func schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <pair>",
		Short: "Show the remote database schema for a pair",
		Long:  `Fetches the Notion database schema and prints property names and types, the raw material for writing field mappings.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			pair := settings.FindSyncConfig(args[0])
			if pair == nil {
				return fmt.Errorf("no sync pair named %q", args[0])
			}

			token, err := resolveToken(settings)
			if err != nil {
				return err
			}
			client := notion.NewClient(token, settings.RetryAttempts, settings.RequestDelayMs)

			schema, err := client.GetRecordSchema(cmd.Context(), pair.DatabaseID)
			if err != nil {
				return fmt.Errorf("failed to fetch schema: %w", err)
			}

			mapped := make(map[string]string)
			for _, m := range pair.Mappings {
				mapped[m.NotionProperty] = m.ObsidianProperty
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Property", "Type", "Mapped To"})
			for name, propType := range schema {
				table.Append([]string{name, propType, mapped[name]})
			}
			table.Render()
			return nil
		},
	}
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show last run outcomes per sync pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			history, err := sync.NewHistory()
			if err != nil {
				return fmt.Errorf("failed to load run history: %w", err)
			}

			fmt.Println("=== obsync-notion status ===")
			fmt.Printf("Vault: %s\n", settings.VaultPath)
			fmt.Printf("Conflict policy: %s\n", settings.ConflictPolicy)
			fmt.Printf("Auto-sync: %v (every %d min)\n", settings.AutoSync, settings.AutoSyncMinutes)
			fmt.Println()

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Pair", "Direction", "Last Run", "Created", "Updated", "Failed", "Conflicts", "Error"})

			for _, pair := range settings.SyncConfigs {
				rec := history.Get(pair.ID)
				if rec == nil {
					table.Append([]string{pair.Name, string(pair.Direction), "never", "", "", "", "", ""})
					continue
				}
				table.Append([]string{
					pair.Name,
					rec.Direction,
					rec.StartedAt.Format(time.RFC3339),
					strconv.Itoa(rec.Created),
					strconv.Itoa(rec.Updated),
					strconv.Itoa(rec.Failed),
					strconv.Itoa(rec.Conflicts),
					rec.Error,
				})
			}
			table.Render()
			return nil
		},
	}
}

func authCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Notion API token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store the Notion API token in the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print("Notion API token: ")
			reader := bufio.NewReader(os.Stdin)
			token, _ := reader.ReadString('\n')
			token = strings.TrimSpace(token)
			if token == "" {
				return fmt.Errorf("token is required")
			}
			if err := keyring.Set(keyringService, keyringUser, token); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			fmt.Println("Token stored.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored Notion API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := keyring.Delete(keyringService, keyringUser); err != nil {
				return fmt.Errorf("failed to remove token: %w", err)
			}
			fmt.Println("Token removed.")
			return nil
		},
	})

	return cmd
}

func initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup to create a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(os.Stdin)

			fmt.Println("=== obsync-notion setup ===")
			fmt.Println()

			fmt.Print("Obsidian vault path: ")
			vaultPath, _ := reader.ReadString('\n')
			vaultPath = strings.TrimSpace(vaultPath)
			if _, err := os.Stat(vaultPath); os.IsNotExist(err) {
				return fmt.Errorf("vault path does not exist: %s", vaultPath)
			}

			fmt.Print("Notion database id: ")
			databaseID, _ := reader.ReadString('\n')
			databaseID = strings.TrimSpace(databaseID)

			fmt.Print("Vault folder for this database [Notion]: ")
			folder, _ := reader.ReadString('\n')
			folder = strings.TrimSpace(folder)
			if folder == "" {
				folder = "Notion"
			}

			settings := config.DefaultSettings()
			settings.VaultPath = vaultPath
			if databaseID != "" {
				settings.SyncConfigs = append(settings.SyncConfigs, config.SyncConfig{
					ID:         uuid.NewString(),
					Name:       folder,
					FolderPath: folder,
					DatabaseID: databaseID,
					Direction:  config.DirectionPull,
					Mode:       config.ModeManual,
					Enabled:    true,
				})
			}

			if err := config.Save(settings); err != nil {
				return err
			}

			fmt.Printf("\nConfig file written to: %s\n", settings.SourceFile())
			fmt.Println("\nStore your Notion token with: obsync-notion auth set")
			fmt.Println("Then run: obsync-notion sync")
			return nil
		},
	}
}

func daemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled syncs and watch the vault for local edits",
		Long: `Runs all enabled pairs on the configured auto-sync interval and
watches the folders of push-capable pairs, pushing local edits after
they settle. Triggers are serialized through one loop; a new run never
starts while another is in flight.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			engine, err := buildEngine(settings, false)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var folders []watcher.Folder
			for _, pair := range settings.SyncConfigs {
				if !pair.Enabled || pair.Direction == config.DirectionPull {
					continue
				}
				if len(pair.Mappings) == 0 {
					continue
				}
				folders = append(folders, watcher.Folder{ConfigID: pair.ID, RelPath: pair.FolderPath})
			}

			var triggers <-chan watcher.Trigger
			if len(folders) > 0 {
				w, err := watcher.NewWatcher(settings.VaultPath, folders, 2000, settings.IgnorePatterns)
				if err != nil {
					return fmt.Errorf("failed to create watcher: %w", err)
				}
				if err := w.Start(ctx); err != nil {
					return fmt.Errorf("failed to start watcher: %w", err)
				}
				defer w.Stop()
				triggers = w.Triggers()
			}

			interval := time.Duration(settings.AutoSyncMinutes) * time.Minute
			var tick <-chan time.Time
			if settings.AutoSync && interval > 0 {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				tick = ticker.C
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			slog.Info("daemon started",
				"vault", settings.VaultPath,
				"watched_pairs", len(folders),
				"auto_sync", settings.AutoSync)

			// Initial full pass.
			if err := runAll(ctx, settings); err != nil {
				slog.Error("initial sync failed", "error", err)
			}

			for {
				select {
				case <-sigCh:
					slog.Info("shutting down")
					return nil

				case <-tick:
					if err := runAll(ctx, settings); err != nil {
						slog.Error("scheduled sync failed", "error", err)
					}

				case trig, ok := <-triggers:
					if !ok {
						triggers = nil
						continue
					}
					pair := settings.FindSyncConfig(trig.ConfigID)
					if pair == nil {
						continue
					}
					slog.Info("local edits settled, pushing", "config", pair.Name)
					started := time.Now()
					updated, summary, err := engine.Run(ctx, *pair, config.DirectionPush)
					if history, herr := sync.NewHistory(); herr == nil {
						history.RecordResult(sync.RunResult{Config: updated, Summary: summary, Err: err}, started)
						if serr := history.Save(); serr != nil {
							slog.Warn("failed to save run history", "error", serr)
						}
					}
					if err != nil {
						slog.Error("push failed", "config", pair.Name, "error", err)
						continue
					}
					settings.ReplaceSyncConfig(updated)
					if err := config.Save(settings); err != nil {
						slog.Warn("failed to persist settings", "error", err)
					}
				}
			}
		},
	}
}
