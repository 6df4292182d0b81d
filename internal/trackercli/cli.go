package trackercli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/apiapp"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/docfetch"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/envutil"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/exporter"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/imaging"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/objstore"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/store"
)

// Execute runs the CLI with the given arguments (excluding the program
// name).
func Execute(args []string) error {
	root := newRootCommand()
	root.SetArgs(args)
	return root.Execute()
}

func newRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "retailtracker",
		Short:         "Retail inventory submission reports and previews",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to env file")

	root.AddCommand(
		newSetupCommand(),
		newServeCommand(&envFile),
		newExportCommand(&envFile),
		newTokenCommand(&envFile),
		newTrailCommand(),
	)
	return root
}

func newSetupCommand() *cobra.Command {
	var (
		storageURL string
		storageKey string
		dbPath     string
		addr       string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write the env file the server and CLI read at startup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if storageURL == "" {
				return errors.New("--storage-url is required")
			}
			envFile, _ := cmd.Flags().GetString("env-file")
			values := map[string]string{
				"STORAGE_URL":         storageURL,
				"STORAGE_SERVICE_KEY": storageKey,
				"DB_PATH":             dbPath,
				"API_ADDR":            addr,
				"IMAGE_MODE":          string(imaging.ModeRaster),
			}
			if err := envutil.WriteDotEnv(envFile, values, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", envFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&storageURL, "storage-url", "", "object storage base URL")
	cmd.Flags().StringVar(&storageKey, "storage-key", "", "object storage service key")
	cmd.Flags().StringVar(&dbPath, "db", "data.db", "sqlite database path")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "api listen address")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing env file")
	return cmd
}

func newServeCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := envutil.LoadDotEnv(*envFile); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg := apiapp.DefaultConfigFromEnv()
			if err := ensureParentDir(cfg.DBPath); err != nil {
				return err
			}
			if err := apiapp.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newExportCommand(envFile *string) *cobra.Command {
	var (
		outDir string
		prefer string
		share  bool
	)

	cmd := &cobra.Command{
		Use:   "export <submission-id>",
		Short: "Build a submission report workbook and write it locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := envutil.LoadDotEnv(*envFile); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}

			pref := exporter.PreferPersistent
			if prefer == string(exporter.PreferCache) {
				pref = exporter.PreferCache
			} else if prefer != string(exporter.PreferPersistent) {
				return fmt.Errorf("unknown --prefer value %q", prefer)
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			exp, st, err := buildExporter(logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			persistent, cache := exporter.DefaultCandidates()
			if outDir != "" {
				persistent = append([]string{outDir}, persistent...)
			}
			notify := func(message string) {
				fmt.Fprintln(cmd.ErrOrStderr(), message)
			}
			resolver := exporter.NewLocationResolver(persistent, cache, notify, logger)

			var sharer exporter.Sharer
			if share {
				sharer = exporter.NewCommandSharer()
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			result, err := exp.ExportToFile(ctx, args[0], resolver, pref, sharer)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", result.Path)
			for slot, slotErr := range result.SlotErrors {
				fmt.Fprintf(cmd.ErrOrStderr(), "photo %d skipped: %v\n", slot+1, slotErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out-dir", "", "preferred output directory")
	cmd.Flags().StringVar(&prefer, "prefer", string(exporter.PreferPersistent), "location preference: persistent or cache")
	cmd.Flags().BoolVar(&share, "share", false, "open the workbook with the system handler after writing")
	return cmd
}

func newTokenCommand(envFile *string) *cobra.Command {
	var displayName string

	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Issue an API token for a user, creating the user if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := envutil.LoadDotEnv(*envFile); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ctx := cmd.Context()
			userID, err := st.EnsureUser(ctx, args[0], displayName)
			if err != nil {
				return err
			}
			token, err := st.IssueToken(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user: %s\ntoken: %s\n", userID, token)
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "display name for a newly created user")
	return cmd
}

func newTrailCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trail <path>",
		Short: "Print a probe trail file recorded during an export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attempts, err := docfetch.ReadTrail(args[0])
			if err != nil {
				return err
			}
			printAttempts(cmd.OutOrStdout(), attempts)
			return nil
		},
	}
}

func printAttempts(w io.Writer, attempts []docfetch.Attempt) {
	for _, a := range attempts {
		status := "ok"
		if !a.OK {
			status = a.Error
		}
		fmt.Fprintf(w, "%s %s/%s: %s\n", a.Method, a.Bucket, a.Path, status)
	}
}

func buildExporter(logger *zap.Logger) (*exporter.Exporter, *store.Store, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	cfg := apiapp.DefaultConfigFromEnv()
	storage, err := objstore.NewClient(objstore.Config{
		BaseURL:    cfg.StorageURL,
		ServiceKey: cfg.StorageKey,
	}, logger)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	normalizer, err := imaging.ForMode(cfg.ImageMode, storage, logger)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	fetcher := docfetch.NewFetcher(storage, cfg.Buckets, logger)
	trail := docfetch.NewTrailWriter(cfg.TrailDir, logger)
	return exporter.New(st, fetcher, normalizer, trail, logger), st, nil
}

func openStore() (*store.Store, error) {
	cfg := apiapp.DefaultConfigFromEnv()
	if err := ensureParentDir(cfg.DBPath); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func ensureParentDir(path string) error {
	if strings.TrimSpace(path) == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
