package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gcasillas/clinical-imaging/internal/config"
	"github.com/gcasillas/clinical-imaging/internal/domain/admission"
	"github.com/gcasillas/clinical-imaging/internal/domain/annotation"
	"github.com/gcasillas/clinical-imaging/internal/domain/imaging"
	"github.com/gcasillas/clinical-imaging/internal/domain/source"
	"github.com/gcasillas/clinical-imaging/internal/platform/db"
	"github.com/gcasillas/clinical-imaging/internal/platform/dicomweb"
	"github.com/gcasillas/clinical-imaging/internal/platform/hl7v2"
	"github.com/gcasillas/clinical-imaging/internal/server"
	"github.com/gcasillas/clinical-imaging/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "imaging-gateway",
		Short:         "HL7 admission ingestion, DICOMweb to FHIR mapping and imaging workqueue",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(mapCmd())
	root.AddCommand(sendCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, and the MLLP listener when MLLP_ADDR is set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres admissions schema",
	}

	open := func(cmd *cobra.Command) (*db.Migrator, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
		}
		schema, _ := cmd.Flags().GetString("schema")
		pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, migrationsFS(cfg.MigrationsDir), schema), pool.Close, nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := m.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := m.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}

	for _, c := range []*cobra.Command{up, status} {
		c.Flags().String("schema", db.DefaultSchema, "Target schema")
		cmd.AddCommand(c)
	}
	return cmd
}

// migrationsFS prefers an on-disk directory so operators can add files
// without rebuilding; the embedded set is the fallback.
func migrationsFS(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	return migrations.FS
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-8s %-32s %-8s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		state, at := "pending", ""
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				at = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-8d %-32s %-8s %s\n", s.Version, s.Name, state, at)
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.hl7>",
		Short: "Ingest an HL7 v2 message file into the configured store and print the ACK",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read message: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			store, err := server.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			return ingestFile(cmd.Context(), cmd.OutOrStdout(), admission.NewService(store.Store, logger), raw)
		},
	}
}

func ingestFile(ctx context.Context, w io.Writer, svc *admission.Service, raw []byte) error {
	ack, rec, err := svc.Ingest(ctx, raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "stored %s (%s)\n", rec.ID, rec.FullName)
	fmt.Fprintln(w, printableHL7(ack))
	return nil
}

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <file.hl7>",
		Short: "Send an HL7 v2 message file to an MLLP listener and print the ACK",
		Long:  "Send an HL7 v2 message file to an MLLP listener and print the ACK. A listener that rejects\nthe message closes the connection without an ACK, which is reported as an error.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read message: %w", err)
			}
			addr, _ := cmd.Flags().GetString("addr")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			ack, err := hl7v2.SendMLLP(ctx, addr, normalizeSegments(raw))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), printableHL7(ack))
			return nil
		},
	}
	cmd.Flags().String("addr", "localhost:2575", "MLLP listener address")
	cmd.Flags().Duration("timeout", 10*time.Second, "Time to wait for the ACK")
	return cmd
}

// normalizeSegments turns file line endings into HL7 segment separators.
func normalizeSegments(raw []byte) []byte {
	s := strings.ReplaceAll(string(raw), "\r\n", "\r")
	s = strings.ReplaceAll(s, "\n", "\r")
	return []byte(strings.TrimRight(s, "\r"))
}

func printableHL7(msg []byte) string {
	return strings.TrimRight(strings.ReplaceAll(string(msg), "\r", "\n"), "\n")
}

func mapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map <file.json|file.dcm>",
		Short: "Map DICOMweb JSON, a DICOM Part 10 file or an admission record to an ImagingStudy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			withFinding, _ := cmd.Flags().GetBool("annotate")
			rulesFile, _ := cmd.Flags().GetString("rules")
			return mapFile(cmd.OutOrStdout(), args[0], withFinding, rulesFile)
		},
	}
	cmd.Flags().Bool("annotate", false, "Include the annotator finding")
	cmd.Flags().String("rules", "", "Annotator rules YAML file")
	return cmd
}

func readSource(path string) (source.Record, error) {
	if strings.EqualFold(filepath.Ext(path), ".dcm") {
		md, err := dicomweb.ReadPart10(path)
		if err != nil {
			return source.Record{}, err
		}
		return source.FromStudy(md), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return source.Record{}, fmt.Errorf("read %s: %w", path, err)
	}
	return source.Decode(data)
}

func mapFile(w io.Writer, path string, withFinding bool, rulesFile string) error {
	src, err := readSource(path)
	if err != nil {
		return err
	}

	out := map[string]interface{}{"imagingStudy": imaging.NewMapper(nil).Map(src)}
	if withFinding {
		rules, err := annotation.LoadRules(rulesFile)
		if err != nil {
			return err
		}
		out["finding"] = annotation.NewRuleAnnotator(rules).Annotate(src)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	if cfg.IsDev() {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "imaging-gateway").Logger()
}
