// fiscalctl is the local operations CLI for the fiscal core: number
// assignment, range reservation, document sealing/verification, and audit
// log verification against the configured local stores.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fiscal/backend/internal/application/sealing"
	"github.com/fiscal/backend/internal/domain/fiscal"
	"github.com/fiscal/backend/internal/infrastructure/audit"
	"github.com/fiscal/backend/internal/infrastructure/config"
	"github.com/fiscal/backend/internal/infrastructure/integrity"
	"github.com/fiscal/backend/internal/infrastructure/logger"
	"github.com/fiscal/backend/internal/infrastructure/numbering"
	"github.com/fiscal/backend/internal/infrastructure/persistence"
	"github.com/fiscal/backend/internal/infrastructure/telemetry"
)

func main() {
	root := &cobra.Command{
		Use:           "fiscalctl",
		Short:         "Fiscal document numbering, sealing, and audit tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		nextCommand(),
		reserveCommand(),
		statusCommand(),
		sealCommand(),
		verifyCommand(),
		auditCommand(),
		seriesCommand(),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app bundles the wired components behind each command.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	engine     *integrity.Engine
	auditor    *audit.Writer
	reader     *audit.Reader
	db         *persistence.Database
	documents  *persistence.GormDocumentRepository
	controller *numbering.Controller
	sealer     *sealing.Service
	tracer     *telemetry.TracerProvider
}

// bootstrap constructs the full component graph from configuration. Every
// component is built explicitly here; nothing is a process-wide singleton.
func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, err
	}

	tracer, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return nil, err
	}

	engine, err := integrity.NewEngine(integrity.Config{
		MasterSecret:  cfg.Security.MasterSecret,
		KDFSalt:       cfg.Security.KDFSalt,
		SystemVersion: cfg.Security.SystemVersion,
	})
	if err != nil {
		return nil, err
	}

	auditor := audit.NewWriter(audit.Config{
		LogPath:       cfg.Storage.AuditLogPath,
		EmergencyPath: cfg.Storage.EmergencyPath,
		Host:          engine.Host(),
	}, engine, log)

	db, err := persistence.NewDatabase(cfg.Storage.DocumentDBPath, log)
	if err != nil {
		return nil, err
	}
	documents := persistence.NewGormDocumentRepository(db.DB)

	controller, err := numbering.NewController(numbering.Config{
		ControlFilePath: cfg.Storage.ControlFilePath,
	}, documents, auditor, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		log:        log,
		engine:     engine,
		auditor:    auditor,
		reader:     audit.NewReader(engine),
		db:         db,
		documents:  documents,
		controller: controller,
		sealer:     sealing.NewService(engine, auditor, log),
		tracer:     tracer,
	}, nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.tracer != nil {
		_ = a.tracer.Shutdown(context.Background())
	}
	_ = logger.Sync(a.log)
}

func nextCommand() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "next <series>",
		Short: "Assign the next consecutive number of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()
			formatted, seq, err := a.controller.NextNumber(context.Background(), args[0], user)
			if err != nil {
				return err
			}
			fmt.Printf("%s (secuencial: %d)\n", formatted, seq)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Acting user recorded in the audit trail")
	return cmd
}

func reserveCommand() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "reserve <series> <count>",
		Short: "Reserve a contiguous block of numbers for batch issuance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("count must be an integer: %w", err)
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()
			numbers, err := a.controller.ReserveRange(context.Background(), args[0], count, user)
			if err != nil {
				return err
			}
			for _, n := range numbers {
				fmt.Println(n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Acting user recorded in the audit trail")
	return cmd
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [series]",
		Short: "Show the numbering control state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()
			var out any
			if len(args) == 1 {
				series, err := a.controller.SeriesState(args[0])
				if err != nil {
					return err
				}
				out = series
			} else {
				out = a.controller.State()
			}
			return printJSON(out)
		},
	}
}

func sealCommand() *cobra.Command {
	var docType, user string
	var store bool
	cmd := &cobra.Command{
		Use:   "seal <payload.json>",
		Short: "Seal a document payload and print the sealed record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var payload map[string]any
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			doc, err := a.sealer.Seal(context.Background(), payload, fiscal.DocumentType(docType), user)
			if err != nil {
				return err
			}
			if store {
				if err := a.documents.Save(context.Background(), doc); err != nil {
					return err
				}
			}
			export, err := doc.ExportMap()
			if err != nil {
				return err
			}
			return printJSON(export)
		},
	}
	cmd.Flags().StringVar(&docType, "type", fiscal.DocumentTypeInvoice.String(), "Document type (FACTURA, NOTA_CREDITO, NOTA_DEBITO)")
	cmd.Flags().StringVar(&user, "user", "", "Acting user recorded in the audit trail")
	cmd.Flags().BoolVar(&store, "store", false, "Persist the sealed document to the document store")
	return cmd
}

func verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <sealed.json>",
		Short: "Verify a sealed document's hash and signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var export map[string]any
			if err := json.Unmarshal(raw, &export); err != nil {
				return fmt.Errorf("decode sealed document: %w", err)
			}
			doc, err := fiscal.DocumentFromExport(export)
			if err != nil {
				return err
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			if !a.sealer.Verify(doc) {
				fmt.Println("TAMPERED")
				os.Exit(1)
			}
			fmt.Println("VALID")
			return nil
		},
	}
}

func auditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit log operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Re-verify the integrity hash of every audit log entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()
			total, tampered, err := a.reader.VerifyFile(a.cfg.Storage.AuditLogPath)
			if err != nil {
				return err
			}
			fmt.Printf("%d entries, %d tampered\n", total, len(tampered))
			for _, entry := range tampered {
				fmt.Printf("  [%s] %s %s\n", entry.Timestamp, entry.Action, entry.DocumentNumber)
			}
			if len(tampered) > 0 {
				os.Exit(1)
			}
			return nil
		},
	})
	return cmd
}

func seriesCommand() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "series",
		Short: "Administrative series operations",
	}
	setActive := func(active bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()
			return a.controller.SetActive(args[0], active, user)
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "deactivate <series>",
			Short: "Deactivate a numbering series",
			Args:  cobra.ExactArgs(1),
			RunE:  setActive(false),
		},
		&cobra.Command{
			Use:   "reactivate <series>",
			Short: "Reactivate a numbering series",
			Args:  cobra.ExactArgs(1),
			RunE:  setActive(true),
		},
	)
	cmd.PersistentFlags().StringVar(&user, "user", "", "Acting user recorded in the audit trail")
	return cmd
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
