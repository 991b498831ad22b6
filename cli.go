package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	buffStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	debuffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// cliOptions carries flag values that override the environment.
type cliOptions struct {
	logLevel string
	manifest string
	source   string
	dataDir  string
	dataURL  string
	policy   string

	cfg Config
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:          "drifter-planner",
		Short:        "Plan drifter support slots and companion synergies",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.manifest, "manifest", "", "path to the YAML manifest")
	pf.StringVar(&opts.source, "source", "", "data source: file, http or db")
	pf.StringVar(&opts.dataDir, "data-dir", "", "root directory for the file source")
	pf.StringVar(&opts.dataURL, "data-url", "", "base URL for the http source")
	pf.StringVar(&opts.policy, "policy", "", "fallback policy: strict or fallback")

	root.AddCommand(
		newServeCmd(opts),
		newPlanCmd(opts),
		newImportCmd(opts),
		newMCPCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *cliOptions) init(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	override := func(name string, dst *string, val string) {
		if flags.Changed(name) {
			*dst = val
		}
	}
	override("log-level", &cfg.LogLevel, o.logLevel)
	override("manifest", &cfg.ManifestPath, o.manifest)
	override("source", &cfg.Source, o.source)
	override("data-dir", &cfg.DataDir, o.dataDir)
	override("data-url", &cfg.DataURL, o.dataURL)
	override("policy", &cfg.FallbackPolicy, o.policy)
	if err := cfg.validate(); err != nil {
		return err
	}

	l, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = l
	o.cfg = cfg
	return nil
}

// newSource picks the document source named by the config. repo is only
// consulted for the db source.
func newSource(cfg Config, repo *SQLRepository) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case sourceHTTP:
		return newHTTPSource(cfg.DataURL, cfg.FetchTimeout), nil
	case sourceDB:
		if repo == nil {
			return nil, errors.New("db source requires an open repository")
		}
		return repo, nil
	default:
		return fileSource{root: cfg.DataDir}, nil
	}
}

// buildCatalog loads the manifest and the catalog from the configured source.
func buildCatalog(ctx context.Context, cfg Config) (*Catalog, error) {
	m, err := loadManifest(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}
	policy, err := parseFallbackPolicy(cfg.FallbackPolicy)
	if err != nil {
		return nil, err
	}

	var repo *SQLRepository
	if strings.EqualFold(strings.TrimSpace(cfg.Source), sourceDB) {
		repo, err = openRepository(cfg)
		if err != nil {
			return nil, err
		}
		defer repo.Close()
	}
	src, err := newSource(cfg, repo)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout+5*time.Second)
	defer cancel()
	return loadCatalog(ctx, src, m, policy)
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the planner web UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	return cmd
}

// runServer serves until ctx is cancelled. A catalog that fails to load is
// reported on every page instead of aborting startup.
func runServer(ctx context.Context, cfg Config) error {
	cat, loadErr := buildCatalog(ctx, cfg)
	if loadErr != nil {
		logger.Error("catalog load failed", zap.Error(loadErr))
	}

	store := newStore(cat, loadErr, cfg.MaximizedDefault)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(store, parseTemplates()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newPlanCmd(opts *cliOptions) *cobra.Command {
	var (
		maximized bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "plan <drifter-id>...",
		Short: "Compute the totals for up to five drifters",
		Args:  cobra.RangeArgs(1, slotCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("maximized") {
				cfg.MaximizedDefault = maximized
			}
			cat, err := buildCatalog(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			p, err := plannerFor(cat, cfg.MaximizedDefault, args)
			if err != nil {
				return err
			}
			view := p.Plan()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(planJSON(view))
			}
			return writePlan(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().BoolVar(&maximized, "maximized", true, "use maximized support records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")
	return cmd
}

// plannerFor fills slots in argument order.
func plannerFor(cat *Catalog, maximized bool, ids []string) (*Planner, error) {
	if len(ids) > slotCount {
		return nil, fmt.Errorf("%w: at most %d drifters", ErrSlotOutOfRange, slotCount)
	}
	p := NewPlanner(cat, maximized)
	for i, id := range ids {
		if err := p.Assign(i+1, id); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func writePlan(w io.Writer, view PlanView) error {
	slots := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Slot", "Drifter", "Buff", "Debuff", "Conflict").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 2:
				return buffStyle
			case col == 3:
				return debuffStyle
			}
			return lipgloss.NewStyle()
		})
	for _, s := range view.Slots {
		name := placeholderEmpty
		if s.Drifter != nil {
			name = s.Drifter.Name
		}
		conflict := ""
		if s.Conflict {
			conflict = "yes"
		}
		slots.Row(fmt.Sprint(s.Number), name, s.Buff, s.Debuff, conflict)
	}

	var ordered []Total
	var groupOf []string
	for _, g := range view.TotalGroups {
		for _, t := range g.Totals {
			ordered = append(ordered, t)
			groupOf = append(groupOf, g.Title)
		}
	}
	totals := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Group", "Effect", "Total").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(ordered) {
				if ordered[row].Value < 0 {
					return debuffStyle
				}
				return buffStyle
			}
			return lipgloss.NewStyle()
		})
	for i, t := range ordered {
		totals.Row(groupOf[i], t.Label, t.Formatted)
	}

	var b strings.Builder
	b.WriteString(slots.Render())
	b.WriteString("\n")
	if len(ordered) == 0 {
		b.WriteString(mutedStyle.Render("No active effects."))
	} else {
		b.WriteString(totals.Render())
	}
	b.WriteString("\n")
	for _, c := range view.ActiveCompanions {
		fmt.Fprintf(&b, "%s %s (%d/%d)\n", buffStyle.Render("companion"), c.Name+": "+c.Bonus, c.MemberCount, c.Required)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func newImportCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Copy the data documents into the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if strings.EqualFold(strings.TrimSpace(cfg.Source), sourceDB) {
				return errors.New("import reads from the file or http source, not db")
			}
			m, err := loadManifest(cfg.ManifestPath)
			if err != nil {
				return err
			}
			src, err := newSource(cfg, nil)
			if err != nil {
				return err
			}
			repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			docs, err := importCatalog(cmd.Context(), src, m, repo, time.Now().UTC())
			if err != nil {
				return err
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("Document", "Bytes", "Checksum")
			for _, d := range docs {
				t.Row(d.Name, fmt.Sprint(len(d.Payload)), shortChecksum(d.Checksum))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
}

func newMCPCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the planner as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := buildCatalog(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			return serveMCP(newMCPServer(cat, opts.cfg.MaximizedDefault))
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
