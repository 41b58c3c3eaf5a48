package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	u "github.com/araddon/gou"
	"github.com/spf13/cobra"

	"github.com/gganty/Gtol/internal/cache"
	"github.com/gganty/Gtol/internal/jobs"
	"github.com/gganty/Gtol/internal/server"
	"github.com/gganty/Gtol/pkgs/graph"
	"github.com/gganty/Gtol/pkgs/layout"
	"github.com/gganty/Gtol/pkgs/parser"
)

// Build-time variables - can be set via ldflags
var (
	Version   string = "dev"
	BuildTime string = "unknown"
	GitCommit string = "unknown"
)

// Global flags
var (
	addr      string
	staticDir string
	workDir   string
	cacheDir  string
	maxNodes  int
	debug     bool

	output    string
	firstTree bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gtol",
	Short: "Compute GPU-renderable layouts for phylogenetic trees",
	Long: `gtol turns Newick phylogenetic trees into flat, orthogonally-routed
2D graphs for a GPU point-and-line renderer. It runs either as a background
compute service (serve) or as a one-shot batch tool (build).`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tree compute HTTP service",
	Long: `Start the HTTP service: multipart build uploads, progress streaming
over SSE and WebSocket, and gzipped result downloads.`,
	Args: cobra.NoArgs,
	RunE: serveCommand,
}

var buildCmd = &cobra.Command{
	Use:   "build <newick-file>",
	Short: "Run the compute pipeline once, offline",
	Long: `Parse a Newick file, compute the layout and write the compressed
result payload to disk. Useful for batch precomputation.`,
	Args: cobra.ExactArgs(1),
	RunE: buildCommand,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gtol %s\n", Version)
		fmt.Printf("Built: %s\n", BuildTime)
		fmt.Printf("Commit: %s\n", GitCommit)
		fmt.Printf("Layout algorithm: v%s\n", layout.AlgoVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().IntVar(&maxNodes, "max-nodes", 0, "Soft parser node limit (0 = unlimited)")

	serveCmd.Flags().StringVar(&addr, "addr", ":8000", "Listen address")
	serveCmd.Flags().StringVar(&staticDir, "static", "custom_renderer", "Static frontend directory (empty to disable)")
	serveCmd.Flags().StringVar(&workDir, "work-dir", "temp_uploads", "Scratch directory for uploads and results")
	serveCmd.Flags().StringVar(&cacheDir, "cache", "", "Result cache directory (empty to disable)")

	buildCmd.Flags().StringVarP(&output, "output", "o", "graph.json.gz", "Output file")
	buildCmd.Flags().BoolVar(&firstTree, "first-tree", false, "Take only the first ';'-separated tree instead of unifying a forest")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupLogging() {
	if debug {
		u.SetupLogging("debug")
	} else {
		u.SetupLogging("info")
	}
	u.SetColorOutput()
}

func serveCommand(cmd *cobra.Command, args []string) error {
	setupLogging()

	var resultCache *cache.Cache
	if cacheDir != "" {
		var err error
		resultCache, err = cache.New(cacheDir)
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
	}

	manager, err := jobs.NewManager(jobs.Config{
		WorkDir:  workDir,
		Cache:    resultCache,
		Params:   layout.DefaultParams(),
		MaxNodes: maxNodes,
	})
	if err != nil {
		return fmt.Errorf("creating job manager: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(manager, staticDir).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	u.Infof("gtol %s listening on %s", Version, addr)
	return srv.ListenAndServe()
}

func buildCommand(cmd *cobra.Command, args []string) error {
	setupLogging()

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	opts := []parser.Option{parser.WithLimit(maxNodes)}
	if firstTree {
		opts = append(opts, parser.WithFirstTreeOnly())
	}
	t, err := parser.Parse(string(raw), opts...)
	if err != nil {
		return err
	}

	g, err := layout.Build(t, layout.DefaultParams(), func(p float64) {
		u.Debugf("layout %.0f%%", p*100)
	})
	if err != nil {
		return err
	}

	ds := graph.FromLayout(g)
	out, err := os.Create(output)
	if err != nil {
		return err
	}
	err = ds.WriteGzip(out, func(stage string, p float64) {
		u.Debugf("%s %.0f%%", stage, p)
	})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	u.Infof("wrote %s: %d nodes, %d links", output, len(ds.Nodes), len(ds.Links))
	return nil
}
