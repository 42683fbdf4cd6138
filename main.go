package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"book-club/club"
	"book-club/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

const defaultConfigFile = "bookclub.yaml"

// app carries what every command needs. It is built once per process; the
// interactive shell reuses the same club for every line it runs.
type app struct {
	configPath string
	dbPath     string
	verbose    bool

	cfg  *config.Config
	log  *zap.Logger
	club *club.Club

	in      io.Reader
	out     io.Writer
	scanner *bufio.Scanner
}

func newApp(in io.Reader, out io.Writer) *app {
	return &app{in: in, out: out}
}

// lines returns the shared input scanner so prompts and the shell never
// compete for buffered input.
func (a *app) lines() *bufio.Scanner {
	if a.scanner == nil {
		a.scanner = bufio.NewScanner(a.in)
	}
	return a.scanner
}

// interactive reports whether input comes from a terminal.
func (a *app) interactive() bool {
	f, ok := a.in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// open loads configuration, builds the logger and opens the club, once.
func (a *app) open() error {
	if a.club != nil {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DatabasePath = a.dbPath
	}
	a.cfg = cfg

	if a.log == nil {
		if a.log, err = buildLogger(cfg.Logging.Level, a.verbose); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	c, err := club.Open(cfg.DatabasePath,
		club.WithLogger(a.log.Named("club")),
		club.WithSeed(cfg.SeedBooks))
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.DatabasePath, err)
	}
	a.club = c
	a.log.Debug("club opened", zap.String("db", cfg.DatabasePath))
	return nil
}

func (a *app) close() {
	if a.club != nil {
		if err := a.club.Close(); err != nil {
			a.log.Warn("close club", zap.Error(err))
		}
		a.club = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func buildLogger(level string, verbose bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, err
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// newRootCmd builds the command tree bound to a.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "bookclub",
		Short: "A two-person book club tracker",
		Long: `bookclub keeps a shared shelf for Manon and Jerina: one book being read,
a waiting list, the books already discussed, and each reader's thoughts.

Pick who you are with "bookclub user <name>", then add books and respond.
Run "bookclub shell" for an interactive session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(a)
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.out)

	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigFile, "path to the YAML config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(
		newUserCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newAddCmd(a),
		newEditCmd(a),
		newDeleteCmd(a),
		newCompleteCmd(a),
		newRespondCmd(a),
		newSearchCmd(a),
		newInfoCmd(a),
		newConfigCmd(a),
		newShellCmd(a),
	)
	return root
}

// execute runs one command line against a.
func execute(a *app, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	return root.Execute()
}

func main() {
	a := newApp(os.Stdin, os.Stdout)
	err := execute(a, os.Args[1:])
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
