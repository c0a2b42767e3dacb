// Command wikiadf converts between Jira wiki markup and ADF on the command
// line and imports other document formats.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/wikiadf/internal/adf"
	"github.com/dgallion1/wikiadf/internal/config"
	"github.com/dgallion1/wikiadf/internal/convert"
	"github.com/dgallion1/wikiadf/internal/doctree"
	"github.com/dgallion1/wikiadf/internal/importer"
	"github.com/dgallion1/wikiadf/internal/preview"
	"github.com/dgallion1/wikiadf/internal/wiki"
)

var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	EnvFile  string `name:"env-file" help:"Env file loaded before configuration" default:".env" type:"path"`
	LogLevel string `name:"log-level" help:"Log level (debug, info, warn, error)" default:""`

	cfg config.Config
	log *slog.Logger
}

// CLI defines the command-line interface for wikiadf.
var CLI struct {
	Globals

	Convert ConvertCmd `cmd:"" help:"Convert wiki markup to ADF or ADF to wiki markup"`
	Import  ImportCmd  `cmd:"" help:"Import a document file as ADF or wiki markup"`
	Preview PreviewCmd `cmd:"" help:"Render a source as an HTML preview"`
	Compat  CompatCmd  `cmd:"" help:"Print the construct compatibility table"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

func (g *Globals) setup() error {
	if err := godotenv.Load(g.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", g.EnvFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	g.cfg = cfg
	g.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

func (g *Globals) converter(maxDepth, maxInput int) *convert.Converter {
	opts := convert.Options{MaxDepth: g.cfg.MaxDepth, MaxInputBytes: g.cfg.MaxInputBytes}
	if maxDepth > 0 {
		opts.MaxDepth = maxDepth
	}
	if maxInput > 0 {
		opts.MaxInputBytes = maxInput
	}
	return convert.New(opts, nil)
}

// readSource reads path, or stdin when path is empty or "-".
func readSource(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

func writeOutput(path, text string) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprintln(os.Stdout, text)
		return err
	}
	return os.WriteFile(path, []byte(text+"\n"), 0o644)
}

// ConvertCmd converts a source in one direction.
type ConvertCmd struct {
	Mode          string `short:"m" required:"" help:"Direction: wiki-to-adf or adf-to-wiki"`
	File          string `arg:"" optional:"" help:"Input file (default stdin)"`
	Out           string `short:"o" help:"Output file (default stdout)"`
	MaxDepth      int    `name:"max-depth" help:"Override the nesting limit"`
	MaxInputBytes int    `name:"max-input-bytes" help:"Override the input size limit"`
	JSON          bool   `name:"json" help:"Print the full result envelope as JSON"`
}

func (c *ConvertCmd) Run(g *Globals) error {
	mode, err := convert.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	src, err := readSource(c.File)
	if err != nil {
		return err
	}

	res, err := g.converter(c.MaxDepth, c.MaxInputBytes).Convert(src, mode)
	if c.JSON {
		env := map[string]any{"status": res.Status, "mode": mode}
		if cerr := convert.AsError(err); cerr != nil {
			env["status"] = convert.StatusError
			env["error"] = cerr
		} else if res.Status == convert.StatusOK {
			env["target"] = res.Target
			env["stats"] = res.Stats
		}
		out, merr := json.MarshalIndent(env, "", "  ")
		if merr != nil {
			return merr
		}
		if werr := writeOutput(c.Out, string(out)); werr != nil {
			return werr
		}
		return err
	}
	if err != nil {
		return err
	}
	if res.Status == convert.StatusEmpty {
		g.log.Info("source is empty, nothing to convert")
		return nil
	}
	g.log.Debug("converted", "mode", mode, "nodes", res.Stats.Nodes, "depth", res.Stats.Depth)
	return writeOutput(c.Out, res.Target)
}

// ImportCmd imports a document file.
type ImportCmd struct {
	File        string `arg:"" help:"Document to import" type:"existingfile"`
	Target      string `short:"t" default:"adf" enum:"adf,wiki" help:"Output format (adf, wiki)"`
	Out         string `short:"o" help:"Output file (default stdout)"`
	NoPdftotext bool   `name:"no-pdftotext" help:"Do not fall back to pdftotext for unreadable PDFs"`
}

func (c *ImportCmd) Run(g *Globals) error {
	if !importer.IsSupportedExtension(c.File) {
		return fmt.Errorf("unsupported file type: %s", filepath.Ext(c.File))
	}
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	opts := importer.Options{
		MaxDepth:          g.cfg.MaxDepth,
		FallbackPdftotext: g.cfg.PDFFallbackPdftotext && !c.NoPdftotext,
	}
	tree, err := importer.Import(f, filepath.Base(c.File), opts)
	if errors.Is(err, doctree.ErrEmpty) {
		return fmt.Errorf("%s contains no content", c.File)
	}
	if err != nil {
		return err
	}
	stats := doctree.Summarize(tree)
	g.log.Info("imported", "file", c.File, "nodes", stats.Nodes, "depth", stats.Depth)

	if c.Target == "wiki" {
		text, err := wiki.Serialize(tree)
		if err != nil {
			return err
		}
		return writeOutput(c.Out, text)
	}
	data, err := adf.Marshal(tree)
	if err != nil {
		return err
	}
	return writeOutput(c.Out, string(data))
}

// PreviewCmd renders a source as HTML.
type PreviewCmd struct {
	Mode string `short:"m" required:"" help:"How to read the input: wiki-to-adf or adf-to-wiki"`
	File string `arg:"" optional:"" help:"Input file (default stdin)"`
	Out  string `short:"o" help:"Output file (default stdout)"`
}

func (c *PreviewCmd) Run(g *Globals) error {
	mode, err := convert.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	src, err := readSource(c.File)
	if err != nil {
		return err
	}
	tree, err := g.converter(0, 0).Tree(src, mode)
	if err != nil {
		return err
	}
	if tree == nil {
		tree = doctree.NewDoc()
	}
	html, err := preview.HTML(tree)
	if err != nil {
		return err
	}
	return writeOutput(c.Out, html)
}

// CompatCmd prints which constructs survive a round trip.
type CompatCmd struct {
	YAML bool `name:"yaml" help:"Print YAML instead of a table"`
}

func (c *CompatCmd) Run(g *Globals) error {
	if c.YAML {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(map[string]any{"constructs": wiki.Compatibility})
	}
	width := 0
	for _, e := range wiki.Compatibility {
		width = max(width, len(e.Construct))
	}
	for _, e := range wiki.Compatibility {
		fmt.Printf("%-*s  %-11s  %s\n", width, e.Construct, e.Support, e.Detail)
	}
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Printf("wikiadf %s (ADF version %d)\n", version, adf.Version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("wikiadf"),
		kong.Description("Convert between Jira wiki markup and Atlassian Document Format"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	if err := CLI.Globals.setup(); err != nil {
		ctx.FatalIfErrorf(err)
	}
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}
