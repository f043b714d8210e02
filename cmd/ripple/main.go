// Ripple CLI - compiles expression graphs into runtime envelopes
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/ripple/compiler"
	"github.com/chazu/ripple/manifest"
	"github.com/chazu/ripple/pkg/bytecode"
	"github.com/chazu/ripple/pkg/codegen"
)

func main() {
	source := flag.String("source", "", "JSON expression graph (overrides manifest graph.entry)")
	output := flag.String("output", "", "Output file (overrides manifest output.path)")
	format := flag.String("format", "", "Envelope format: binary, module, factory")
	name := flag.String("name", "", "Instance factory name")
	pkg := flag.String("package", "", "Package clause for module format")
	debug := flag.Bool("debug", false, "Embed sources and the AST, arm runtime checks")
	typeCheck := flag.Bool("type-check", false, "Set the compile type-check option (not carried into the envelope)")
	stats := flag.Bool("stats", false, "Print table statistics")
	ast := flag.Bool("ast", false, "Print the packed table dump")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ripple [options] [dir]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles the expression graph described by dir/ripple.toml (or -source)\n")
		fmt.Fprintf(os.Stderr, "into a runtime envelope.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ripple .                          # Compile per ./ripple.toml\n")
		fmt.Fprintf(os.Stderr, "  ripple -source g.json -output g.rpbc\n")
		fmt.Fprintf(os.Stderr, "  ripple -source g.json -format module -name Todos -output todos.go\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)
	log := commonlog.GetLogger("ripple.cli")

	var m *manifest.Manifest
	entry := *source
	if entry == "" {
		dir := "."
		if flag.NArg() > 0 {
			dir = flag.Arg(0)
		}
		loaded, err := manifest.Load(dir)
		if err != nil {
			fail("load manifest: %v", err)
		}
		m = loaded
		entry = m.EntryPath()
	}

	opts := compiler.Options{Debug: *debug, TypeCheck: *typeCheck, Name: *name, Format: *format}
	if m != nil {
		if !opts.Debug {
			opts.Debug = m.Compiler.Debug
		}
		if !opts.TypeCheck {
			opts.TypeCheck = m.Compiler.TypeCheck
		}
		if opts.Name == "" {
			opts.Name = m.Output.Name
		}
		if opts.Format == "" {
			opts.Format = m.Output.Format
		}
	}
	if opts.Format == "" {
		opts.Format = "binary"
	}

	raw, err := os.ReadFile(entry)
	if err != nil {
		fail("read graph: %v", err)
	}
	graph, err := compiler.DecodeGraph(raw)
	if err != nil {
		fail("decode graph: %v", err)
	}

	artifact, err := compiler.Compile(graph, opts)
	if err != nil {
		fail("compile: %v", err)
	}
	pd, err := bytecode.Pack(artifact)
	if err != nil {
		fail("pack: %v", err)
	}

	if *stats {
		s := artifact.Stats()
		fmt.Printf("primitives=%d projections=%d metadata=%d dedup-hits=%d topLevels=%d setters=%d\n",
			s.Primitives, s.Projections, s.Metadata, s.DedupHits, s.TopLevels, s.Setters)
	}
	if *ast {
		fmt.Print(bytecode.Dump(pd))
	}

	var envelope []byte
	switch opts.Format {
	case "binary":
		envelope, err = bytecode.Marshal(pd, artifact.AST)
	case "module", "factory":
		var text string
		text, err = codegen.Generate(pd, codegen.Options{
			Name:    opts.Name,
			Package: *pkg,
			Format:  codegen.Format(opts.Format),
			Debug:   opts.Debug,
			AST:     artifact.AST,
		})
		envelope = []byte(text)
	default:
		fail("unknown format %q", opts.Format)
	}
	if err != nil {
		fail("emit: %v", err)
	}

	out := *output
	if out == "" && m != nil {
		out = m.OutputPath()
	}
	if out == "" || out == "-" {
		os.Stdout.Write(envelope)
		return
	}
	if err := os.WriteFile(out, envelope, 0o644); err != nil {
		fail("write %s: %v", out, err)
	}
	log.Infof("wrote %s (%d bytes)", out, len(envelope))
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ripple: "+format+"\n", args...)
	os.Exit(1)
}
