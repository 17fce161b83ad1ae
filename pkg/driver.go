package beagle

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Arch, Vendor and OS name the target triple a compilation was requested
// for. Carried over as metadata on Config: this front end stops at MIR and
// never invokes a downstream codegen backend, so Target no longer selects a
// linker or assembler invocation the way it once picked a clang target.
type Arch string
type Vendor string
type OS string

const (
	X86_64 Arch = "x86_64"

	UnknownVendor Vendor = "unknown"

	Windows OS = "windows64"
	Linux   OS = "linux"
	Darwin  OS = "darwin"
)

// Target is the Arch-Vendor-OS triple a Config carries as metadata.
type Target struct {
	Arch   Arch
	Vendor Vendor
	OS     OS
}

func (t Target) String() string {
	return string(t.Arch) + "-" + string(t.Vendor) + "-" + string(t.OS)
}

// EmitStage selects how far a CLI invocation drives the pipeline before
// printing its result.
type EmitStage int

const (
	EmitTokens EmitStage = iota
	EmitHIR
	EmitTyped
	EmitMIR
)

// Config holds the options a driver run needs beyond the source text and
// module name: the target triple (metadata only, see Target) and which
// stage's output a CLI caller wants disassembled.
type Config struct {
	Target Target
	Emit   EmitStage
}

// DefaultConfig returns a Config for a native compile: run the full
// pipeline to MIR, on a generic x86_64 Linux target.
func DefaultConfig() Config {
	return Config{
		Target: Target{Arch: X86_64, Vendor: UnknownVendor, OS: Linux},
		Emit:   EmitMIR,
	}
}

// moduleState is the lifecycle of a single module through the driver.
type moduleState int

const (
	StateStarted moduleState = iota
	StateParsingLexing
	StateTypeChecking
	StateLowering
	StateSealed
	StateFailed
)

func (s moduleState) String() string {
	switch s {
	case StateStarted:
		return "Started"
	case StateParsingLexing:
		return "ParsingLexing"
	case StateTypeChecking:
		return "TypeChecking"
	case StateLowering:
		return "Lowering"
	case StateSealed:
		return "Sealed"
	case StateFailed:
		return "Failed"
	default:
		return "moduleState(?)"
	}
}

// Result is what a driver Run produces for one module: its final state, the
// MIR blob (empty if the module failed), and every diagnostic raised along
// the way, in arrival order.
type Result struct {
	ModuleName  string
	State       moduleState
	MIR         []byte
	Chunks      []*Chunk
	Diagnostics []Diagnostic
}

// Failed reports whether any diagnostic in the result was Error or Halt
// level, i.e. whether MIR is unusable for this module.
func (r *Result) Failed() bool {
	return r.State == StateFailed
}

// driverState guards the module state machine, since the diagnostics
// collector and the orchestrating goroutine both observe and advance it
// concurrently. Transition to Failed is sticky: once set, later stage
// transitions (and the final Sealed/Failed decision) no longer move it.
type driverState struct {
	mu    sync.Mutex
	state moduleState
}

func (s *driverState) get() moduleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *driverState) advance(next moduleState, log *logrus.Entry) {
	s.mu.Lock()
	if s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	s.mu.Unlock()
	log.WithFields(logrus.Fields{"from": prev.String(), "to": next.String()}).Info("stage transition")
}

// fail moves the state machine to Failed, idempotently: only the first
// caller logs the transition.
func (s *driverState) fail(log *logrus.Entry) {
	s.mu.Lock()
	already := s.state == StateFailed
	prev := s.state
	s.state = StateFailed
	s.mu.Unlock()
	if !already {
		log.WithFields(logrus.Fields{"from": prev.String(), "to": "Failed"}).Warn("stage transition")
	}
}

// lineServicer answers source-snippet requests by slicing the original
// source text into lines; it's the driver's implementation of
// sourceServicer, used by newSideChannels and available standalone for tests
// that want to exercise the snippet protocol without a full driver.
type lineServicer struct {
	lines []string
}

func newLineServicer(source string) *lineServicer {
	return &lineServicer{lines: strings.Split(source, "\n")}
}

// RequestSnippet returns the lines named by pos.LineRegion, where Line is
// the first line and Col (reused, not a column here) is the last line, both
// 1-origin and inclusive, per BiPos.withLineRegion.
func (s *lineServicer) RequestSnippet(pos BiPos) string {
	first, last := pos.LineRegion.Line, pos.LineRegion.Col
	if first < 1 {
		first = 1
	}
	if last > len(s.lines) {
		last = len(s.lines)
	}
	if first > last || first > len(s.lines) {
		return ""
	}
	return strings.Join(s.lines[first-1:last], "\n")
}

var _ sourceServicer = (*lineServicer)(nil)

// sideChannels owns the diagnostics and source-snippet channels shared by
// whichever stages a driver call launches, plus the two goroutines that
// service them. It's reused by Run, Lex and Parse so each can drive a
// different prefix of the pipeline without duplicating the collector and
// servicer wiring.
type sideChannels struct {
	diagnostics chan Diagnostic
	masterIn    chan sourceRequest

	mu    sync.Mutex
	diags []Diagnostic

	collectorDone chan struct{}
	servicerDone  chan struct{}
}

func newSideChannels(source string, log *logrus.Entry, state *driverState) *sideChannels {
	sc := &sideChannels{
		diagnostics:   make(chan Diagnostic),
		masterIn:      make(chan sourceRequest),
		collectorDone: make(chan struct{}),
		servicerDone:  make(chan struct{}),
	}

	go func() {
		defer close(sc.collectorDone)
		for diag := range sc.diagnostics {
			sc.mu.Lock()
			sc.diags = append(sc.diags, diag)
			sc.mu.Unlock()

			entry := log.WithFields(logrus.Fields{"stage": diag.Stage, "level": diag.Level.String()})
			if diag.Bug {
				entry.Error(diag.Message)
			} else {
				entry.Warn(diag.Message)
			}
			if state != nil && (diag.Level == LevelError || diag.Level == LevelHalt) {
				state.fail(log)
			}
		}
	}()

	servicer := newLineServicer(source)
	go func() {
		defer close(sc.servicerDone)
		for req := range sc.masterIn {
			req.Reply <- servicer.RequestSnippet(req.Pos)
		}
	}()

	return sc
}

// finish closes both channels, waits for the collector and servicer
// goroutines to drain, and returns every diagnostic observed. Callers must
// have already joined every goroutine that could still send on these
// channels.
func (sc *sideChannels) finish() []Diagnostic {
	close(sc.diagnostics)
	close(sc.masterIn)
	<-sc.collectorDone
	<-sc.servicerDone

	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.diags
}

// Driver owns every channel for one module's compilation, spawns L, P, T and
// M, multiplexes their diagnostics, and services their source-snippet
// requests. One Driver can run many modules; each Run call is independent.
type Driver struct {
	config Config
	logger *logrus.Logger
}

// NewDriver creates a Driver that will compile modules per config, logging
// through logger. A nil logger gets logrus's standard logger.
func NewDriver(config Config, logger *logrus.Logger) *Driver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Driver{config: config, logger: logger}
}

// Run lexes, parses, type-checks and lowers source under moduleName,
// returning the final MIR blob and every diagnostic raised. It never
// returns a non-nil error for a compilation failure — that's reported via
// Result.Failed and Result.Diagnostics — only for something the pipeline
// itself could not recover from (currently unreachable, since every stage
// treats even its own bugs as diagnostics, but errgroup.Group.Wait's
// signature demands the possibility).
func (d *Driver) Run(ctx context.Context, moduleName, source string) (*Result, error) {
	tokens := make(chan Token)
	hirChunks := make(chan *Chunk)
	typedChunks := make(chan *Chunk)
	mirChunks := make(chan *Chunk)
	halt := &haltFlag{}

	log := d.logger.WithFields(logrus.Fields{"module": moduleName})
	state := &driverState{state: StateStarted}
	log.Info("compilation started")

	sc := newSideChannels(source, log, state)

	lexer := NewLexer(moduleName, source, tokens, sc.diagnostics, sc.masterIn, halt)
	parser := NewParser(moduleName, tokens, hirChunks, sc.diagnostics, sc.masterIn, halt)
	tc := NewTypeck(moduleName, hirChunks, typedChunks, sc.diagnostics, sc.masterIn, halt)
	mm := NewMemmy(moduleName, typedChunks, mirChunks, sc.diagnostics, sc.masterIn, halt)

	g, _ := errgroup.WithContext(ctx)

	state.advance(StateParsingLexing, log)
	g.Go(func() error {
		lexer.Run()
		return nil
	})
	g.Go(func() error {
		parser.Run()
		return nil
	})

	state.advance(StateTypeChecking, log)
	g.Go(func() error {
		tc.Run()
		return nil
	})

	state.advance(StateLowering, log)
	g.Go(func() error {
		mm.Run()
		return nil
	})

	blob := NewChunk()
	var chunks []*Chunk
	g.Go(func() error {
		for c := range mirChunks {
			blob.WriteChunk(c)
			chunks = append(chunks, c)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	allDiags := sc.finish()

	if state.get() != StateFailed {
		state.advance(StateSealed, log)
	}

	result := &Result{
		ModuleName:  moduleName,
		State:       state.get(),
		Diagnostics: allDiags,
	}
	if result.State != StateFailed {
		result.MIR = blob.Bytes()
		result.Chunks = chunks
	}

	log.WithFields(logrus.Fields{"state": result.State.String(), "diagnostics": len(allDiags)}).Info("compilation finished")
	return result, nil
}

// LexResult is the output of running only the lexer stage, for the
// beaglec lex subcommand.
type LexResult struct {
	ModuleName  string
	Tokens      []Token
	Diagnostics []Diagnostic
}

// Lex runs only the lexer over source, collecting every token (including
// the trailing TokenEOF) and diagnostic.
func (d *Driver) Lex(ctx context.Context, moduleName, source string) (*LexResult, error) {
	tokens := make(chan Token)
	halt := &haltFlag{}

	log := d.logger.WithFields(logrus.Fields{"module": moduleName})
	sc := newSideChannels(source, log, nil)

	lexer := NewLexer(moduleName, source, tokens, sc.diagnostics, sc.masterIn, halt)

	g, _ := errgroup.WithContext(ctx)
	var toks []Token
	g.Go(func() error {
		lexer.Run()
		return nil
	})
	g.Go(func() error {
		for t := range tokens {
			toks = append(toks, t)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &LexResult{ModuleName: moduleName, Tokens: toks, Diagnostics: sc.finish()}, nil
}

// ParseResult is the output of running the lexer and parser, for the
// beaglec parse subcommand.
type ParseResult struct {
	ModuleName  string
	Chunks      []*Chunk
	Diagnostics []Diagnostic
}

// Parse runs the lexer and parser over source, collecting the raw HIR
// chunk stream and every diagnostic.
func (d *Driver) Parse(ctx context.Context, moduleName, source string) (*ParseResult, error) {
	tokens := make(chan Token)
	hirChunks := make(chan *Chunk)
	halt := &haltFlag{}

	log := d.logger.WithFields(logrus.Fields{"module": moduleName})
	sc := newSideChannels(source, log, nil)

	lexer := NewLexer(moduleName, source, tokens, sc.diagnostics, sc.masterIn, halt)
	parser := NewParser(moduleName, tokens, hirChunks, sc.diagnostics, sc.masterIn, halt)

	g, _ := errgroup.WithContext(ctx)
	var chunks []*Chunk
	g.Go(func() error {
		lexer.Run()
		return nil
	})
	g.Go(func() error {
		parser.Run()
		return nil
	})
	g.Go(func() error {
		for c := range hirChunks {
			chunks = append(chunks, c)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ParseResult{ModuleName: moduleName, Chunks: chunks, Diagnostics: sc.finish()}, nil
}

// Typed runs the lexer, parser and type-checker over source, collecting the
// type-checked HIR chunk stream (every type sub-chunk resolved) and every
// diagnostic, for the compile subcommand's --emit=typed view.
func (d *Driver) Typed(ctx context.Context, moduleName, source string) (*ParseResult, error) {
	tokens := make(chan Token)
	hirChunks := make(chan *Chunk)
	typedChunks := make(chan *Chunk)
	halt := &haltFlag{}

	log := d.logger.WithFields(logrus.Fields{"module": moduleName})
	sc := newSideChannels(source, log, nil)

	lexer := NewLexer(moduleName, source, tokens, sc.diagnostics, sc.masterIn, halt)
	parser := NewParser(moduleName, tokens, hirChunks, sc.diagnostics, sc.masterIn, halt)
	tc := NewTypeck(moduleName, hirChunks, typedChunks, sc.diagnostics, sc.masterIn, halt)

	g, _ := errgroup.WithContext(ctx)
	var chunks []*Chunk
	g.Go(func() error {
		lexer.Run()
		return nil
	})
	g.Go(func() error {
		parser.Run()
		return nil
	})
	g.Go(func() error {
		tc.Run()
		return nil
	})
	g.Go(func() error {
		for c := range typedChunks {
			chunks = append(chunks, c)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ParseResult{ModuleName: moduleName, Chunks: chunks, Diagnostics: sc.finish()}, nil
}
