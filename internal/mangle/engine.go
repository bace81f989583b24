package mangle

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"resq-mcp-server/internal/config"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

//go:embed schemas/react.mg
var builtinSchema string

// Fact represents a normalized observation emitted by the browser bridge.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
	Timestamp time.Time     `json:"timestamp"`
}

// QueryResult represents a binding of variables to values from a Mangle query.
type QueryResult map[string]interface{}

// defaultLowValuePredicates returns predicates that can be sampled under load.
// Component structure and query matches are never sampled.
func defaultLowValuePredicates() map[string]bool {
	return map[string]bool{
		"react_prop":  true,
		"react_state": true,
	}
}

// Engine wraps the Mangle deductive database with component fact management.
type Engine struct {
	cfg          config.MangleConfig
	mu           sync.RWMutex
	schemaLoaded bool

	// source is every program fragment loaded so far; rules are re-analyzed
	// against the whole of it.
	source      string
	programInfo *analysis.ProgramInfo
	store       factstore.FactStore

	// Fact buffer, oldest first
	facts []Fact

	// Predicate index into facts
	index map[string][]int

	samplingRate       float64
	predicateCounts    map[string]int
	lowValuePredicates map[string]bool
}

func NewEngine(cfg config.MangleConfig) (*Engine, error) {
	e := &Engine{
		cfg:                cfg,
		facts:              make([]Fact, 0, cfg.FactBufferLimit),
		index:              make(map[string][]int),
		store:              factstore.NewSimpleInMemoryStore(),
		samplingRate:       1.0,
		predicateCounts:    make(map[string]int),
		lowValuePredicates: defaultLowValuePredicates(),
	}

	if !cfg.Enable {
		return e, nil
	}

	if !cfg.DisableBuiltin {
		if err := e.loadSource("builtin react schema", builtinSchema); err != nil {
			return nil, err
		}
	}
	if cfg.SchemaPath != "" {
		if err := e.LoadSchema(cfg.SchemaPath); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// LoadSchema parses a Mangle schema file and adds it to the loaded program.
func (e *Engine) LoadSchema(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	return e.loadSource(path, string(data))
}

func (e *Engine) loadSource(name, src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	combined := e.source + "\n" + src
	programInfo, err := analyze(combined)
	if err != nil {
		return fmt.Errorf("load schema %s: %w", name, err)
	}

	e.source = combined
	e.programInfo = programInfo
	e.schemaLoaded = true
	return nil
}

func analyze(src string) (*analysis.ProgramInfo, error) {
	sourceUnit, err := parse.Unit(bytes.NewReader([]byte(src)))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(sourceUnit, make(map[ast.PredicateSym]ast.Decl))
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	return programInfo, nil
}

// AddRule adds Mangle declarations and rules to the running program and
// re-derives facts already in the store.
func (e *Engine) AddRule(ruleSource string) error {
	if !e.cfg.Enable {
		return nil
	}

	if _, err := parse.Unit(bytes.NewReader([]byte(ruleSource))); err != nil {
		return fmt.Errorf("parse rule: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	combined := e.source + "\n" + ruleSource
	programInfo, err := analyze(combined)
	if err != nil {
		return fmt.Errorf("analyze rule: %w", err)
	}

	e.source = combined
	e.programInfo = programInfo
	e.schemaLoaded = true

	if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
		return fmt.Errorf("eval program after rule: %w", err)
	}
	return nil
}

// AddFacts appends incoming facts to both the buffer and the Mangle store.
// Low-value predicates are sampled once the buffer fills up.
func (e *Engine) AddFacts(ctx context.Context, facts []Fact) error {
	if !e.cfg.Enable {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.updateSamplingRate()

	filtered := make([]Fact, 0, len(facts))
	for _, f := range facts {
		if e.shouldAcceptFact(f) {
			filtered = append(filtered, f)
			e.predicateCounts[f.Predicate]++
		}
	}

	baseIdx := len(e.facts)
	e.facts = append(e.facts, filtered...)
	if e.cfg.FactBufferLimit > 0 && len(e.facts) > e.cfg.FactBufferLimit {
		trimCount := len(e.facts) - e.cfg.FactBufferLimit
		e.facts = e.facts[trimCount:]
		e.rebuildIndex()
	} else {
		for i, f := range filtered {
			e.index[f.Predicate] = append(e.index[f.Predicate], baseIdx+i)
		}
	}

	for _, f := range filtered {
		e.store.Add(e.factToAtom(f))
	}

	if e.schemaLoaded && e.programInfo != nil {
		if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
			log.Printf("[mangle] eval failed after %d facts: %v", len(filtered), err)
			return fmt.Errorf("eval program after fact insertion: %w", err)
		}
	}

	return nil
}

// RetractSession drops every buffered fact whose first argument is sessionID
// and whose predicate is one of predicates, then rebuilds the store from the
// remaining buffer. With no predicates every fact of the session is dropped.
func (e *Engine) RetractSession(ctx context.Context, sessionID string, predicates ...string) error {
	if !e.cfg.Enable {
		return nil
	}

	match := make(map[string]bool, len(predicates))
	for _, p := range predicates {
		match[p] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := make([]Fact, 0, len(e.facts))
	removed := 0
	for _, f := range e.facts {
		if (len(match) == 0 || match[f.Predicate]) && len(f.Args) > 0 && f.Args[0] == sessionID {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	if removed == 0 {
		return nil
	}

	e.facts = kept
	e.rebuildIndex()

	e.store = factstore.NewSimpleInMemoryStore()
	for _, f := range e.facts {
		e.store.Add(e.factToAtom(f))
	}
	if e.schemaLoaded && e.programInfo != nil {
		if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
			return fmt.Errorf("eval program after retract: %w", err)
		}
	}

	log.Printf("[session:%s] retracted %d facts", sessionID, removed)
	return nil
}

// updateSamplingRate lowers the acceptance rate for low-value facts as the
// buffer approaches its limit.
func (e *Engine) updateSamplingRate() {
	if e.cfg.FactBufferLimit <= 0 {
		e.samplingRate = 1.0
		return
	}

	fillRatio := float64(len(e.facts)) / float64(e.cfg.FactBufferLimit)

	switch {
	case fillRatio < 0.5:
		e.samplingRate = 1.0
	case fillRatio < 0.7:
		e.samplingRate = 0.8
	case fillRatio < 0.85:
		e.samplingRate = 0.5
	case fillRatio < 0.95:
		e.samplingRate = 0.2
	default:
		e.samplingRate = 0.1
	}
}

func (e *Engine) shouldAcceptFact(f Fact) bool {
	if !e.lowValuePredicates[f.Predicate] {
		return true
	}
	if e.samplingRate >= 1.0 {
		return true
	}
	return rand.Float64() < e.samplingRate
}

// SamplingRate returns the current adaptive sampling rate.
func (e *Engine) SamplingRate() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.samplingRate
}

// Query executes a Mangle query such as `react_component(S, N, "Button", P).`
// and returns one binding per satisfying fact. Falls back to a direct buffer
// scan when the store has no facts for the atom.
func (e *Engine) Query(ctx context.Context, queryStr string) ([]QueryResult, error) {
	if !e.cfg.Enable || !e.schemaLoaded {
		return nil, fmt.Errorf("engine not ready")
	}

	sourceUnit, err := parse.Unit(bytes.NewReader([]byte(queryStr)))
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if len(sourceUnit.Clauses) == 0 {
		return nil, fmt.Errorf("no query found")
	}
	queryAtom := sourceUnit.Clauses[0].Head

	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]QueryResult, 0)
	err = e.store.GetFacts(queryAtom, func(atom ast.Atom) error {
		result := make(QueryResult)
		for i, arg := range queryAtom.Args {
			if i >= len(atom.Args) {
				break
			}
			switch a := arg.(type) {
			case ast.Variable:
				if a.Symbol != "_" {
					result[a.Symbol] = e.convertConstant(atom.Args[i])
				}
			case ast.Constant:
				if fmt.Sprintf("%v", e.convertConstant(atom.Args[i])) != fmt.Sprintf("%v", e.convertConstant(a)) {
					return nil
				}
			}
		}
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}

	if len(results) == 0 {
		results = append(results, e.queryBufferDirect(queryAtom.Predicate.Symbol, queryAtom.Args)...)
	}

	return results, nil
}

func (e *Engine) queryBufferDirect(predicate string, queryArgs []ast.BaseTerm) []QueryResult {
	results := make([]QueryResult, 0)

	for _, idx := range e.index[predicate] {
		if idx < 0 || idx >= len(e.facts) {
			continue
		}
		f := e.facts[idx]
		if len(f.Args) < len(queryArgs) {
			continue
		}

		result := make(QueryResult)
		matches := true
		for i, qArg := range queryArgs {
			switch arg := qArg.(type) {
			case ast.Variable:
				if arg.Symbol != "_" {
					result[arg.Symbol] = f.Args[i]
				}
			case ast.Constant:
				if fmt.Sprintf("%v", f.Args[i]) != fmt.Sprintf("%v", e.convertConstant(arg)) {
					matches = false
				}
			}
			if !matches {
				break
			}
		}

		if matches {
			results = append(results, result)
		}
	}

	return results
}

// Evaluate runs the program and returns every fact held for predicate,
// derived or extensional.
func (e *Engine) Evaluate(ctx context.Context, predicate string) ([]Fact, error) {
	if !e.cfg.Enable || !e.schemaLoaded {
		return nil, fmt.Errorf("engine not ready")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
		return nil, fmt.Errorf("eval program: %w", err)
	}

	arity := -1
	for sym := range e.programInfo.Decls {
		if sym.Symbol == predicate {
			arity = sym.Arity
			break
		}
	}

	predSym := ast.PredicateSym{Symbol: predicate, Arity: arity}
	var queryAtom ast.Atom
	if arity >= 0 {
		args := make([]ast.BaseTerm, arity)
		for i := 0; i < arity; i++ {
			args[i] = ast.Variable{Symbol: fmt.Sprintf("V%d", i)}
		}
		queryAtom = ast.Atom{Predicate: predSym, Args: args}
	} else {
		queryAtom = ast.Atom{Predicate: predSym}
	}

	facts := make([]Fact, 0)
	err := e.store.GetFacts(queryAtom, func(atom ast.Atom) error {
		facts = append(facts, e.atomToFact(atom))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get facts: %w", err)
	}

	return facts, nil
}

// FactsByPredicate returns buffered facts for one predicate.
func (e *Engine) FactsByPredicate(predicate string) []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()

	indices := e.index[predicate]
	results := make([]Fact, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(e.facts) {
			results = append(results, e.facts[idx])
		}
	}
	return results
}

// SessionFacts returns buffered facts for one predicate whose first argument
// is sessionID.
func (e *Engine) SessionFacts(sessionID, predicate string) []Fact {
	all := e.FactsByPredicate(predicate)
	out := make([]Fact, 0, len(all))
	for _, f := range all {
		if len(f.Args) > 0 && f.Args[0] == sessionID {
			out = append(out, f)
		}
	}
	return out
}

// Facts returns a shallow copy of buffered facts.
func (e *Engine) Facts() []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Fact, len(e.facts))
	copy(out, e.facts)
	return out
}

// Ready reports whether the engine has a usable query context.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.schemaLoaded || !e.cfg.Enable
}

func (e *Engine) factToAtom(f Fact) ast.Atom {
	args := make([]ast.BaseTerm, len(f.Args))
	for i, arg := range f.Args {
		args[i] = toConstant(arg)
	}
	return ast.Atom{
		Predicate: ast.PredicateSym{Symbol: f.Predicate, Arity: len(f.Args)},
		Args:      args,
	}
}

func (e *Engine) atomToFact(atom ast.Atom) Fact {
	args := make([]interface{}, len(atom.Args))
	for i, arg := range atom.Args {
		args[i] = e.convertConstant(arg)
	}
	return Fact{
		Predicate: atom.Predicate.Symbol,
		Args:      args,
		Timestamp: time.Now(),
	}
}

func toConstant(v interface{}) ast.Constant {
	switch val := v.(type) {
	case string:
		return ast.String(val)
	case int:
		return ast.Number(int64(val))
	case int64:
		return ast.Number(val)
	case float64:
		return ast.Float64(val)
	case bool:
		if val {
			return ast.String("true")
		}
		return ast.String("false")
	default:
		return ast.String(fmt.Sprintf("%v", v))
	}
}

func (e *Engine) convertConstant(c ast.BaseTerm) interface{} {
	if c == nil {
		return nil
	}

	switch term := c.(type) {
	case ast.Constant:
		switch term.Type {
		case ast.StringType:
			val, _ := term.StringValue()
			return val
		case ast.NumberType:
			return term.NumberValue
		case ast.Float64Type:
			if val, err := term.Float64Value(); err == nil {
				return val
			}
		}
		return term.String()
	case ast.Variable:
		return term.Symbol
	default:
		return fmt.Sprintf("%v", c)
	}
}

func (e *Engine) rebuildIndex() {
	e.index = make(map[string][]int)
	for i, f := range e.facts {
		e.index[f.Predicate] = append(e.index[f.Predicate], i)
	}
}
