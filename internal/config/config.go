// Package config loads server configuration from a CUE file validated
// against an embedded schema.
//
// Example:
//
//	addr:     ":9090"
//	journal:  "sigsync.db"
//	capacity: 200
//	signals: {
//		counter: value: 0
//		todos: {}
//	}
package config

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sigsync/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// Error codes.
const (
	ErrCodeNotFound = "E_CONFIG_NOT_FOUND"
	ErrCodeSyntax   = "E_CONFIG_SYNTAX"
	ErrCodeInvalid  = "E_CONFIG_INVALID"
)

// Error is a configuration problem, positioned in the file when CUE knows
// where it is.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Config is the validated server configuration.
type Config struct {
	Addr        string
	Capacity    int
	Buffer      int
	Journal     string
	IdleTimeout time.Duration
	UpdateRate  float64
	UpdateBurst int
	Signals     []SignalConfig
}

// SignalConfig describes a pinned signal created at startup.
type SignalConfig struct {
	ID string
	// Value is the initial scalar; nil starts an empty list.
	Value ir.Value
}

// Default returns the configuration an empty file produces.
func Default() *Config {
	cfg, err := Parse("default.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema defaults: %v", err))
	}
	return cfg
}

// Load reads and validates the CUE file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeNotFound, Message: err.Error()}
	}
	return Parse(path, data)
}

// Parse validates src against the schema and applies defaults. filename is
// only used in error positions.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	file := ctx.CompileBytes(src, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return nil, newError(ErrCodeSyntax, err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(file)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, newError(ErrCodeInvalid, err)
	}

	return decode(v)
}

func decode(v cue.Value) (*Config, error) {
	cfg := &Config{}
	var err error

	if cfg.Addr, err = v.LookupPath(cue.ParsePath("addr")).String(); err != nil {
		return nil, newError(ErrCodeInvalid, err)
	}
	if cfg.Capacity, err = intField(v, "capacity"); err != nil {
		return nil, err
	}
	if cfg.Buffer, err = intField(v, "buffer"); err != nil {
		return nil, err
	}
	if cfg.UpdateBurst, err = intField(v, "update_burst"); err != nil {
		return nil, err
	}
	if cfg.UpdateRate, err = v.LookupPath(cue.ParsePath("update_rate")).Float64(); err != nil {
		return nil, newError(ErrCodeInvalid, err)
	}

	if j := v.LookupPath(cue.ParsePath("journal")); j.Exists() {
		if cfg.Journal, err = j.String(); err != nil {
			return nil, newError(ErrCodeInvalid, err)
		}
	}

	idle, err := v.LookupPath(cue.ParsePath("idle_timeout")).String()
	if err != nil {
		return nil, newError(ErrCodeInvalid, err)
	}
	if cfg.IdleTimeout, err = time.ParseDuration(idle); err != nil {
		return nil, &Error{Code: ErrCodeInvalid, Message: fmt.Sprintf("idle_timeout: %v", err)}
	}

	if cfg.Signals, err = decodeSignals(v.LookupPath(cue.ParsePath("signals"))); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeSignals(v cue.Value) ([]SignalConfig, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, newError(ErrCodeInvalid, err)
	}

	var out []SignalConfig
	for iter.Next() {
		sc := SignalConfig{ID: iter.Label()}
		if val := iter.Value().LookupPath(cue.ParsePath("value")); val.Exists() {
			data, err := val.MarshalJSON()
			if err != nil {
				return nil, newError(ErrCodeInvalid, err)
			}
			sc.Value = ir.Value(data)
		}
		out = append(out, sc)
	}
	slices.SortFunc(out, func(a, b SignalConfig) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func intField(v cue.Value, name string) (int, error) {
	n, err := v.LookupPath(cue.ParsePath(name)).Int64()
	if err != nil {
		return 0, newError(ErrCodeInvalid, err)
	}
	return int(n), nil
}

// newError converts a CUE error, keeping the first position it reports.
func newError(code string, err error) *Error {
	e := &Error{Code: code, Message: cueerrors.Details(err, nil)}
	if pos := cueerrors.Positions(err); len(pos) > 0 {
		e.Pos = pos[0]
	}
	return e
}
