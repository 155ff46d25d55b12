// Package eval classifies evaluation requests and turns each into gdb commands.
//
//	rax, $pc        register read through the cached register table
//	-x <spec>       -data-read-memory <spec>, formatted as "addr: bytes" rows
//	-p <expr>       -data-evaluate-expression, returns the value
//	anything else   passed to gdb verbatim; output arrives as stream events
package eval

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ctagard/gdb-bridge/internal/errors"
	"github.com/ctagard/gdb-bridge/internal/gdb"
	"github.com/ctagard/gdb-bridge/internal/mi"
	"github.com/ctagard/gdb-bridge/pkg/types"
)

// Result kinds
const (
	KindRegister   = "register"
	KindMemory     = "memory"
	KindExpression = "expression"
	KindRaw        = "raw"
)

// Session is the part of gdb.Client the dispatcher needs
type Session interface {
	Send(ctx context.Context, command string) (*gdb.Response, error)
}

// Options configures a Dispatcher
type Options struct {
	// RegisterFormat is the -data-list-register-values format letter; "x" when empty
	RegisterFormat string
	// AllowRaw permits passing unrecognised input to gdb as a command
	AllowRaw bool
	// Mode is reported in permission errors
	Mode string
}

// Dispatcher evaluates expressions against one gdb session
type Dispatcher struct {
	session Session
	opts    Options

	mu        sync.RWMutex
	registers *RegisterTable
}

// NewDispatcher creates a dispatcher. Call Init once gdb has a program loaded.
func NewDispatcher(session Session, opts Options) *Dispatcher {
	if opts.RegisterFormat == "" {
		opts.RegisterFormat = "x"
	}
	return &Dispatcher{session: session, opts: opts}
}

// Init fetches the register names. The table is immutable afterwards.
func (d *Dispatcher) Init(ctx context.Context) error {
	resp, err := d.session.Send(ctx, "-data-list-register-names")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return errors.CommandFailed("-data-list-register-names", resp.Record.ErrorMessage())
	}

	table := NewRegisterTable(resp.Record.Payload.Get("register-names").Strings())
	d.mu.Lock()
	d.registers = table
	d.mu.Unlock()
	return nil
}

// RegisterTable returns the cached table, or nil before Init
func (d *Dispatcher) RegisterTable() *RegisterTable {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.registers
}

// Registers reads the named registers with a single command. With no names,
// every register is read. The result has exactly one key per requested name.
func (d *Dispatcher) Registers(ctx context.Context, names []string) (map[string]string, error) {
	table := d.RegisterTable()
	if table == nil {
		if err := d.Init(ctx); err != nil {
			return nil, err
		}
		table = d.RegisterTable()
	}
	if len(names) == 0 {
		names = table.Names()
	}
	if len(names) == 0 {
		return map[string]string{}, nil
	}

	numbers := make([]string, 0, len(names))
	wanted := make(map[string]int, len(names))
	for _, name := range names {
		i, ok := table.Lookup(name)
		if !ok {
			return nil, errors.UnknownRegister(name)
		}
		if _, dup := wanted[name]; !dup {
			numbers = append(numbers, strconv.Itoa(i))
		}
		wanted[name] = i
	}

	cmd := fmt.Sprintf("-data-list-register-values %s %s", d.opts.RegisterFormat, strings.Join(numbers, " "))
	resp, err := d.session.Send(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errors.CommandFailed("-data-list-register-values", resp.Record.ErrorMessage())
	}

	byNumber := make(map[int]string)
	for _, v := range resp.Record.Payload.Get("register-values").Values() {
		n, err := v.Get("number").Int()
		if err != nil {
			continue
		}
		byNumber[n] = v.Get("value").String()
	}

	out := make(map[string]string, len(wanted))
	for name, i := range wanted {
		value, ok := byNumber[i]
		if !ok {
			return nil, errors.UnknownRegister(name)
		}
		out[name] = value
	}
	return out, nil
}

// Evaluate classifies expr and runs it
func (d *Dispatcher) Evaluate(ctx context.Context, expr string) (types.EvaluateResult, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return types.EvaluateResult{}, errors.MissingParameter("expression", "Provide a register name, -x <memory spec>, -p <expression> or a gdb command.")
	}

	if _, ok := d.RegisterTable().Lookup(expr); ok {
		values, err := d.Registers(ctx, []string{expr})
		if err != nil {
			return types.EvaluateResult{}, err
		}
		return types.EvaluateResult{Result: values[expr], Kind: KindRegister}, nil
	}

	if spec, ok := cutFlag(expr, "-x"); ok {
		return d.readMemory(ctx, expr, spec)
	}
	if e, ok := cutFlag(expr, "-p"); ok {
		return d.print(ctx, e)
	}
	return d.passthrough(ctx, expr)
}

// cutFlag reports whether s is flag alone or flag followed by whitespace
func cutFlag(s, flag string) (string, bool) {
	if !strings.HasPrefix(s, flag) {
		return "", false
	}
	rest := s[len(flag):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func (d *Dispatcher) readMemory(ctx context.Context, expr, spec string) (types.EvaluateResult, error) {
	if spec == "" {
		return types.EvaluateResult{}, errors.EvaluationFailed(expr, fmt.Errorf("missing memory spec, e.g. -x &buf x 1 4 8"))
	}

	resp, err := d.session.Send(ctx, "-data-read-memory "+spec)
	if err != nil {
		return types.EvaluateResult{}, err
	}
	if resp.IsError() {
		return types.EvaluateResult{}, errors.EvaluationFailed(expr, errors.CommandFailed("-data-read-memory", resp.Record.ErrorMessage()))
	}
	return types.EvaluateResult{Result: formatMemory(resp.Record.Payload.Get("memory")), Kind: KindMemory}, nil
}

// formatMemory renders -data-read-memory rows as "addr: d0 d1 ..." lines
func formatMemory(memory mi.Value) string {
	rows := make([]string, 0, memory.Len())
	for _, row := range memory.Values() {
		line := row.Get("addr").String() + ":"
		if data := row.Get("data").Strings(); len(data) > 0 {
			line += " " + strings.Join(data, " ")
		}
		if ascii := row.Get("ascii"); !ascii.IsZero() {
			line += "  " + ascii.String()
		}
		rows = append(rows, line)
	}
	return strings.Join(rows, "\n")
}

func (d *Dispatcher) print(ctx context.Context, expr string) (types.EvaluateResult, error) {
	if expr == "" {
		return types.EvaluateResult{}, errors.EvaluationFailed("-p", fmt.Errorf("missing expression"))
	}

	resp, err := d.session.Send(ctx, "-data-evaluate-expression "+mi.Quote(expr))
	if err != nil {
		return types.EvaluateResult{}, err
	}
	if resp.IsError() {
		return types.EvaluateResult{}, errors.EvaluationFailed(expr, errors.CommandFailed("-data-evaluate-expression", resp.Record.ErrorMessage()))
	}
	return types.EvaluateResult{Result: resp.Record.Payload.Get("value").String(), Kind: KindExpression}, nil
}

func (d *Dispatcher) passthrough(ctx context.Context, command string) (types.EvaluateResult, error) {
	if !d.opts.AllowRaw {
		return types.EvaluateResult{}, errors.PermissionDenied("execute", d.opts.Mode)
	}

	resp, err := d.session.Send(ctx, command)
	if err != nil {
		return types.EvaluateResult{}, err
	}
	if resp.IsError() {
		return types.EvaluateResult{}, errors.EvaluationFailed(command, errors.CommandFailed(command, resp.Record.ErrorMessage()))
	}
	return types.EvaluateResult{Kind: KindRaw}, nil
}
