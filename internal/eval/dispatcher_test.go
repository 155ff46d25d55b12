package eval

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/gdb-bridge/internal/errors"
	"github.com/ctagard/gdb-bridge/internal/gdb"
	"github.com/ctagard/gdb-bridge/internal/mi"
)

type scriptedSession struct {
	mu    sync.Mutex
	sent  []string
	reply map[string]string
}

func (s *scriptedSession) Send(ctx context.Context, command string) (*gdb.Response, error) {
	s.mu.Lock()
	s.sent = append(s.sent, command)
	s.mu.Unlock()

	line, ok := s.reply[command]
	if !ok {
		line = `^error,msg="unexpected command"`
	}
	rec, _ := mi.ParseLine(line)
	return &gdb.Response{Command: command, Record: rec}, nil
}

func (s *scriptedSession) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func newSession() *scriptedSession {
	return &scriptedSession{reply: map[string]string{
		"-data-list-register-names":           `^done,register-names=["rax","rbx","","rip","eflags"]`,
		"-data-list-register-values x 0 3":    `^done,register-values=[{number="0",value="0x1c"},{number="3",value="0x555555555131"}]`,
		"-data-list-register-values x 3":      `^done,register-values=[{number="3",value="0x555555555131"}]`,
		"-data-list-register-values x 0 1 3 4": `^done,register-values=[{number="0",value="0x1c"},{number="1",value="0x0"},{number="3",value="0x5555"},{number="4",value="0x246"}]`,
		"-data-list-register-values x 1":      `^done,register-values=[]`,
		`-data-evaluate-expression "x + 1"`:   `^done,value="43"`,
		`-data-evaluate-expression "nope"`:    `^error,msg="No symbol \"nope\" in current context."`,
		"-data-read-memory &buf x 1 2 4": `^done,addr="0x601050",nr-bytes="8",total-bytes="8",next-row="0x601054",prev-row="0x60104c",next-page="0x601058",prev-page="0x601048",` +
			`memory=[{addr="0x601050",data=["0x01","0x02","0x03","0x04"]},{addr="0x601054",data=["0x05","0x06","0x07","0x08"]}]`,
		"info frame": `^done`,
		"bogus":      `^error,msg="Undefined command: \"bogus\"."`,
	}}
}

func newDispatcher(t *testing.T, s *scriptedSession) *Dispatcher {
	t.Helper()
	d := NewDispatcher(s, Options{AllowRaw: true, Mode: "full"})
	require.NoError(t, d.Init(context.Background()))
	return d
}

// TestInit verifies the register table keeps gdb's numbering, holes included
func TestInit(t *testing.T) {
	d := newDispatcher(t, newSession())
	table := d.RegisterTable()

	assert.Equal(t, 5, table.Len())
	assert.Equal(t, []string{"rax", "rbx", "rip", "eflags"}, table.Names())
	i, ok := table.Lookup("rip")
	assert.True(t, ok)
	assert.Equal(t, 3, i)
	i, ok = table.Lookup("$eflags")
	assert.True(t, ok)
	assert.Equal(t, 4, i)
	_, ok = table.Lookup("")
	assert.False(t, ok)
}

// TestRegisters verifies one batched command and exactly the requested keys
func TestRegisters(t *testing.T) {
	s := newSession()
	d := newDispatcher(t, s)

	values, err := d.Registers(context.Background(), []string{"rax", "rip"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"rax": "0x1c", "rip": "0x555555555131"}, values)
	assert.NotContains(t, values, "rbx")
	assert.Equal(t, []string{"-data-list-register-names", "-data-list-register-values x 0 3"}, s.commands())
}

func TestRegisters_All(t *testing.T) {
	d := newDispatcher(t, newSession())
	values, err := d.Registers(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, values, 4)
	assert.Equal(t, "0x246", values["eflags"])
}

// TestRegisters_Unknown verifies unknown names and missing values are reported
func TestRegisters_Unknown(t *testing.T) {
	s := newSession()
	d := newDispatcher(t, s)

	_, err := d.Registers(context.Background(), []string{"rax", "xmm99"})
	assert.True(t, errors.HasCode(err, errors.CodeUnknownRegister))
	assert.Len(t, s.commands(), 1, "no values command for an unknown name")

	_, err = d.Registers(context.Background(), []string{"rbx"})
	assert.True(t, errors.HasCode(err, errors.CodeUnknownRegister))
}

// TestRegisters_LazyInit verifies the table is fetched on first use
func TestRegisters_LazyInit(t *testing.T) {
	s := newSession()
	d := NewDispatcher(s, Options{})
	values, err := d.Registers(context.Background(), []string{"$rip"})
	require.NoError(t, err)
	assert.Equal(t, "0x555555555131", values["$rip"])
}

func TestEvaluate_Register(t *testing.T) {
	d := newDispatcher(t, newSession())

	res, err := d.Evaluate(context.Background(), "  rip ")
	require.NoError(t, err)
	assert.Equal(t, KindRegister, res.Kind)
	assert.Equal(t, "0x555555555131", res.Result)

	res, err = d.Evaluate(context.Background(), "$rip")
	require.NoError(t, err)
	assert.Equal(t, "0x555555555131", res.Result)
}

func TestEvaluate_Print(t *testing.T) {
	d := newDispatcher(t, newSession())

	res, err := d.Evaluate(context.Background(), "-p x + 1")
	require.NoError(t, err)
	assert.Equal(t, KindExpression, res.Kind)
	assert.Equal(t, "43", res.Result)

	_, err = d.Evaluate(context.Background(), "-p nope")
	assert.True(t, errors.HasCode(err, errors.CodeEvaluationFailed))
	assert.Contains(t, err.Error(), `No symbol "nope"`)
}

func TestEvaluate_Memory(t *testing.T) {
	d := newDispatcher(t, newSession())

	res, err := d.Evaluate(context.Background(), "-x &buf x 1 2 4")
	require.NoError(t, err)
	assert.Equal(t, KindMemory, res.Kind)
	assert.Equal(t, "0x601050: 0x01 0x02 0x03 0x04\n0x601054: 0x05 0x06 0x07 0x08", res.Result)

	_, err = d.Evaluate(context.Background(), "-x")
	assert.True(t, errors.HasCode(err, errors.CodeEvaluationFailed))
}

// TestEvaluate_Passthrough verifies unrecognised input goes to gdb verbatim
func TestEvaluate_Passthrough(t *testing.T) {
	s := newSession()
	d := newDispatcher(t, s)

	res, err := d.Evaluate(context.Background(), "info frame")
	require.NoError(t, err)
	assert.Equal(t, KindRaw, res.Kind)
	assert.Empty(t, res.Result)

	_, err = d.Evaluate(context.Background(), "bogus")
	assert.True(t, errors.HasCode(err, errors.CodeEvaluationFailed))

	// -px is not the -p prefix
	_, err = d.Evaluate(context.Background(), "-pxyz")
	assert.Error(t, err)
	sent := s.commands()
	assert.Equal(t, "-pxyz", sent[len(sent)-1])
}

func TestEvaluate_PassthroughDenied(t *testing.T) {
	s := newSession()
	d := NewDispatcher(s, Options{AllowRaw: false, Mode: "readonly"})
	require.NoError(t, d.Init(context.Background()))

	_, err := d.Evaluate(context.Background(), "info frame")
	assert.True(t, errors.HasCode(err, errors.CodePermissionDenied))
	for _, cmd := range s.commands() {
		assert.False(t, strings.HasPrefix(cmd, "info"))
	}

	// the structured forms stay available
	res, err := d.Evaluate(context.Background(), "-p x + 1")
	require.NoError(t, err)
	assert.Equal(t, "43", res.Result)
}

func TestEvaluate_Empty(t *testing.T) {
	d := newDispatcher(t, newSession())
	_, err := d.Evaluate(context.Background(), "   ")
	assert.True(t, errors.HasCode(err, errors.CodeMissingParameter))
}
