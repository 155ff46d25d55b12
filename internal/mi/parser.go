package mi

import (
	"errors"
	"fmt"
	"strings"
)

// PromptMarker is the delimiter GDB prints after each batch of output
const PromptMarker = "(gdb)"

var (
	errEmptyClass    = errors.New("missing record class")
	errUnterminated  = errors.New("unterminated c-string")
	errTrailingInput = errors.New("unexpected trailing input")
)

// SyntaxError describes why a line could not be parsed
type SyntaxError struct {
	Line   string
	Offset int
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("mi: %v at offset %d in %q", e.Err, e.Offset, e.Line)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Parse splits chunk into lines and parses each one. The prompt marker is dropped.
// A final line without a terminating newline is parsed like any other line.
func Parse(chunk string) []Record {
	var records []Record
	for _, line := range splitLines(chunk) {
		records = append(records, ParseLineRecords(line)...)
	}
	return records
}

// splitLines splits on \n, ignoring the empty segment after a final newline
func splitLines(chunk string) []string {
	if chunk == "" {
		return nil
	}
	lines := strings.Split(chunk, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// IsPrompt reports whether line is the prompt delimiter
func IsPrompt(line string) bool {
	return strings.TrimSpace(line) == PromptMarker
}

// ParseLine parses a single line. It returns ok=false for the prompt marker and for
// empty lines. Lines that do not follow the grammar are returned as raw stream
// records; when the line looked like a record, ParseErr explains what went wrong.
func ParseLine(line string) (Record, bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || IsPrompt(line) {
		return Record{}, false
	}

	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	token := line[:i]
	if i >= len(line) {
		return rawRecord(line, nil), true
	}

	var (
		rec Record
		err error
	)
	switch line[i] {
	case '^':
		rec, err = parseClassified(line, i+1)
		rec.Kind = RecordResult
	case '*', '+', '=':
		rec, err = parseClassified(line, i+1)
		rec.Kind = RecordAsync
		rec.Async = asyncClass(line[i])
	case '~', '@', '&':
		if token != "" {
			return rawRecord(line, nil), true
		}
		rec, err = parseStream(line, i)
	default:
		return rawRecord(line, nil), true
	}
	if err != nil {
		return rawRecord(line, err), true
	}
	rec.Token = token
	return rec, true
}

// ParseLineRecords parses a line that may carry inferior output followed by a record.
// The inferior shares gdb's stdout and often leaves its last write without a newline,
// so gdb's next record lands on the same line. When the whole line is not a record,
// the last record start whose remainder parses to the end of the line is split off:
// the text before it becomes a raw record and the rest is parsed normally. Records
// recovered this way carry no token.
func ParseLineRecords(line string) []Record {
	rec, ok := ParseLine(line)
	if !ok {
		return nil
	}
	if rec.Channel != ChannelRaw {
		return []Record{rec}
	}
	line = strings.TrimRight(line, "\r\n")
	for j := len(line) - 1; j > 0; j-- {
		if !isRecordStart(line, j) {
			continue
		}
		tail, ok := ParseLine(line[j:])
		if !ok || tail.Channel == ChannelRaw {
			continue
		}
		return []Record{rawRecord(line[:j], nil), tail}
	}
	return []Record{rec}
}

// isRecordStart reports whether a record prefix begins at line[j]
func isRecordStart(line string, j int) bool {
	if j+1 >= len(line) {
		return false
	}
	switch line[j] {
	case '^', '*', '+', '=':
		c := line[j+1]
		return c >= 'a' && c <= 'z'
	case '~', '@', '&':
		return line[j+1] == '"'
	}
	return false
}

func rawRecord(line string, err error) Record {
	return Record{Kind: RecordStream, Channel: ChannelRaw, Text: line, ParseErr: err}
}

func asyncClass(b byte) AsyncClass {
	switch b {
	case '*':
		return AsyncExec
	case '+':
		return AsyncStatus
	default:
		return AsyncNotify
	}
}

func streamChannel(b byte) Channel {
	switch b {
	case '~':
		return ChannelConsole
	case '@':
		return ChannelTarget
	default:
		return ChannelLog
	}
}

func parseStream(line string, at int) (Record, error) {
	p := &parser{s: line, pos: at + 1}
	text, err := p.cstring()
	if err != nil {
		return Record{}, err
	}
	if !p.eof() {
		return Record{}, p.fail(errTrailingInput)
	}
	return Record{Kind: RecordStream, Channel: streamChannel(line[at]), Text: text}, nil
}

// parseClassified parses `class(,result)*` starting at offset
func parseClassified(line string, at int) (Record, error) {
	p := &parser{s: line, pos: at}
	start := p.pos
	for !p.eof() && isClassByte(p.peek()) {
		p.pos++
	}
	class := line[start:p.pos]
	if class == "" {
		return Record{}, p.fail(errEmptyClass)
	}

	var fields []Field
	for !p.eof() {
		if p.peek() != ',' {
			return Record{}, p.fail(errTrailingInput)
		}
		p.pos++
		f, err := p.element()
		if err != nil {
			return Record{}, err
		}
		fields = append(fields, f)
	}
	return Record{Class: class, Payload: Tuple(fields...)}, nil
}

func isClassByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '-' || b == '_'
}

// ParseValue parses a standalone MI value such as {a="1",b=["x"]}
func ParseValue(text string) (Value, error) {
	p := &parser{s: text}
	v, err := p.value()
	if err != nil {
		return Value{}, err
	}
	if !p.eof() {
		return Value{}, p.fail(errTrailingInput)
	}
	return v, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.s)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) fail(err error) error {
	return &SyntaxError{Line: p.s, Offset: p.pos, Err: err}
}

func (p *parser) expect(b byte) error {
	if p.peek() != b {
		return p.fail(fmt.Errorf("expected %q", b))
	}
	p.pos++
	return nil
}

// element parses either name=value or a bare value. GDB emits bare values inside
// tuples in a few places (e.g. script={"silent","print x"}).
func (p *parser) element() (Field, error) {
	switch p.peek() {
	case '"', '{', '[':
		v, err := p.value()
		return Field{Value: v}, err
	}
	start := p.pos
	for !p.eof() && p.peek() != '=' {
		switch p.peek() {
		case ',', '{', '}', '[', ']', '"':
			return Field{}, p.fail(errors.New("malformed result name"))
		}
		p.pos++
	}
	name := p.s[start:p.pos]
	if name == "" {
		return Field{}, p.fail(errors.New("empty result name"))
	}
	if err := p.expect('='); err != nil {
		return Field{}, err
	}
	v, err := p.value()
	if err != nil {
		return Field{}, err
	}
	return Field{Name: name, Value: v}, nil
}

func (p *parser) value() (Value, error) {
	switch p.peek() {
	case '"':
		s, err := p.cstring()
		if err != nil {
			return Value{}, err
		}
		return Scalar(s), nil
	case '{':
		items, err := p.sequence('{', '}')
		return Value{kind: KindTuple, items: items}, err
	case '[':
		items, err := p.sequence('[', ']')
		return Value{kind: KindList, items: items}, err
	default:
		return Value{}, p.fail(errors.New("expected value"))
	}
}

func (p *parser) sequence(open, closing byte) ([]Field, error) {
	if err := p.expect(open); err != nil {
		return nil, err
	}
	items := []Field{}
	if p.peek() == closing {
		p.pos++
		return items, nil
	}
	for {
		f, err := p.element()
		if err != nil {
			return nil, err
		}
		items = append(items, f)
		switch p.peek() {
		case ',':
			p.pos++
		case closing:
			p.pos++
			return items, nil
		default:
			return nil, p.fail(fmt.Errorf("expected ',' or %q", closing))
		}
	}
}

// cstring parses a double-quoted C string and unescapes it
func (p *parser) cstring() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		if p.eof() {
			return "", p.fail(errUnterminated)
		}
		c := p.s[p.pos]
		p.pos++
		switch c {
		case '"':
			return sb.String(), nil
		case '\\':
			if p.eof() {
				return "", p.fail(errUnterminated)
			}
			e := p.s[p.pos]
			p.pos++
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'a':
				sb.WriteByte('\a')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'v':
				sb.WriteByte('\v')
			case 'e':
				sb.WriteByte(0x1b)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				n := int(e - '0')
				for k := 0; k < 2 && !p.eof() && p.peek() >= '0' && p.peek() <= '7'; k++ {
					n = n*8 + int(p.s[p.pos]-'0')
					p.pos++
				}
				sb.WriteByte(byte(n))
			default:
				sb.WriteByte(e)
			}
		default:
			sb.WriteByte(c)
		}
	}
}

// Quote renders s as an MI C-string, suitable for command arguments
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&sb, `\%03o`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
