package mi

import (
	"bytes"
	"strings"
)

// Decoder frames a live MI byte stream into records. The transport may split the
// stream anywhere; only completed lines are parsed, and the remainder is kept until
// the next Feed or Flush.
type Decoder struct {
	partial strings.Builder
}

// NewDecoder returns an empty decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk and returns the records of every line it completed, plus the
// number of prompt markers seen.
func (d *Decoder) Feed(chunk []byte) ([]Record, int) {
	var (
		records []Record
		prompts int
	)
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			d.partial.Write(chunk)
			break
		}
		d.partial.Write(chunk[:i])
		chunk = chunk[i+1:]

		line := d.partial.String()
		d.partial.Reset()
		if IsPrompt(line) {
			prompts++
			continue
		}
		records = append(records, ParseLineRecords(line)...)
	}
	return records, prompts
}

// Flush parses any buffered partial line. Call it at end of stream.
func (d *Decoder) Flush() []Record {
	if d.partial.Len() == 0 {
		return nil
	}
	line := d.partial.String()
	d.partial.Reset()
	return ParseLineRecords(line)
}

// Pending reports whether a partial line is buffered
func (d *Decoder) Pending() bool {
	return d.partial.Len() > 0
}
