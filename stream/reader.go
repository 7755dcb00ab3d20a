package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/runlog/runlog/record"
)

// maxRecordSize bounds a single record's serialized form. Detail output
// for a very chatty test can get large, but a fragment this big with no
// separator is corruption, not data.
const maxRecordSize = 4 * 1024 * 1024

// Reader decodes records from a result stream in write order.
//
// The stream is split on the Record Separator byte. A trailing fragment
// with no terminating separator is data the producer has not finished
// writing yet: Next reports io.EOF without consuming it, so it never
// surfaces as an error or a truncated record.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader decoding from r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	s.Split(splitRecords)
	return &Reader{scanner: s}
}

// Next returns the next complete record. It returns io.EOF when no more
// complete records are available; a complete fragment that fails to parse
// as JSON is returned as a non-EOF error, and Next may be called again to
// skip past it.
func (r *Reader) Next() (record.Record, error) {
	for r.scanner.Scan() {
		frag := r.scanner.Bytes()
		if len(frag) == 0 {
			continue
		}
		rec, err := record.Unmarshal(frag)
		if err != nil {
			return record.Record{}, fmt.Errorf("malformed record: %w", err)
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return record.Record{}, err
	}
	return record.Record{}, io.EOF
}

// ReadAll consumes the remaining complete records. Malformed records are
// skipped; reading stops at the first I/O error.
func (r *Reader) ReadAll() ([]record.Record, error) {
	var recs []record.Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			if r.scanner.Err() != nil {
				return recs, err
			}
			continue // malformed fragment, keep going
		}
		recs = append(recs, rec)
	}
}

// ReadFile reads all complete records from the stream file at path.
func ReadFile(path string) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening result stream: %w", err)
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

// splitRecords is a bufio.SplitFunc producing one record fragment per
// separator. At EOF any unterminated trailing fragment is discarded
// rather than returned, preserving the live-tail contract.
func splitRecords(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, Separator); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		// Trailing bytes with no separator: not yet written.
		return len(data), nil, nil
	}
	return 0, nil, nil
}
