package stream

import (
	"fmt"
	"strconv"
	"strings"
)

// Outcome classifies how a byte-range request must be answered.
type Outcome int

const (
	// FullBody means no range was requested: serve the whole object (200).
	FullBody Outcome = iota
	// PartialContent means a valid sub-range was requested (206).
	PartialContent
	// Unsatisfiable means the header was malformed or out of bounds (416).
	Unsatisfiable
)

// Resolution is the outcome of matching a Range header against an object
// of known size, carrying everything the HTTP layer needs to answer.
type Resolution struct {
	Outcome Outcome
	Start   int64 // first byte offset, PartialContent only
	End     int64 // last byte offset (inclusive), PartialContent only
	Length  int64 // bytes to serve: End-Start+1, or Total for FullBody
	Total   int64 // total object size
}

// ContentRange renders the Content-Range header value for this resolution:
// "bytes {start}-{end}/{total}" for a satisfiable range, "bytes */{total}"
// for an unsatisfiable one.
func (r Resolution) ContentRange() string {
	if r.Outcome == Unsatisfiable {
		return fmt.Sprintf("bytes */%d", r.Total)
	}
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// Resolve translates an HTTP Range header plus the object's total size into
// a Resolution. An empty header means the whole object. The header form is
// "bytes=start-end" with end optional; end defaults to the last byte.
//
// A range is unsatisfiable when either bound fails to parse, either bound
// reaches past the object, or start exceeds end. The start > end case must
// be rejected explicitly: both bounds can individually sit inside the
// object while describing an empty slice.
func Resolve(rangeHeader string, totalSize int64) Resolution {
	if rangeHeader == "" {
		return Resolution{Outcome: FullBody, Start: 0, End: totalSize - 1, Length: totalSize, Total: totalSize}
	}

	unsat := Resolution{Outcome: Unsatisfiable, Total: totalSize}

	spec := strings.TrimPrefix(rangeHeader, "bytes=")
	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return unsat
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return unsat
	}

	end := totalSize - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return unsat
		}
	}

	if start >= totalSize || end >= totalSize || start > end {
		return unsat
	}

	return Resolution{
		Outcome: PartialContent,
		Start:   start,
		End:     end,
		Length:  end - start + 1,
		Total:   totalSize,
	}
}
