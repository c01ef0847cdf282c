package aggregator

import (
	"bufio"
	"context"
	"github.com/pkg/errors"
	"io"
	"os"
	"strings"
)

var errMissing = errors.New("log file does not exist")

// DefaultMaxLineBytes caps a single log line, terminator included.
const DefaultMaxLineBytes = 1 << 20

// cursor is the high-water mark of a log file: the identity of the file and the offset just
// past the last complete line that was consumed. skipping is set while the reader is inside a
// line that exceeded the byte cap and has not seen its terminator yet.
type cursor struct {
	file     os.FileInfo
	offset   int64
	skipping bool
}

// lineRing keeps the most recent size lines pushed into it.
type lineRing struct {
	data []string
	size int
	pos  int
}

func newLineRing(size int) *lineRing {
	if size < 1 {
		size = 1
	}
	return &lineRing{size: size}
}

func (r *lineRing) push(line string) {
	if len(r.data) < r.size {
		r.data = append(r.data, line)
		return
	}
	r.data[r.pos] = line
	r.pos = (r.pos + 1) % r.size
}

// lines returns the retained lines, oldest first.
func (r *lineRing) lines() []string {
	out := make([]string, 0, len(r.data))
	out = append(out, r.data[r.pos:]...)
	return append(out, r.data[:r.pos]...)
}

// readLines returns at most maxLines complete lines appended after cur, plus the advanced cursor.
// The file is read from the start when it was replaced or truncated since cur was taken.
// A trailing line without newline is left for the next call. Lines longer than maxBytes are
// dropped and the cursor moves past them, even when their end has not been written yet.
// On error cur is returned unchanged.
func readLines(ctx context.Context, path string, cur cursor, maxLines, maxBytes int) ([]string, cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, cur, errMissing
		}
		return nil, cur, errors.Wrap(err, "failed to open log file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, cur, errors.Wrap(err, "failed to stat log file")
	}

	offset := cur.offset
	if cur.file == nil || !os.SameFile(cur.file, info) || info.Size() < offset {
		offset = 0
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, cur, errors.Wrap(err, "failed to seek log file")
		}
	}

	var (
		ring     = newLineRing(maxLines)
		r        = bufio.NewReaderSize(f, 64*1024)
		line     []byte
		pending  int64
		skipping = cur.skipping && offset > 0
	)
	for n := 0; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, cur, errors.Wrap(err, "log read aborted")
			}
		}

		chunk, err := r.ReadSlice('\n')
		pending += int64(len(chunk))
		if !skipping {
			if len(line)+len(chunk) > maxBytes {
				skipping = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}

		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF {
			if skipping {
				offset += pending
			}
			break
		}
		if err != nil {
			return nil, cur, errors.Wrap(err, "failed to read log file")
		}

		offset += pending
		pending = 0
		if skipping {
			skipping = false
			continue
		}
		ring.push(strings.TrimRight(string(line), "\r\n"))
		line = line[:0]
	}

	return ring.lines(), cursor{file: info, offset: offset, skipping: skipping}, nil
}
