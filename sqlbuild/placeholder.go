package sqlbuild

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrPlaceholderIndex is returned by [Statement.Check] when placeholder numbering
// is not contiguous from 1 or does not match the number of arguments.
var ErrPlaceholderIndex = errors.New("sqlbuild: placeholder index mismatch")

// Statement is a compiled SQL statement ready for a parameterized exec/query call.
type Statement struct {
	Text string
	Args []any
}

// Counter hands out 1-based placeholder indexes. The zero value is ready to
// use and starts at 1.
type Counter struct {
	n int
}

// Next advances the counter and returns the new index.
func (c *Counter) Next() int {
	c.n++
	return c.n
}

// binder collects arguments and returns the placeholder each one is bound to.
// A binder lives for a single builder call.
type binder struct {
	dialect Dialect
	counter Counter
	args    []any
}

func newBinder(d Dialect) *binder {
	return &binder{dialect: d}
}

func (b *binder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(b.counter.Next())
}

// fragments is an ordered list of clause fragments joined by a fixed separator.
type fragments struct {
	sep   string
	parts []string
}

func (f *fragments) add(format string, a ...any) {
	f.parts = append(f.parts, fmt.Sprintf(format, a...))
}

func (f *fragments) empty() bool {
	return len(f.parts) == 0
}

func (f *fragments) String() string {
	return strings.Join(f.parts, f.sep)
}

// Check verifies that the $n placeholders in Text appear as 1, 2, ... len(Args)
// in emission order, without gaps or reuse.
func (s Statement) Check() error {
	want := 1
	text := s.Text
	for {
		i := strings.IndexByte(text, '$')
		if i < 0 {
			break
		}
		text = text[i+1:]
		j := 0
		for j < len(text) && text[j] >= '0' && text[j] <= '9' {
			j++
		}
		if j == 0 {
			continue
		}
		got, err := strconv.Atoi(text[:j])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPlaceholderIndex, err)
		}
		if got != want {
			return fmt.Errorf("%w: got $%d, want $%d", ErrPlaceholderIndex, got, want)
		}
		want++
		text = text[j:]
	}
	if want-1 != len(s.Args) {
		return fmt.Errorf("%w: %d placeholders for %d args", ErrPlaceholderIndex, want-1, len(s.Args))
	}
	return nil
}
