package csproto

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
)

// lineReader reads the CR-terminated (no LF) ASCII lines of spec §4.D /
// §6.1, tracking a source line number for diagnostics.
type lineReader struct {
	r    *bufio.Reader
	line int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

func (lr *lineReader) readLine() (string, error) {
	s, err := lr.r.ReadString('\r')
	if err != nil {
		return "", icerr.Wrap(icerr.ProtocolError, err, "reading line").WithLine(lr.line + 1)
	}
	lr.line++
	return strings.TrimSuffix(s, "\r"), nil
}

// readGroup reads lines up to and including the terminating empty line,
// returning the lines before it.
func (lr *lineReader) readGroup() ([]string, error) {
	var lines []string
	for {
		s, err := lr.readLine()
		if err != nil {
			return nil, err
		}
		if s == "" {
			return lines, nil
		}
		lines = append(lines, s)
	}
}

func writeLine(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format+"\r", args...)
	return err
}

func writeEmptyLine(w io.Writer) error {
	_, err := io.WriteString(w, "\r")
	return err
}

// kv splits a "key: value" line; the space after the colon is significant
// per spec §4.D ("spelling and spacing are significant").
func kv(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ": ")
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], line[idx+2:], true
}

func parseKV(lines []string, lineNo int) (map[string]string, error) {
	m := make(map[string]string)
	for i, l := range lines {
		k, v, ok := kv(l)
		if !ok {
			return nil, icerr.New(icerr.ProtocolError, "malformed line %q", l).WithLine(lineNo + i)
		}
		m[k] = v
	}
	return m, nil
}

func parseIntField(m map[string]string, key string) (int, error) {
	s, ok := m[key]
	if !ok {
		return 0, icerr.New(icerr.ProtocolError, "missing field %q", key)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, icerr.Wrap(icerr.ProtocolError, err, "field %q not numeric", key)
	}
	return n, nil
}
