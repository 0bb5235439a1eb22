package ts3

import (
	"strconv"
	"strings"
)

const (
	statusPrefix = "error"
	notifyPrefix = "notify"

	// Lines are terminated with CR LF on the wire. Incoming lines are
	// normalized by the reader, which also tolerates the LF CR ordering
	// that real servers emit.
	lineTerminator = "\r\n"
)

// The escape table of the query protocol. Order matters: the backslash pair
// must be applied first on escape and last on unescape.
var escapePairs = []struct {
	raw     string
	escaped string
}{
	{"\\", `\\`},
	{"/", `\/`},
	{" ", `\s`},
	{"|", `\p`},
	{"\a", `\a`},
	{"\b", `\b`},
	{"\f", `\f`},
	{"\n", `\n`},
	{"\r", `\r`},
	{"\t", `\t`},
	{"\v", `\v`},
}

var unescapeTable = map[byte]byte{
	'\\': '\\',
	'/':  '/',
	's':  ' ',
	'p':  '|',
	'a':  '\a',
	'b':  '\b',
	'f':  '\f',
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'v':  '\v',
}

// Escape replaces the characters reserved by the query protocol with their
// backslash sequences.
func Escape(raw string) string {
	for _, pair := range escapePairs {
		raw = strings.ReplaceAll(raw, pair.raw, pair.escaped)
	}
	return raw
}

// Unescape reverses Escape. A trailing backslash or an unknown escape
// sequence yields a MalformedLineError; callers drop the line and continue.
func Unescape(escaped string) (string, error) {
	if !strings.ContainsRune(escaped, '\\') {
		return escaped, nil
	}

	var builder strings.Builder
	builder.Grow(len(escaped))
	for index := 0; index < len(escaped); index++ {
		char := escaped[index]
		if char != '\\' {
			builder.WriteByte(char)
			continue
		}
		index++
		if index == len(escaped) {
			return "", NewError(MalformedLineError, "trailing backslash in "+strconv.Quote(escaped))
		}
		replacement, known := unescapeTable[escaped[index]]
		if !known {
			return "", NewError(MalformedLineError, "unknown escape sequence \\"+string(escaped[index]))
		}
		builder.WriteByte(replacement)
	}
	return builder.String(), nil
}

// Status is the result of the trailing status line that closes every
// command reply. ID zero is success; any other value is a server-defined
// rejection, returned as data by Execute rather than as an error.
type Status struct {
	ID  int
	Msg string

	// Extra carries optional diagnostic fields such as extra_msg or
	// failed_permid.
	Extra *Record
}

// OK reports whether the status signals success.
func (status Status) OK() bool { return status.ID == 0 }

// Err translates a non-zero status into a *QueryError. Success yields nil.
func (status Status) Err() error {
	if status.ID == 0 {
		return nil
	}
	queryErr := &QueryError{ID: status.ID, Msg: status.Msg}
	if status.Extra != nil {
		queryErr.ExtraMsg = status.Extra.getString("extra_msg")
	}
	return queryErr
}

// decodeRecord parses one space-separated key=value group into a Record.
// Tokens without '=' carry no field and are skipped.
func decodeRecord(part string) (*Record, error) {
	record := NewRecord()
	for _, token := range strings.Split(part, " ") {
		if token == "" {
			continue
		}
		key, escapedValue, isPair := strings.Cut(token, "=")
		if !isPair {
			continue
		}
		value, err := Unescape(escapedValue)
		if err != nil {
			return nil, err
		}
		record.Set(key, value)
	}
	return record, nil
}

// DecodeRecords parses a reply data line into its pipe-separated entities.
func DecodeRecords(line string) ([]*Record, error) {
	var records []*Record
	for _, part := range strings.Split(line, "|") {
		if part == "" {
			continue
		}
		record, err := decodeRecord(part)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// EncodeRecords renders entities as a pipe-separated multi-entity group,
// the exact inverse of DecodeRecords.
func EncodeRecords(records []*Record) string {
	parts := make([]string, 0, len(records))
	for _, record := range records {
		fields := make([]string, 0, record.Len())
		for _, key := range record.keys {
			fields = append(fields, key+"="+Escape(record.fields[key]))
		}
		parts = append(parts, strings.Join(fields, " "))
	}
	return strings.Join(parts, "|")
}

func parseStatusLine(line string) (Status, error) {
	record, err := decodeRecord(strings.TrimPrefix(line, statusPrefix))
	if err != nil {
		return Status{}, err
	}

	id, hasID := record.GetInt("id")
	if !hasID {
		return Status{}, NewError(MalformedLineError, "status line without id: "+strconv.Quote(line))
	}
	status := Status{ID: id, Msg: record.getString("msg")}
	if record.Len() > 2 {
		status.Extra = record
	}
	return status, nil
}

func decodeNotification(line string) (string, *Record, error) {
	verbEnd := strings.IndexByte(line, ' ')
	if verbEnd < 0 {
		verbEnd = len(line)
	}
	verb := line[:verbEnd]
	record, err := decodeRecord(line[verbEnd:])
	if err != nil {
		return "", nil, err
	}
	return verb, record, nil
}

type lineKind int

const (
	lineData lineKind = iota
	lineStatus
	lineNotification
)

// classifyLine inspects the leading token shape only; the caller decodes
// the payload and handles MalformedLineError by dropping the line.
func classifyLine(line string) lineKind {
	switch {
	case line == statusPrefix || strings.HasPrefix(line, statusPrefix+" "):
		return lineStatus
	case strings.HasPrefix(line, notifyPrefix):
		return lineNotification
	default:
		return lineData
	}
}
