package ts3

import (
	"strconv"
	"strings"
)

// Command is one query command under construction: a verb, key=value
// arguments, bare option flags, and optional multi-entity groups for bulk
// operations. A Command exists for the duration of a single request.
type Command struct {
	verb    string
	args    []commandArg
	flags   []string
	records []*Record
}

type commandArg struct {
	key   string
	value string
}

// NewCommand returns a Command for the given verb.
func NewCommand(verb string) *Command {
	return &Command{verb: verb}
}

// Verb returns the command verb.
func (cmd *Command) Verb() string { return cmd.verb }

// Set appends a key=value argument. The value is escaped on encode.
func (cmd *Command) Set(key, value string) *Command {
	cmd.args = append(cmd.args, commandArg{key: key, value: value})
	return cmd
}

// SetInt appends an integer key=value argument.
func (cmd *Command) SetInt(key string, value int) *Command {
	return cmd.Set(key, strconv.Itoa(value))
}

// SetFlag appends a bare option flag, encoded as -name.
func (cmd *Command) SetFlag(name string) *Command {
	cmd.flags = append(cmd.flags, strings.TrimPrefix(name, "-"))
	return cmd
}

// AddRecord appends one entity to the command's multi-entity group. The
// group is encoded as pipe-separated key=value clusters directly after the
// verb, the convention bulk commands such as clientkick use.
func (cmd *Command) AddRecord(record *Record) *Command {
	cmd.records = append(cmd.records, record)
	return cmd
}

func (cmd *Command) encode() string {
	parts := []string{cmd.verb}
	if len(cmd.records) > 0 {
		parts = append(parts, EncodeRecords(cmd.records))
	}
	for _, arg := range cmd.args {
		parts = append(parts, arg.key+"="+Escape(arg.value))
	}
	for _, flag := range cmd.flags {
		parts = append(parts, "-"+flag)
	}
	return strings.Join(parts, " ")
}
