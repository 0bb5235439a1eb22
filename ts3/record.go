package ts3

import "strconv"

// Record is one server-side entity within a reply or notification: an
// ordered mapping from field name to unescaped string value. Iteration and
// re-encoding preserve the order in which fields were first set.
type Record struct {
	keys   []string
	fields map[string]string
}

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return &Record{fields: make(map[string]string)}
}

// Set stores a field value, keeping the original position of an existing key.
func (record *Record) Set(key, value string) *Record {
	if record.fields == nil {
		record.fields = make(map[string]string)
	}
	if _, exists := record.fields[key]; !exists {
		record.keys = append(record.keys, key)
	}
	record.fields[key] = value
	return record
}

// SetInt stores an integer field value.
func (record *Record) SetInt(key string, value int) *Record {
	return record.Set(key, strconv.Itoa(value))
}

// Get returns a field value and whether the field is present.
func (record *Record) Get(key string) (string, bool) {
	if record == nil || record.fields == nil {
		return "", false
	}
	value, exists := record.fields[key]
	return value, exists
}

// GetInt returns a field parsed as an integer. Missing or non-numeric
// fields report false.
func (record *Record) GetInt(key string) (int, bool) {
	value, exists := record.Get(key)
	if !exists {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// Keys returns the field names in insertion order.
func (record *Record) Keys() []string {
	if record == nil {
		return nil
	}
	keys := make([]string, len(record.keys))
	copy(keys, record.keys)
	return keys
}

// Len returns the number of fields.
func (record *Record) Len() int {
	if record == nil {
		return 0
	}
	return len(record.keys)
}

func (record *Record) getIntDefault(key string, fallback int) int {
	if value, exists := record.GetInt(key); exists {
		return value
	}
	return fallback
}

func (record *Record) getString(key string) string {
	value, _ := record.Get(key)
	return value
}

func (record *Record) equal(other *Record) bool {
	if record.Len() != other.Len() {
		return false
	}
	for index, key := range record.keys {
		if other.keys[index] != key {
			return false
		}
		if record.fields[key] != other.fields[key] {
			return false
		}
	}
	return true
}
