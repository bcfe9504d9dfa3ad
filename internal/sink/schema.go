package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ColumnType is the declared shape of a column value.
type ColumnType string

const (
	ColumnString  ColumnType = "string"
	ColumnNumeric ColumnType = "numeric"
	ColumnBoolean ColumnType = "boolean"
	ColumnJSON    ColumnType = "json"
)

type Column struct {
	Name string `yaml:"name"`
	// Field is the record key to read; defaults to Name. Dotted paths
	// address nested objects, bare names are searched depth-first.
	Field    string     `yaml:"field"`
	Type     ColumnType `yaml:"type"`
	Nullable bool       `yaml:"nullable"`
}

type Table struct {
	ID      string   `yaml:"-"`
	Name    string   `yaml:"table"`
	Keys    []string `yaml:"keys"`
	Columns []Column `yaml:"columns"`
}

// Schema maps a table identifier used by the sources to its storage layout.
type Schema map[string]*Table

func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return ParseSchema(data)
}

func ParseSchema(data []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	for id, t := range s {
		if t == nil {
			return nil, fmt.Errorf("schema %s: empty table", id)
		}
		t.ID = id
		if t.Name == "" {
			t.Name = id
		}
		if len(t.Columns) == 0 {
			return nil, fmt.Errorf("schema %s: no columns", id)
		}
		for i := range t.Columns {
			c := &t.Columns[i]
			if c.Name == "" {
				return nil, fmt.Errorf("schema %s: column %d has no name", id, i)
			}
			if c.Field == "" {
				c.Field = c.Name
			}
			switch c.Type {
			case "":
				c.Type = ColumnString
			case ColumnString, ColumnNumeric, ColumnBoolean, ColumnJSON:
			default:
				return nil, fmt.Errorf("schema %s: column %s has unsupported type %q", id, c.Name, c.Type)
			}
		}
	}
	return s, nil
}

// Row builds the column map for one record. A missing value in a
// non-nullable column is a parsing error.
func (t *Table) Row(rec record.Record) (map[string]any, error) {
	row := make(map[string]any, len(t.Columns))
	for _, c := range t.Columns {
		v, ok := lookupField(rec, c.Field)
		if !ok || v == nil {
			if !c.Nullable {
				return nil, types.Errorf(types.KindParsing, "%s.%s: missing value for %s", t.Name, c.Name, c.Field)
			}
			row[c.Name] = nil
			continue
		}
		cv, err := convert(c, v)
		if err != nil {
			return nil, types.Errorf(types.KindParsing, "%s.%s: %w", t.Name, c.Name, err)
		}
		row[c.Name] = cv
	}
	return row, nil
}

// Key joins the key column values, for de-duplication ids.
func (t *Table) Key(rec record.Record) string {
	parts := make([]string, 0, len(t.Keys))
	for _, k := range t.Keys {
		field := k
		for _, c := range t.Columns {
			if c.Name == k {
				field = c.Field
				break
			}
		}
		v, _ := lookupField(rec, field)
		parts = append(parts, record.Text(v))
	}
	return strings.Join(parts, ":")
}

func lookupField(rec record.Record, field string) (any, bool) {
	if strings.Contains(field, ".") {
		return rec.Lookup(field)
	}
	return rec.Find(field)
}

func convert(c Column, v any) (any, error) {
	switch c.Type {
	case ColumnNumeric:
		d, err := decimal.NewFromString(record.Text(v))
		if err != nil {
			return nil, fmt.Errorf("not a number: %w", err)
		}
		return d, nil
	case ColumnBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("not a boolean: %s", record.Text(v))
		}
		return b, nil
	case ColumnJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return record.Text(v), nil
	}
}
