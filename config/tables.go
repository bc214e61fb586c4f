package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// LoadTables reads a table list file. JSON files may hold either a bare array
// or an object with a "tables" array; .yml/.yaml files the same shapes in yaml.
// A missing file yields an empty list.
func LoadTables(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(ErrTablesFileReadFailed, "failed to read tables file", err).AddContext("path", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return parseTablesYAML(path, data)
	default:
		return parseTablesJSON(path, data)
	}
}

func parseTablesJSON(path string, data []byte) ([]string, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New(ErrTablesFileParseFailed, "tables file is not valid JSON", nil).AddContext("path", path)
	}

	doc := gjson.ParseBytes(data)
	list := doc
	if !doc.IsArray() {
		list = doc.Get("tables")
		if !list.IsArray() {
			return nil, errors.New(ErrTablesFileParseFailed, `tables file must be an array or contain a "tables" array`, nil).AddContext("path", path)
		}
	}

	var tables []string
	for _, item := range list.Array() {
		if name := strings.TrimSpace(item.String()); name != "" {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

func parseTablesYAML(path string, data []byte) ([]string, error) {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return trimTables(list), nil
	}

	var doc struct {
		Tables []string `yaml:"tables"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.New(ErrTablesFileParseFailed, "failed to parse tables file", err).AddContext("path", path)
	}
	return trimTables(doc.Tables), nil
}

func trimTables(in []string) []string {
	var out []string
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ResolveTables picks the table list: explicit names first, then the config
// file list, then the tables file.
func (c *Config) ResolveTables(explicit []string) ([]string, error) {
	if tables := trimTables(explicit); len(tables) > 0 {
		return tables, nil
	}
	if tables := trimTables(c.Tables); len(tables) > 0 {
		return tables, nil
	}
	if c.TablesFile != "" {
		tables, err := LoadTables(c.TablesFile)
		if err != nil {
			return nil, err
		}
		if len(tables) > 0 {
			return tables, nil
		}
	}
	return nil, errors.New(ErrNoTablesConfigured, "no tables configured; use --tables, the tables config key or a tables file", nil)
}
