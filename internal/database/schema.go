package database

import (
	"embed"
	"sort"
	"strings"
)

//go:embed migrations/files/*.up.sql
var schemaFiles embed.FS

// Schema is the full current schema, assembled from the up migrations in
// order. Tests apply it directly to in-memory databases instead of running
// the migration machinery.
var Schema = buildSchema()

func buildSchema() string {
	entries, err := schemaFiles.ReadDir("migrations/files")
	if err != nil {
		panic("reading embedded schema: " + err.Error())
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		data, err := schemaFiles.ReadFile("migrations/files/" + name)
		if err != nil {
			panic("reading embedded schema: " + err.Error())
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String()
}
