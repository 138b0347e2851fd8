// Package curriculum holds the topic catalog and quiz question bank.
package curriculum

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	catalogFileName = "catalog.yaml"
	bankFileName    = "quizzes.yaml"
)

//go:embed data/*.yaml
var defaultData embed.FS

// Content is the immutable curriculum handed to the quiz engine and the
// progression tracker at construction.
type Content struct {
	Catalog *Catalog
	Bank    *Bank
}

// Load reads catalog.yaml and quizzes.yaml from dir. An empty dir loads the
// built-in Centsify curriculum.
func Load(dir string) (*Content, error) {
	if dir == "" {
		return LoadDefault()
	}
	return LoadFS(os.DirFS(dir))
}

// LoadDefault loads the built-in curriculum.
func LoadDefault() (*Content, error) {
	sub, err := fs.Sub(defaultData, "data")
	if err != nil {
		return nil, fmt.Errorf("opening built-in curriculum: %w", err)
	}
	return LoadFS(sub)
}

// LoadFS loads and validates the curriculum stored in fsys.
func LoadFS(fsys fs.FS) (*Content, error) {
	catalogData, err := fs.ReadFile(fsys, catalogFileName)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", catalogFileName, err)
	}
	if err := validateYAML(catalogValidator, catalogFileName, catalogData); err != nil {
		return nil, err
	}
	var cf catalogFile
	if err := yaml.Unmarshal(catalogData, &cf); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", catalogFileName, err)
	}
	catalog, err := NewCatalog(cf.Topics)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	bankData, err := fs.ReadFile(fsys, bankFileName)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", bankFileName, err)
	}
	if err := validateYAML(bankValidator, bankFileName, bankData); err != nil {
		return nil, err
	}
	var bf bankFile
	if err := yaml.Unmarshal(bankData, &bf); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", bankFileName, err)
	}
	bank, err := NewBank(catalog, bf.Quizzes, bf.Aliases)
	if err != nil {
		return nil, fmt.Errorf("loading question bank: %w", err)
	}

	for _, key := range bank.Orphans() {
		slog.Warn("question set matches no topic", "key", key)
	}
	slog.Info("curriculum loaded",
		"topics", catalog.Len(),
		"quizzes", len(bank.sets),
		"orphans", len(bank.orphans),
	)

	return &Content{Catalog: catalog, Bank: bank}, nil
}
