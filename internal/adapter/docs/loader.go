// Package docs loads the reference text injected into FAQ agent requests.
package docs

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/infra/logger"
)

// maxDocsSize caps how much reference text is read into memory.
const maxDocsSize = 8 * 1024 * 1024

// Load reads the documentation file at path. A missing or unreadable file
// yields an empty context so the FAQ agent still runs, just without docs.
func Load(path string, log *slog.Logger) domain.SupportingContext {
	log = logger.OrDiscard(log)
	if path == "" {
		log.Warn("no documentation path configured, FAQ agent will run without context")
		return domain.SupportingContext{}
	}

	data, err := readCapped(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("documentation file not found, FAQ agent will run without context", "path", path)
		} else {
			log.Error("failed to read documentation file", "path", path, "error", err)
		}
		return domain.SupportingContext{}
	}
	if !utf8.Valid(data) {
		log.Warn("documentation file is not valid UTF-8, invalid bytes replaced", "path", path)
	}

	sc := domain.SupportingContext{Text: strings.ToValidUTF8(string(data), "\uFFFD"), Source: path}
	log.Info("documentation loaded", "path", path, "chars", sc.Len())
	return sc
}

func readCapped(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, domain.NewDomainError("docs.Load", domain.ErrInvalidInput, path+" is a directory")
	}
	if info.Size() > maxDocsSize {
		return nil, domain.NewDomainError("docs.Load", domain.ErrInvalidInput, "documentation file exceeds 8 MiB")
	}
	return os.ReadFile(path)
}
