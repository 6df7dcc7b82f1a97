package provider

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FileSource reads record pages from payload files on disk in place of the
// network client. Time-window and rate-limit parameters do not apply; the file
// name indicates the record kind.
type FileSource struct {
	log zerolog.Logger
}

func NewFileSource(log zerolog.Logger) *FileSource {
	return &FileSource{log: log}
}

// Read expands the given files and directories, keeps the files whose name
// contains the record kind, and decodes each into pages. A file may hold a
// single payload object or an array of payload objects.
func (s *FileSource) Read(kind RecordKind, sources []string) ([]Page, error) {
	files, err := ExpandFiles(sources, kind)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %v", kind, sources)
	}

	var pages []Page
	for _, path := range files {
		s.log.Info().Str("kind", string(kind)).Str("file", path).Msg("reading payload file")
		filePages, err := readPayloadFile(path, kind)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		pages = append(pages, filePages...)
	}
	return pages, nil
}

// ExpandFiles resolves a mixed list of files and directories into the files
// whose name mentions the record kind. Directories are searched one level
// deep.
func ExpandFiles(sources []string, kind RecordKind) ([]string, error) {
	var files []string
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src, err)
		}
		if !info.IsDir() {
			if strings.Contains(filepath.Base(src), string(kind)) {
				files = append(files, src)
			}
			continue
		}
		matches, err := filepath.Glob(filepath.Join(src, "*"+string(kind)+"*"))
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src, err)
		}
		for _, m := range matches {
			if fi, err := os.Stat(m); err == nil && !fi.IsDir() {
				files = append(files, m)
			}
		}
	}
	return files, nil
}

func readPayloadFile(path string, kind RecordKind) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data = []byte(strings.TrimSpace(string(data)))
	var payloads []payload
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &payloads); err != nil {
			return nil, fmt.Errorf("decode payload array: %w", err)
		}
	} else {
		var pl payload
		if err := json.Unmarshal(data, &pl); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		payloads = append(payloads, pl)
	}

	pages := make([]Page, 0, len(payloads))
	for _, pl := range payloads {
		pages = append(pages, Page{Version: pl.Version, Records: pl.Data[kind]})
	}
	return pages, nil
}
