package patch

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/getpup/pupdeploy"
	"gopkg.in/yaml.v3"
)

const (
	upMarker   = "-- +up"
	downMarker = "-- +down"
)

// Parse extracts the up and down scripts from the content of a patch file.
//
// The format follows the file extension:
//   - .sql files hold an "-- +up" section and an optional "-- +down" section.
//     A file without markers is entirely up script.
//   - .yaml and .yml files hold a mapping with "up" and "down" keys.
func Parse(name string, content []byte) (up, down string, err error) {
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".sql":
		return parseSQL(content)
	case ".yaml", ".yml":
		return parseYAML(content)
	default:
		return "", "", fmt.Errorf("%w: unsupported patch format %q", pupdeploy.ErrPatchValidation, ext)
	}
}

func parseSQL(content []byte) (string, string, error) {
	var (
		up, down       strings.Builder
		current        *strings.Builder
		seenUp, seenDn bool
		preamble       []string
	)

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch strings.ToLower(strings.TrimSpace(line)) {
		case upMarker:
			if seenUp {
				return "", "", fmt.Errorf("%w: duplicate %q marker", pupdeploy.ErrPatchValidation, upMarker)
			}
			seenUp = true
			current = &up
			continue
		case downMarker:
			if seenDn {
				return "", "", fmt.Errorf("%w: duplicate %q marker", pupdeploy.ErrPatchValidation, downMarker)
			}
			seenDn = true
			current = &down
			continue
		}

		if current == nil {
			preamble = append(preamble, line)
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("read patch: %w", err)
	}

	if !seenUp && !seenDn {
		return strings.TrimSpace(strings.Join(preamble, "\n")), "", nil
	}

	for _, line := range preamble {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
			return "", "", fmt.Errorf("%w: statement outside of an up or down section", pupdeploy.ErrPatchValidation)
		}
	}

	return strings.TrimSpace(up.String()), strings.TrimSpace(down.String()), nil
}

type yamlPatch struct {
	Up   string `yaml:"up"`
	Down string `yaml:"down"`
}

func parseYAML(content []byte) (string, string, error) {
	var doc yamlPatch

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return "", "", fmt.Errorf("%w: %v", pupdeploy.ErrPatchValidation, err)
	}

	return strings.TrimSpace(doc.Up), strings.TrimSpace(doc.Down), nil
}
