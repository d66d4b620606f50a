package memory

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const frontMatterDelimiter = "---"

// LongTermMeta is the YAML front-matter kept at the top of MEMORY.md.
type LongTermMeta struct {
	UpdatedAt time.Time `yaml:"updated_at"`
	Revision  int       `yaml:"revision"`
}

// parseLongTerm splits a long-term file into its front-matter and body.
// Files without front-matter are hand-written and returned as body only.
func parseLongTerm(raw []byte) (LongTermMeta, string, error) {
	var meta LongTermMeta
	s := string(raw)
	if !strings.HasPrefix(s, frontMatterDelimiter+"\n") {
		return meta, s, nil
	}
	rest := s[len(frontMatterDelimiter)+1:]
	idx := strings.Index(rest, "\n"+frontMatterDelimiter)
	if idx == -1 {
		return meta, "", fmt.Errorf("memory: unclosed front-matter block")
	}
	yamlBlock := rest[:idx]
	body := rest[idx+len("\n"+frontMatterDelimiter):]
	if strings.HasPrefix(body, "\n\n") {
		body = body[2:]
	} else if strings.HasPrefix(body, "\n") {
		body = body[1:]
	}

	if err := yaml.Unmarshal([]byte(yamlBlock), &meta); err != nil {
		return meta, "", fmt.Errorf("memory: front-matter parse error: %w", err)
	}
	return meta, body, nil
}

func serializeLongTerm(meta LongTermMeta, body string) ([]byte, error) {
	yamlBytes, err := yaml.Marshal(&meta)
	if err != nil {
		return nil, fmt.Errorf("memory: serialize front-matter: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(frontMatterDelimiter + "\n")
	sb.Write(yamlBytes)
	sb.WriteString(frontMatterDelimiter + "\n\n")
	sb.WriteString(body)
	return []byte(sb.String()), nil
}
