package filesystem

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var headingRe = regexp.MustCompile(`(?m)^#\s+(.+?)\s*#*\s*$`)

// frontMatter is the YAML header a note may start with
type frontMatter struct {
	Title     string              `yaml:"title"`
	Tags      stringList          `yaml:"tags"`
	Aliases   stringList          `yaml:"aliases"`
	Parent    string              `yaml:"parent"`
	Type      string              `yaml:"type"`
	Summary   string              `yaml:"summary"`
	Relations map[string][]string `yaml:"relations"`
}

// stringList accepts a YAML sequence or a single scalar
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = nil
		for part := range strings.SplitSeq(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				*l = append(*l, part)
			}
		}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a list or a string", node.Line)
	}
}

// splitFrontMatter separates a leading --- delimited YAML header from the
// body. Content without a header is all body.
func splitFrontMatter(content []byte) (frontMatter, string, error) {
	var fm frontMatter
	text := string(bytes.TrimPrefix(content, []byte("\ufeff")))
	if !strings.HasPrefix(text, "---\n") && !strings.HasPrefix(text, "---\r\n") {
		return fm, text, nil
	}

	rest := text[strings.Index(text, "\n")+1:]
	end := -1
	for offset := 0; offset < len(rest); {
		line := rest[offset:]
		next := strings.IndexByte(line, '\n')
		if next >= 0 {
			line = line[:next]
		}
		if strings.TrimRight(line, "\r") == "---" {
			end = offset
			break
		}
		if next < 0 {
			break
		}
		offset += next + 1
	}
	if end < 0 {
		return fm, text, nil
	}

	header := rest[:end]
	body := rest[end:]
	body = body[min(len(body), strings.IndexByte(body+"\n", '\n')+1):]

	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, body, fmt.Errorf("front matter: %w", err)
	}
	return fm, body, nil
}

// firstHeading returns the text of the first level one heading
func firstHeading(body string) string {
	if m := headingRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
