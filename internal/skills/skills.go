// Package skills loads markdown skill files from the project and
// selects the ones relevant to a user turn. A skill is a markdown body
// with YAML frontmatter naming it and listing trigger keywords.
package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// Skill is one parsed skill file.
type Skill struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Keywords    []string `yaml:"keywords,omitempty"`

	// Always injects the skill into every session regardless of
	// keywords.
	Always bool `yaml:"always,omitempty"`

	Content string `yaml:"-"`
	Path    string `yaml:"-"`
}

// Validate checks the frontmatter fields.
func (s *Skill) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("skill name is required")
	}
	for _, r := range s.Name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_') {
			return fmt.Errorf("skill name must be lowercase alphanumeric with hyphens: %q", s.Name)
		}
	}
	return nil
}

// Parse parses skill file content.
func Parse(data []byte, path string) (*Skill, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var skill Skill
	if err := yaml.Unmarshal(frontmatter, &skill); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if err := skill.Validate(); err != nil {
		return nil, err
	}

	skill.Content = strings.TrimSpace(string(body))
	skill.Path = path
	return &skill, nil
}

func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var front []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			closed = true
			break
		}
		front = append(front, line)
	}
	if !closed {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var body []string
	for scanner.Scan() {
		body = append(body, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return []byte(strings.Join(front, "\n")), []byte(strings.Join(body, "\n")), nil
}

// Library holds the project's parsed skills.
type Library struct {
	skills []*Skill
}

// maxMatchedSkills caps keyword-matched injections per turn. Always
// skills do not count against the cap.
const maxMatchedSkills = 3

// Load parses every .md file under dir. A missing directory is an
// empty library; individual parse failures skip the file.
func Load(dir string) (*Library, error) {
	lib := &Library{}
	if dir == "" {
		return lib, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		skill, err := Parse(data, path)
		if err != nil {
			return nil
		}
		lib.skills = append(lib.skills, skill)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(lib.skills, func(i, j int) bool { return lib.skills[i].Name < lib.skills[j].Name })
	return lib, nil
}

// All returns every loaded skill.
func (l *Library) All() []*Skill {
	return l.skills
}

// Match returns the skills to inject for one user turn: every Always
// skill plus up to maxMatchedSkills whose keywords appear in the text.
func (l *Library) Match(text string) []*Skill {
	lowered := strings.ToLower(text)

	var out []*Skill
	matched := 0
	for _, skill := range l.skills {
		if skill.Always {
			out = append(out, skill)
			continue
		}
		if matched >= maxMatchedSkills {
			continue
		}
		for _, kw := range skill.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(lowered, kw) {
				out = append(out, skill)
				matched++
				break
			}
		}
	}
	return out
}
