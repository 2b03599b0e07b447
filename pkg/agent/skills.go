package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nanobot-run/nanobot/pkg/logger"
)

// frontmatterDelimiter opens and closes a SKILL.md's YAML header.
const frontmatterDelimiter = "---"

// skillFrontmatter is the YAML header of a SKILL.md: a one-line
// description for the catalogue, and whether the skill's full text should
// always be inlined instead of summarized.
type skillFrontmatter struct {
	Description string `yaml:"description"`
	Always      bool   `yaml:"always"`
}

// skillMeta is one discovered skill: its directory name, parsed
// frontmatter, and the markdown body below it.
type skillMeta struct {
	name string
	meta skillFrontmatter
	body string
}

// SkillsLoader discovers `<workspace>/skills/{name}/SKILL.md` files.
type SkillsLoader struct {
	workspace string
}

// NewSkillsLoader points a skills loader at workspace/skills.
func NewSkillsLoader(workspace string) *SkillsLoader {
	return &SkillsLoader{workspace: workspace}
}

func (s *SkillsLoader) list() []skillMeta {
	dir := filepath.Join(s.workspace, "skills")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var skills []skillMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name(), "SKILL.md")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		skills = append(skills, parseSkillFile(e.Name(), string(data)))
	}
	return skills
}

// parseSkillFile splits off the "---"-delimited YAML frontmatter and
// unmarshals it. A file with no frontmatter, or with YAML that fails to
// parse, still loads as a bare-body skill: a malformed header shouldn't
// make a skill vanish from the catalogue.
func parseSkillFile(name, content string) skillMeta {
	sk := skillMeta{name: name, body: content}

	header, body, ok := splitFrontmatter(content)
	if !ok {
		return sk
	}
	sk.body = body

	if err := yaml.Unmarshal([]byte(header), &sk.meta); err != nil {
		logger.WarnCF("skills", "bad frontmatter, loading skill without it", map[string]interface{}{
			"skill": name,
			"error": err.Error(),
		})
	}
	return sk
}

// splitFrontmatter returns the YAML between the opening and closing
// delimiters and the body after. ok is false when the file doesn't open
// with a delimiter or never closes it.
func splitFrontmatter(content string) (header, body string, ok bool) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterDelimiter {
		return "", "", false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelimiter {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), true
		}
	}
	return "", "", false
}

// BuildSkillsSummary renders a catalogue line per skill plus, for any
// marked "always: true", its full body inlined immediately below.
func (s *SkillsLoader) BuildSkillsSummary() string {
	skills := s.list()
	if len(skills) == 0 {
		return ""
	}

	var catalogue, always []string
	for _, sk := range skills {
		desc := sk.meta.Description
		if desc == "" {
			desc = "(no description)"
		}
		catalogue = append(catalogue, fmt.Sprintf("- **%s**: %s", sk.name, desc))
		if sk.meta.Always {
			always = append(always, fmt.Sprintf("### %s\n\n%s", sk.name, strings.TrimSpace(sk.body)))
		}
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(catalogue, "\n"))
	if len(always) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(strings.Join(always, "\n\n"))
	}
	return sb.String()
}
