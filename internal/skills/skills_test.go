package skills

import (
	"os"
	"path/filepath"
	"testing"
)

const revenueSkill = `---
name: revenue-definitions
description: How revenue metrics are defined in this project.
keywords: [revenue, arr, mrr]
---
ARR is computed from closed-won subscriptions only.`

const styleSkill = `---
name: house-style
description: Reporting style rules.
always: true
---
Round all figures to thousands.`

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseSkill(t *testing.T) {
	skill, err := Parse([]byte(revenueSkill), "revenue.md")
	if err != nil {
		t.Fatal(err)
	}
	if skill.Name != "revenue-definitions" {
		t.Errorf("name = %q", skill.Name)
	}
	if len(skill.Keywords) != 3 {
		t.Errorf("keywords = %v", skill.Keywords)
	}
	if skill.Content != "ARR is computed from closed-won subscriptions only." {
		t.Errorf("content = %q", skill.Content)
	}
}

func TestParseSkillRejectsMissingFrontmatter(t *testing.T) {
	if _, err := Parse([]byte("just markdown"), "x.md"); err == nil {
		t.Error("expected error for missing frontmatter")
	}
	if _, err := Parse([]byte("---\ndescription: no name\n---\nbody"), "x.md"); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := Parse([]byte("---\nname: Bad Name\n---\nbody"), "x.md"); err == nil {
		t.Error("expected error for invalid name")
	}
}

func TestLoadSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "revenue.md", revenueSkill)
	writeSkill(t, dir, "broken.md", "no frontmatter here")
	writeSkill(t, dir, "notes.txt", "not a skill")

	lib, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(lib.All()) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(lib.All()))
	}
}

func TestLoadMissingDirIsEmpty(t *testing.T) {
	lib, err := Load(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatal(err)
	}
	if len(lib.All()) != 0 {
		t.Errorf("expected empty library, got %d", len(lib.All()))
	}
}

func TestMatchByKeywordAndAlways(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "revenue.md", revenueSkill)
	writeSkill(t, dir, "style.md", styleSkill)

	lib, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	matched := lib.Match("What was our ARR last quarter?")
	names := map[string]bool{}
	for _, s := range matched {
		names[s.Name] = true
	}
	if !names["revenue-definitions"] {
		t.Error("keyword match missed revenue skill")
	}
	if !names["house-style"] {
		t.Error("always skill should be injected on every turn")
	}

	matched = lib.Match("List the tables in the warehouse")
	if len(matched) != 1 || matched[0].Name != "house-style" {
		t.Errorf("unrelated turn should only get always skills: %v", matched)
	}
}
