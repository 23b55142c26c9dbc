// Package delegate matches tasks to agents: extract skill requirements
// from a task, score the registered agent cards against them, pick the
// best candidate, and record the outcome in DELEGATION_HISTORY.json.
package delegate

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/claudeswarm/claudeswarm/internal/task"
)

// Importance tiers for extracted requirements. An explicit mention in
// the objective outranks a keyword hit, which outranks a file extension.
const (
	importanceExplicit  = 1.0
	importanceKeyword   = 0.7
	importanceExtension = 0.8
)

// Requirement is one skill a task needs, with how much it matters.
type Requirement struct {
	Skill              string  `json:"skill"`
	Importance         float64 `json:"importance"`
	MinimumProficiency float64 `json:"minimum_proficiency"`
}

// extensionSkills maps file extensions of a task's files to skills.
var extensionSkills = map[string][]string{
	".py":   {"python"},
	".go":   {"go"},
	".js":   {"javascript", "frontend"},
	".jsx":  {"javascript", "frontend"},
	".ts":   {"typescript", "frontend"},
	".tsx":  {"typescript", "frontend"},
	".rs":   {"rust"},
	".java": {"java"},
	".rb":   {"ruby"},
	".c":    {"c"},
	".cpp":  {"cpp"},
	".sql":  {"sql", "database"},
	".html": {"frontend"},
	".css":  {"frontend"},
	".sh":   {"shell"},
	".tf":   {"infrastructure"},
	".md":   {"documentation"},
}

// keywordSkills maps case-insensitive keywords in the objective and
// constraints to skills.
var keywordSkills = map[string][]string{
	"test":           {"testing"},
	"tests":          {"testing"},
	"testing":        {"testing"},
	"api":            {"api", "backend"},
	"endpoint":       {"api", "backend"},
	"database":       {"database"},
	"migration":      {"database"},
	"sql":            {"sql", "database"},
	"frontend":       {"frontend"},
	"ui":             {"frontend"},
	"css":            {"frontend"},
	"backend":        {"backend"},
	"server":         {"backend"},
	"auth":           {"security"},
	"authentication": {"security"},
	"security":       {"security"},
	"deploy":         {"devops"},
	"docker":         {"devops"},
	"kubernetes":     {"devops"},
	"performance":    {"performance"},
	"optimize":       {"performance"},
	"refactor":       {"refactoring"},
	"documentation":  {"documentation"},
	"docs":           {"documentation"},
	"readme":         {"documentation"},
}

// explicitSkillRe matches phrasing that names a skill outright, like
// "requires python" or "experience with kubernetes".
var explicitSkillRe = regexp.MustCompile(`(?i)\b(?:requires|needs|expertise in|experience with)\s+([a-z0-9+#._-]+)`)

// wordRe splits free text into candidate keywords.
var wordRe = regexp.MustCompile(`[a-z0-9+#]+`)

// ExtractSkills derives the skill requirements of a task. Duplicate
// skills keep their maximum importance; the result is sorted by
// importance descending, then by skill name for determinism.
func ExtractSkills(t task.Task) []Requirement {
	best := make(map[string]float64)
	bump := func(skill string, importance float64) {
		if importance > best[skill] {
			best[skill] = importance
		}
	}

	for _, f := range t.Files {
		for _, skill := range extensionSkills[strings.ToLower(filepath.Ext(f))] {
			bump(skill, importanceExtension)
		}
	}

	text := strings.ToLower(t.Objective + " " + strings.Join(t.Constraints, " "))
	for _, word := range wordRe.FindAllString(text, -1) {
		for _, skill := range keywordSkills[word] {
			bump(skill, importanceKeyword)
		}
	}

	for _, m := range explicitSkillRe.FindAllStringSubmatch(text, -1) {
		bump(strings.Trim(m[1], "._-"), importanceExplicit)
	}

	reqs := make([]Requirement, 0, len(best))
	for skill, importance := range best {
		reqs = append(reqs, Requirement{Skill: skill, Importance: importance})
	}
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].Importance != reqs[j].Importance {
			return reqs[i].Importance > reqs[j].Importance
		}
		return reqs[i].Skill < reqs[j].Skill
	})
	return reqs
}
