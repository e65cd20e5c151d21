// Package command implements the Command Parser (C9): a first-match-wins
// regex pattern table that recognizes a fixed set of structured commands
// before text ever reaches intent classification, grounded on
// original_source/utils/command_parser.py.
package command

import (
	"regexp"
	"strings"
)

// Type identifies a recognized command shape.
type Type string

const (
	TypeHelp            Type = "help"
	TypeExit            Type = "exit"
	TypeTime            Type = "time"
	TypeDate            Type = "date"
	TypeTimezone        Type = "timezone"
	TypeGitHubInfo      Type = "github_info"
	TypeGitHubIssues    Type = "github_issues"
	TypeGitHubCommit    Type = "github_commit"
	TypeNotionDocument  Type = "notion_document"
	TypeNotionJournal   Type = "notion_journal"
	TypeAskModel        Type = "ask_model"
	TypeWorkflow        Type = "workflow"
	TypeContentCreation Type = "content_creation"
	TypeCodeGeneration  Type = "code_generation"
	TypeSystemStatus    Type = "system_status"
	TypeUnknown         Type = "unknown"
)

// Command is the parsed result: Type plus whatever named parameters
// that command shape carries (repo, model, query, title, ...).
type Command struct {
	Type         Type
	OriginalText string
	Params       map[string]string
}

type patternEntry struct {
	cmdType Type
	pattern *regexp.Regexp
	extract func(groups []string) map[string]string
}

func trimmedGroup(groups []string, idx int) string {
	if idx >= len(groups) {
		return ""
	}
	return strings.TrimSpace(groups[idx])
}

// patternTable is evaluated top-to-bottom, first match wins, mirroring
// command_parser.py's command_patterns dict iteration plus its
// dedicated per-type handlers.
var patternTable = []patternEntry{
	{TypeHelp, regexp.MustCompile(`(?i)^(help|commands|what can you do|show commands|available commands)`), nil},
	{TypeExit, regexp.MustCompile(`(?i)^(exit|quit|bye|goodbye)\b`), nil},
	{TypeTimezone, regexp.MustCompile(`(?i)^what(?:'s| is) the time (?:like )?in ([a-zA-Z\s]+)`), func(g []string) map[string]string {
		return map[string]string{"location": titleCase(trimmedGroup(g, 1))}
	}},
	{TypeTimezone, regexp.MustCompile(`(?i)^what time is it in ([a-zA-Z\s]+)`), func(g []string) map[string]string {
		return map[string]string{"location": titleCase(trimmedGroup(g, 1))}
	}},
	{TypeTimezone, regexp.MustCompile(`(?i)^(?:current )?time (?:in|at) ([a-zA-Z\s]+)`), func(g []string) map[string]string {
		return map[string]string{"location": titleCase(trimmedGroup(g, 1))}
	}},
	{TypeTime, regexp.MustCompile(`(?i)^what(?:'s| is) the time(?: now)?$`), nil},
	{TypeTime, regexp.MustCompile(`(?i)^(current time|time now)$`), nil},
	{TypeDate, regexp.MustCompile(`(?i)^what(?:'s| is) (?:the|today's) date`), nil},
	{TypeDate, regexp.MustCompile(`(?i)^what day is (?:it|today)`), nil},
	{TypeDate, regexp.MustCompile(`(?i)^(current date|today's date)$`), nil},
	{TypeGitHubIssues, regexp.MustCompile(`(?i)^github\s+([^/\s]+/[^/\s]+)\s+issues`), func(g []string) map[string]string {
		return map[string]string{"repo": trimmedGroup(g, 1)}
	}},
	{TypeGitHubIssues, regexp.MustCompile(`(?i)^(?:show|list|get|display)(?:\s+me)?\s+(?:issues|tickets|bugs)(?:\s+for)?\s+(?:github\.com/)?([^/\s]+/[^/\s]+)`), func(g []string) map[string]string {
		return map[string]string{"repo": trimmedGroup(g, 1)}
	}},
	{TypeGitHubCommit, regexp.MustCompile(`(?i)^github\s+([^/\s]+/[^/\s]+)\s+commit\s+([^\s]+)`), func(g []string) map[string]string {
		return map[string]string{"repo": trimmedGroup(g, 1), "file_path": trimmedGroup(g, 2)}
	}},
	{TypeGitHubCommit, regexp.MustCompile(`(?i)^(?:generate|create)(?:\s+a)?\s+commit(?:\s+message)?(?:\s+for)?\s+([^\s]+)(?:\s+in)?\s+(?:github\.com/)?([^/\s]+/[^/\s]+)`), func(g []string) map[string]string {
		return map[string]string{"file_path": trimmedGroup(g, 1), "repo": trimmedGroup(g, 2)}
	}},
	{TypeGitHubInfo, regexp.MustCompile(`(?i)^github\s+([^/\s]+/[^/\s]+)\s+info`), func(g []string) map[string]string {
		return map[string]string{"repo": trimmedGroup(g, 1)}
	}},
	{TypeGitHubInfo, regexp.MustCompile(`(?i)^(?:show|get|display)(?:\s+me)?\s+(?:info|information|details)(?:\s+about)?\s+(?:github\.com/)?([^/\s]+/[^/\s]+)`), func(g []string) map[string]string {
		return map[string]string{"repo": trimmedGroup(g, 1)}
	}},
	{TypeNotionJournal, regexp.MustCompile(`(?i)^notion\s+(?:journal|diary)`), nil},
	{TypeNotionJournal, regexp.MustCompile(`(?i)^create\s+(?:a)?\s*(?:notion)?\s*(?:journal|diary)(?:\s+entry)?`), nil},
	{TypeNotionDocument, regexp.MustCompile(`(?i)^notion\s+create\s+(?:document|doc)\s+(.+)`), func(g []string) map[string]string {
		return map[string]string{"title": titleCase(trimmedGroup(g, 1))}
	}},
	{TypeNotionDocument, regexp.MustCompile(`(?i)^create\s+(?:a)?\s*(?:notion)?\s*(?:document|doc)(?:\s+called)?\s+(.+)`), func(g []string) map[string]string {
		return map[string]string{"title": titleCase(trimmedGroup(g, 1))}
	}},
	{TypeAskModel, regexp.MustCompile(`(?i)^ask\s+([a-zA-Z0-9_-]+)\s+(.+)`), func(g []string) map[string]string {
		return map[string]string{"model": trimmedGroup(g, 1), "query": trimmedGroup(g, 2)}
	}},
	{TypeAskModel, regexp.MustCompile(`(?i)^(?:query|use)\s+([a-zA-Z0-9_-]+)(?:\s+to)?\s+(.+)`), func(g []string) map[string]string {
		return map[string]string{"model": trimmedGroup(g, 1), "query": trimmedGroup(g, 2)}
	}},
	{TypeWorkflow, regexp.MustCompile(`(?i)^workflow\s+(.+)`), func(g []string) map[string]string {
		return map[string]string{"description": trimmedGroup(g, 1)}
	}},
	{TypeWorkflow, regexp.MustCompile(`(?i)^(?:create|run|execute)(?:\s+a)?\s+workflow(?:\s+for)?\s+(.+)`), func(g []string) map[string]string {
		return map[string]string{"description": trimmedGroup(g, 1)}
	}},
	{TypeContentCreation, regexp.MustCompile(`(?i)^(?:write|create|generate|make)(?:\s+a)?\s+(?:blog\s+post|article)(?:\s+about)?\s+(.+)`), func(g []string) map[string]string {
		return map[string]string{"topic": trimmedGroup(g, 1)}
	}},
	{TypeCodeGeneration, regexp.MustCompile(`(?i)^(?:write|create|generate)(?:\s+some)?\s+code(?:\s+for)?\s+(.+)`), func(g []string) map[string]string {
		return map[string]string{"description": trimmedGroup(g, 1)}
	}},
	{TypeSystemStatus, regexp.MustCompile(`(?i)^(?:system|status|health)(?:\s+status)?$`), nil},
	{TypeSystemStatus, regexp.MustCompile(`(?i)^(?:how|what)(?:'s| is) the system(?:\s+status)?`), nil},
	{TypeSystemStatus, regexp.MustCompile(`(?i)^(?:check|show)(?:\s+the)?\s+(?:system|status)`), nil},
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
	}
	return strings.Join(words, " ")
}

// Parse matches text against the pattern table top-to-bottom and
// returns the first match. Text not matching any pattern resolves to
// TypeUnknown, signaling the caller to fall through to intent
// classification (spec.md §4.9).
func Parse(text string) Command {
	normalized := strings.TrimSpace(strings.ToLower(text))

	for _, entry := range patternTable {
		groups := entry.pattern.FindStringSubmatch(normalized)
		if groups == nil {
			continue
		}
		params := map[string]string{}
		if entry.extract != nil {
			params = entry.extract(groups)
		}
		return Command{Type: entry.cmdType, OriginalText: text, Params: params}
	}

	return Command{Type: TypeUnknown, OriginalText: text, Params: map[string]string{}}
}
