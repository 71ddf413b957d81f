package main

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"capsd/internal/api"
)

var listItemRegex = regexp.MustCompile(`^\s*[-*]\s+(.*)$`)

func parseMarkdown(input string) (map[string]any, []string, error) {
	frontMatter := map[string]any{}
	content := input

	lines := strings.Split(input, "\n")
	if len(lines) >= 3 && strings.TrimSpace(lines[0]) == "---" {
		end := -1
		for i := 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "---" {
				end = i
				break
			}
		}
		if end == -1 {
			return nil, nil, fmt.Errorf("front matter not closed")
		}
		frontText := strings.Join(lines[1:end], "\n")
		if err := yaml.Unmarshal([]byte(frontText), &frontMatter); err != nil {
			return nil, nil, err
		}
		content = strings.Join(lines[end+1:], "\n")
	}

	items := []string{}
	for _, line := range strings.Split(content, "\n") {
		match := listItemRegex.FindStringSubmatch(line)
		if len(match) == 2 {
			item := strings.TrimSpace(match[1])
			if item != "" {
				items = append(items, item)
			}
		}
	}

	return frontMatter, items, nil
}

func frontMatterToRequest(frontMatter map[string]any) (api.CreateMemoryRequest, error) {
	req := api.CreateMemoryRequest{}

	if value, ok := frontMatter["kind"].(string); ok {
		req.Kind = value
	}
	if value, ok := frontMatter["content_type"].(string); ok {
		req.ContentType = value
	}
	if value, ok := frontMatter["tags"]; ok {
		req.Tags = toStringSlice(value)
	}
	if value, ok := frontMatter["custom"].(map[string]any); ok {
		req.Custom = value
	}

	return req, nil
}

func toStringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return splitCommaList(v)
	}
	return nil
}
