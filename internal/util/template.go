package util

import (
	"bytes"
	"fmt"
	"maps"
	"strings"
	"text/template"
	"text/template/parse"
)

// RenderTemplate expands {{ }} placeholders in a prompt with text/template.
// Missing keys render as empty strings.
func RenderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Option("missingkey=zero").Funcs(template.FuncMap{
		"default": func(defaultVal any, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join": func(sep string, items []string) string {
			return strings.Join(items, sep)
		},
		"bullets": func(items []string) string {
			var b strings.Builder
			for _, it := range items {
				fmt.Fprintf(&b, "- %s\n", it)
			}
			return b.String()
		},
	}).Parse(text)
	if err != nil {
		return "", err
	}

	filled := make(map[string]any, len(data))
	maps.Copy(filled, data)
	fillPrinted(tmpl.Tree.Root, filled)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, filled); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// fillPrinted sets every missing top-level key that starts an action
// pipeline to "". Keys only passed as function arguments stay nil.
func fillPrinted(node parse.Node, data map[string]any) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			fillPrinted(c, data)
		}
	case *parse.ActionNode:
		if n.Pipe == nil || len(n.Pipe.Decl) > 0 || len(n.Pipe.Cmds) == 0 {
			return
		}
		args := n.Pipe.Cmds[0].Args
		if len(args) != 1 {
			return
		}
		if f, ok := args[0].(*parse.FieldNode); ok && len(f.Ident) == 1 {
			if _, set := data[f.Ident[0]]; !set {
				data[f.Ident[0]] = ""
			}
		}
	case *parse.IfNode:
		fillPrinted(n.List, data)
		fillPrinted(n.ElseList, data)
	case *parse.RangeNode:
		fillPrinted(n.List, data)
		fillPrinted(n.ElseList, data)
	case *parse.WithNode:
		fillPrinted(n.List, data)
		fillPrinted(n.ElseList, data)
	}
}
