package builtin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/tool"
)

// LoadToolCategoryName is the name of the category loading tool.
const LoadToolCategoryName = "load_tool_category"

type loadCategoryArgs struct {
	Categories []string `json:"categories" description:"Category names to load"`
}

// LoadToolCategory returns the tool that makes categories of catalog
// available for the rest of the run. Unknown names fail the whole call.
func LoadToolCategory(catalog *tool.Catalog) tool.Tool {
	return tool.NewFunctionToolFromStruct(LoadToolCategoryName,
		"Load one or more tool categories so their tools become available. Call it before using a tool outside the core set.",
		loadCategoryArgs{},
		func(tc *core.ToolContext, raw map[string]any) (any, error) {
			args, err := decode[loadCategoryArgs](raw)
			if err != nil {
				return nil, err
			}

			cats, err := catalog.Get(tc.Context())
			if err != nil {
				return nil, err
			}

			byName := make(map[string]tool.CategoryInfo, len(cats))
			for _, c := range cats {
				byName[c.Name] = c
			}

			var unknown []string
			for _, name := range args.Categories {
				if _, ok := byName[name]; !ok {
					unknown = append(unknown, name)
				}
			}
			if len(unknown) > 0 {
				known := make([]string, 0, len(byName))
				for n := range byName {
					known = append(known, n)
				}
				sort.Strings(known)

				return nil, tool.NewToolError(LoadToolCategoryName,
					fmt.Sprintf("unknown categories %s (available: %s)", strings.Join(unknown, ", "), strings.Join(known, ", ")),
					tool.CodeValidation)
			}

			rc := tc.RequestContext()

			var b strings.Builder
			for _, name := range args.Categories {
				info := byName[name]
				if !rc.LoadCategory(name) {
					fmt.Fprintf(&b, "Category %s already loaded.\n", name)
					continue
				}

				tc.Logger().Info("tool.category.loaded", "category", name, "tools", len(info.Tools))
				fmt.Fprintf(&b, "Loaded %s: %s\n", name, strings.Join(info.Tools, ", "))
			}

			return strings.TrimSuffix(b.String(), "\n"), nil
		},
		func(o *tool.FunctionOptions) { o.ReadOnly = true },
	)
}
