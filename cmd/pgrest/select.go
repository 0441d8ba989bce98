package pgrest

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/edgeflare/pgrest/pkg/postgrest"
	"github.com/edgeflare/pgrest/pkg/postgrest/selectexpr"
	"github.com/spf13/cobra"
)

func (a *app) selectCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "select <expression>",
		Short: "Compile a select expression",
		Long: `Parses a PostgREST select expression and prints its embedding tree,
the tree as json, or the encoded select parameter`,
		Example: `  pgrest select 'id, messages!channel_id!inner(id, username)'
  pgrest select -f params 'first_user:users!best_friends_first_user_fkey(*)'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := selectexpr.Parse(args[0])
			if err != nil {
				return err
			}
			return printTree(cmd.OutOrStdout(), tree, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json, params)")
	return cmd
}

func printTree(w io.Writer, tree selectexpr.Tree, format string) error {
	switch format {
	case "text":
		tree.Walk(func(path string, n selectexpr.Node) bool {
			indent := ""
			if path != "" {
				indent = strings.Repeat("  ", strings.Count(path, ".")+1)
			}
			fmt.Fprintln(w, indent+describe(n))
			return true
		})
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(viewTree(tree))
	case "params":
		_, err := fmt.Fprintln(w, postgrest.Encode(tree, postgrest.State{}).Encode())
		return err
	}
	return fmt.Errorf("unknown format %q", format)
}

func describe(n selectexpr.Node) string {
	switch n := n.(type) {
	case *selectexpr.Field:
		return n.String()
	case *selectexpr.Embed:
		var b strings.Builder
		if n.Spread {
			b.WriteString("...")
		}
		b.WriteString(n.Key())
		if n.Alias != "" {
			b.WriteString(" -> " + n.Target)
		}
		if n.Hint != "" {
			b.WriteString(" hint=" + n.Hint)
		}
		if n.Join != selectexpr.JoinDefault {
			b.WriteString(" join=" + n.Join.String())
		}
		return b.String()
	}
	return ""
}

type nodeView struct {
	Type      string     `json:"type"`
	Name      string     `json:"name,omitempty"`
	Target    string     `json:"target,omitempty"`
	Alias     string     `json:"alias,omitempty"`
	Cast      string     `json:"cast,omitempty"`
	Aggregate string     `json:"aggregate,omitempty"`
	Hint      string     `json:"hint,omitempty"`
	Join      string     `json:"join,omitempty"`
	Spread    bool       `json:"spread,omitempty"`
	Children  []nodeView `json:"children,omitempty"`
}

func viewTree(tree selectexpr.Tree) []nodeView {
	out := make([]nodeView, 0, len(tree))
	for _, n := range tree {
		switch n := n.(type) {
		case *selectexpr.Field:
			out = append(out, nodeView{
				Type:      "field",
				Name:      n.Name,
				Alias:     n.Alias,
				Cast:      n.Cast,
				Aggregate: n.Aggregate,
			})
		case *selectexpr.Embed:
			out = append(out, nodeView{
				Type:     "embed",
				Target:   n.Target,
				Alias:    n.Alias,
				Hint:     n.Hint,
				Join:     n.Join.String(),
				Spread:   n.Spread,
				Children: viewTree(n.Children),
			})
		}
	}
	return out
}
