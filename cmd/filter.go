package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/svcreg/internal/filter"
	"github.com/zjrosen/svcreg/internal/log"
	"github.com/zjrosen/svcreg/internal/properties"
)

func newFilterCmd() *cobra.Command {
	var (
		props []string
		color bool
	)

	cmd := &cobra.Command{
		Use:   "filter <expression>",
		Short: "Parse a filter and optionally evaluate it",
		Long: `Parse an LDAP-style filter and print its canonical form.

With --props the filter is also evaluated against a dictionary built from
key=value pairs. Values are decoded as YAML scalars, so 3 is an integer,
true a boolean and [a, b] a list.`,
		Example: `  svcreg filter '(&(objectClass=Printer)(service.ranking>=5))'
  svcreg filter '(name=pr*)' --props name=printer --props rank=2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filter.Compile(args[0])
			if err != nil {
				log.Debug(log.CatFilter, "filter rejected", "text", args[0], "error", err)
				return err
			}

			out := cmd.OutOrStdout()
			if color {
				lipgloss.SetColorProfile(termenv.ANSI256)
				fmt.Fprintf(out, "canonical: %s\n", filter.Highlight(f.String()))
			} else {
				fmt.Fprintf(out, "canonical: %s\n", f.String())
			}

			if len(props) == 0 {
				return nil
			}
			dict, err := parseProps(props)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "properties: %s\n", dict)
			fmt.Fprintf(out, "match: %t\n", f.Match(dict))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&props, "props", "p", nil, "property as key=value (repeatable)")
	cmd.Flags().BoolVar(&color, "color", false, "highlight the canonical form")
	return cmd
}

// parseProps builds a dictionary from key=value pairs.
func parseProps(pairs []string) (*properties.Dictionary, error) {
	dict := properties.New()
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("property %q: expected key=value", pair)
		}
		value, err := decodeScalar(raw)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		dict.Put(key, value)
	}
	return dict, nil
}

func decodeScalar(raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	if _, isMap := v.(map[string]any); isMap {
		return raw, nil
	}
	return v, nil
}
