package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"codetree/internal/forge"
	"codetree/internal/site"
	"codetree/internal/store"
)

// optionKeys are the keys the options command accepts: the defaulted
// preferences, the per-site tokens and the content theme.
func optionKeys() []string {
	keys := slices.Collect(maps.Keys(store.Defaults))
	for _, k := range site.Kinds {
		if tk := forge.TokenKey(k); tk != "" && !slices.Contains(keys, tk) {
			keys = append(keys, tk)
		}
	}
	keys = append(keys, store.KeyTheme, store.KeyLastVersion)
	slices.Sort(keys)
	return slices.Compact(keys)
}

func isSecret(key string) bool { return strings.HasSuffix(key, "Token") }

func newOptionsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Read and change sidebar preferences",
		Long: `Read and change the preferences the settings panel edits. Changes made
here reach a running codetree immediately.`,
	}

	open := func() (*store.SQLite, error) {
		cfg, err := loadConfig(flags)
		if err != nil {
			return nil, err
		}
		return store.OpenSQLite(cfg.StorePath)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every option with its current value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := open()
			if err != nil {
				return err
			}
			defer st.Close()
			stored, err := st.All(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, k := range optionKeys() {
				v, ok := stored[k]
				if !ok {
					v = store.Defaults[k]
				}
				fmt.Fprintf(out, "%-12s %s\n", k, display(k, v))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one option",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkKey(args[0]); err != nil {
				return err
			}
			st, err := open()
			if err != nil {
				return err
			}
			defer st.Close()
			v, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), display(args[0], v))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one option",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkKey(args[0]); err != nil {
				return err
			}
			v, err := parseValue(args[0], args[1])
			if err != nil {
				return err
			}
			st, err := open()
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Set(cmd.Context(), args[0], v)
		},
	})
	return cmd
}

func checkKey(key string) error {
	if !slices.Contains(optionKeys(), key) {
		return fmt.Errorf("unknown option %q (known: %s)", key, strings.Join(optionKeys(), ", "))
	}
	return nil
}

// parseValue reads value as a YAML scalar so "true" and "320" become a bool
// and an int. The value must have the type of the option's default.
func parseValue(key, value string) (any, error) {
	def, hasDefault := store.Defaults[key]
	if !hasDefault {
		return value, nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(value), &v); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", value, err)
	}
	switch def.(type) {
	case bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case int:
		if n, ok := v.(int); ok {
			return n, nil
		}
	case string:
		if key == store.KeyDirection && value != "left" && value != "right" {
			return nil, fmt.Errorf("option %s is left or right, got %q", key, value)
		}
		return value, nil
	}
	return nil, fmt.Errorf("option %s takes a %T, got %q", key, def, value)
}

func display(key string, v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprint(v)
	if isSecret(key) && s != "" {
		return strings.Repeat("*", min(len(s), 8))
	}
	return s
}
