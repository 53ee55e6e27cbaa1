// Package cli is the codetree command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codetree/internal/config"
)

var version = "dev"

// SetVersion sets the version reported by --version and shown in the sidebar.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

type rootFlags struct {
	config string
	site   string
	remote string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "codetree [url | dir]",
		Short: "Browse a hosted Git repository as a file tree",
		Long: `codetree shows the file tree of a GitHub, GitLab, Gitee, Gitea, Gogs or
Gist repository in a sidebar next to the file you are reading.

Pass a repository page URL, or a local checkout to open the page of its
current branch and directory. With no argument the current directory is used.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) == 1 {
				target = args[0]
			}
			return run(cmd, flags, target)
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flags.config, "config", config.DefaultPath(), "config file path")
	cmd.Flags().StringVar(&flags.site, "site", "", "force the site kind (github, gitlab, gitee, gitea, gogs, gist)")
	cmd.Flags().StringVar(&flags.remote, "remote", "", "git remote to follow for a local checkout (default origin)")

	cmd.AddCommand(newOptionsCmd(flags))
	cmd.AddCommand(newConfigCmd(flags))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the codetree version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return cmd
}

// loadConfig reads and validates the config file named by the flags.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", flags.config, err)
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// Main runs the command line and exits on failure.
func Main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
