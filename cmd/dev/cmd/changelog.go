package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

const defaultChangelog = "CHANGELOG.md"

func chglogArgs(next, output, tag string) []string {
	var args []string
	if next != "" {
		args = append(args, "--next-tag", next)
	}
	if output == "" {
		output = defaultChangelog
	}
	args = append(args, "--output", output)
	if tag != "" {
		args = append(args, tag)
	}
	return args
}

func ChangelogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Generate or update CHANGELOG.md from git history",
		Long: `Generate CHANGELOG.md with git-chglog from conventional commits
(<type>[optional scope]: <description>).

Examples:
  dev changelog
  dev changelog --next v0.3.0
  dev changelog --tag v0.2.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			next, _ := cmd.Flags().GetString("next")
			output, _ := cmd.Flags().GetString("output")
			tag, _ := cmd.Flags().GetString("tag")

			if _, err := exec.LookPath("git-chglog"); err != nil {
				slog.Error("git-chglog not found in PATH, install it with: go install github.com/git-chglog/git-chglog/cmd/git-chglog@latest")
				return fmt.Errorf("git-chglog not installed: %w", err)
			}

			chglog := exec.CommandContext(cmd.Context(), "git-chglog", chglogArgs(next, output, tag)...)
			chglog.Stdout = os.Stdout
			chglog.Stderr = os.Stderr
			slog.Info("running git-chglog", "args", chglog.Args[1:])
			if err := chglog.Run(); err != nil {
				return fmt.Errorf("failed to generate changelog: %w", err)
			}
			slog.Info("changelog generated", "output", output)
			return nil
		},
	}
	cmd.Flags().String("next", "", "Next version tag (e.g., v1.2.0)")
	cmd.Flags().String("output", defaultChangelog, "Output file path")
	cmd.Flags().String("tag", "", "Generate changelog for specific tag")
	return cmd
}
