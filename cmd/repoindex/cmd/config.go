package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/repoindex/configs"
	"github.com/Aman-CERP/repoindex/internal/config"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the project (.repoindex.yaml) and user configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/repoindex/config.yaml)
  3. Project config (.repoindex.yaml)
  4. Environment variables (REPOINDEX_*)`,
		Example: `  # Create .repoindex.yaml in the project root
  repoindex config init

  # Create the user config
  repoindex config init --user

  # Show effective configuration
  repoindex config show`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

// configTarget returns the file a config subcommand works on and the
// template for it.
func configTarget(user bool) (path, template string, err error) {
	if user {
		return config.GetUserConfigPath(), configs.UserConfigTemplate, nil
	}
	root, err := projectRoot()
	if err != nil {
		return "", "", err
	}
	path, _ = config.ProjectConfigPath(root)
	return path, configs.ProjectConfigTemplate, nil
}

func newConfigInitCmd() *cobra.Command {
	var force, user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from a template",
		Long: `Create .repoindex.yaml in the project root, or the user configuration
with --user. Every value in the template is commented out.

With --force an existing file is backed up and missing options are filled
with their defaults; existing settings are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, user, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Upgrade an existing file with new defaults")
	cmd.Flags().BoolVar(&user, "user", false, "Create the user configuration instead")

	return cmd
}

func runConfigInit(cmd *cobra.Command, user, force bool) error {
	out := output.New(cmd.OutOrStdout())

	path, template, err := configTarget(user)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Newline()
			out.Status("💡", "Use --force to upgrade with new defaults (preserves your settings)")
			return nil
		}
		return runConfigUpgrade(out, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Edit the file to customize settings")
	out.Status("", "  2. Run 'repoindex config show' to verify")
	return nil
}

// runConfigUpgrade backs up path, fills options it lacks and rewrites it.
func runConfigUpgrade(out *output.Writer, path string) error {
	backupPath, err := config.BackupFile(path)
	if err != nil {
		return err
	}

	var existing config.Config
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &existing); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err).
			WithSuggestion(fmt.Sprintf("Restore a backup with 'repoindex config restore' or delete %s", path))
	}

	added := existing.MergeNewDefaults()
	if err := existing.WriteYAML(path); err != nil {
		return err
	}

	out.Success("Configuration upgraded")
	out.Statusf("📁", "Location: %s", path)
	out.Statusf("💾", "Backup: %s", backupPath)
	out.Newline()
	if len(added) > 0 {
		out.Status("✨", "New options added with defaults:")
		for _, field := range added {
			out.Statusf("", "  - %s", field)
		}
	} else {
		out.Status("✓", "Your configuration is already up to date")
	}
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the configuration after merging all sources, or a single source
with --source.`,
		Example: `  repoindex config show
  repoindex config show --json
  repoindex config show --source project`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, project, defaults")

	return cmd
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var (
		cfg  *config.Config
		desc string
	)
	switch source {
	case "merged":
		root, err := projectRoot()
		if err != nil {
			return err
		}
		cfg, err = config.Load(root)
		if err != nil {
			return err
		}
		desc = "merged (defaults + user + project + env)"

	case "user", "project":
		path, _, err := configTarget(source == "user")
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			out.Warningf("No %s configuration file found", source)
			out.Statusf("📁", "Expected at: %s", path)
			if source == "user" {
				out.Status("💡", "Run 'repoindex config init --user' to create one")
			} else {
				out.Status("💡", "Run 'repoindex config init' to create one")
			}
			return nil
		}
		cfg = &config.Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
		}
		desc = fmt.Sprintf("%s (%s)", source, path)

	case "defaults":
		cfg = config.NewConfig()
		desc = "defaults (hardcoded)"

	default:
		return errors.ValidationError(fmt.Sprintf("invalid source: %s (use: merged, user, project, defaults)", source), nil)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	out.Statusf("📋", "Configuration source: %s", desc)
	out.Newline()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
	return err
}

func newConfigPathCmd() *cobra.Command {
	var user bool

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _, err := configTarget(user)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Print the user configuration path")

	return cmd
}

func newConfigRestoreCmd() *cobra.Command {
	var user, list bool

	cmd := &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore a configuration backup",
		Long: `Replace the configuration file with a backup made by 'config init --force'.
Without an argument the newest backup is restored. The current file is
backed up first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigRestore(cmd, args, user, list)
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Restore the user configuration")
	cmd.Flags().BoolVar(&list, "list", false, "List backups instead of restoring")

	return cmd
}

func runConfigRestore(cmd *cobra.Command, args []string, user, list bool) error {
	out := output.New(cmd.OutOrStdout())

	path, _, err := configTarget(user)
	if err != nil {
		return err
	}
	backups, err := config.ListBackups(path)
	if err != nil {
		return err
	}

	if list {
		if len(backups) == 0 {
			out.Status("", "No backups")
			return nil
		}
		for _, b := range backups {
			out.Status("", b)
		}
		return nil
	}

	var backup string
	switch {
	case len(args) == 1:
		backup = args[0]
	case len(backups) > 0:
		backup = backups[0]
	default:
		return errors.Newf(errors.ErrCodeFileNotFound, "no backups of %s", path).
			WithSuggestion("Backups are made by 'repoindex config init --force'")
	}

	if err := config.RestoreFile(backup, path); err != nil {
		return err
	}
	out.Success("Configuration restored")
	out.Statusf("📁", "Location: %s", path)
	out.Statusf("💾", "From: %s", backup)
	return nil
}
