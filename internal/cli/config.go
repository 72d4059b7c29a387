package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yildizm/contractis/internal/config"
)

// newConfigCommand creates the config command with subcommands
func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Contractis configuration",
		Long: `Manage Contractis configuration files and settings.

The config command provides subcommands for initializing, viewing,
validating, and locating configuration files. LLM settings are not part of
the configuration file; use "contractis settings" for those.`,
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand())
	configCmd.AddCommand(newConfigValidateCommand())
	configCmd.AddCommand(newConfigPathCommand())

	return configCmd
}

// newConfigInitCommand creates the config init subcommand
func newConfigInitCommand() *cobra.Command {
	var (
		outputPath string
		minimal    bool
		force      bool
	)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new configuration file",
		Long: `Initialize a new Contractis configuration file with default values.

By default, creates a full configuration file with all options and comments.
Use --minimal for a compact configuration with only the backend settings.`,
		Example: `  # Create full config in current directory
  contractis config init

  # Create minimal config
  contractis config init --minimal

  # Create config at specific path
  contractis config init --path ~/.config/contractis/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputPath == "" {
				outputPath = ".contractis.yaml"
			}
			outputPath = config.ExpandPath(outputPath)

			if !force && fileExists(outputPath) {
				return fmt.Errorf("config file already exists at %s (use --force to overwrite)", outputPath)
			}

			dir := filepath.Dir(outputPath)
			if dir != "." && dir != "/" {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", dir, err)
				}
			}

			content := config.SampleConfig()
			if minimal {
				content = config.MinimalSampleConfig()
			}

			if err := os.WriteFile(outputPath, []byte(content), 0o600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Configuration file created at: %s\n", emojiFor("success"), outputPath)
			if minimal {
				fmt.Fprintf(out, "%s Created minimal configuration with the backend settings\n", emojiFor("document"))
			} else {
				fmt.Fprintf(out, "%s Created full configuration with all options and documentation\n", emojiFor("document"))
			}
			return nil
		},
	}

	initCmd.Flags().StringVarP(&outputPath, "path", "p", "", "where to write the config file (default: .contractis.yaml)")
	initCmd.Flags().BoolVarP(&minimal, "minimal", "m", false, "create minimal configuration")
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing config file")

	return initCmd
}

// newConfigShowCommand creates the config show subcommand
func newConfigShowCommand() *cobra.Command {
	var format string

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the effective configuration after merging defaults, the config file
and CONTRACTIS_ environment overrides. The S3 secret key is masked.`,
		Example: `  contractis config show
  contractis config show --format json
  contractis config show --format toml --config ./contractis.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *GetGlobalConfig()
			if cfg.Export.S3.SecretAccessKey != "" {
				cfg.Export.S3.SecretAccessKey = "********"
			}

			var (
				data []byte
				err  error
			)
			switch format {
			case "json":
				data, err = json.MarshalIndent(cfg, "", "  ")
				data = append(data, '\n')
			case "yaml":
				data, err = yaml.Marshal(cfg)
			case "toml":
				data, err = tomlConfig(&cfg)
			default:
				return fmt.Errorf("unsupported format: %s (use yaml, json or toml)", format)
			}
			if err != nil {
				return fmt.Errorf("failed to encode config as %s: %w", format, err)
			}

			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	showCmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format (yaml, json, toml)")

	return showCmd
}

// newConfigValidateCommand creates the config validate subcommand
func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate a Contractis configuration file for syntax and semantic errors.

Checks the configuration file for:
- Valid YAML, TOML or JSON syntax
- Valid values for enums such as storage.backend and export.target
- Positive timeouts, limits and debounce delays`,
		Example: `  contractis config validate
  contractis config validate --config /path/to/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := config.NewLoader().LoadConfig(cfgFile)
			if err != nil {
				fmt.Fprintf(out, "%s Configuration validation failed:\n", emojiFor("error"))
				fmt.Fprintf(out, "   %v\n", err)
				return err
			}

			fmt.Fprintf(out, "%s Configuration is valid\n", emojiFor("success"))
			fmt.Fprintf(out, "%s Configuration summary:\n", emojiFor("stats"))
			fmt.Fprintf(out, "   Version: %s\n", cfg.Version)
			fmt.Fprintf(out, "   Backend: %s\n", cfg.Server.BaseURL)
			fmt.Fprintf(out, "   Settings storage: %s\n", cfg.Storage.Backend)
			fmt.Fprintf(out, "   Output Format: %s\n", cfg.Output.DefaultFormat)
			fmt.Fprintf(out, "   Export target: %s\n", cfg.Export.Target)
			return nil
		},
	}
}

// newConfigPathCommand creates the config path subcommand
func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file search paths",
		Long: `Display the list of paths Contractis searches for configuration files.

Shows the search order and indicates which files exist.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration file search paths (in priority order):")
			fmt.Fprintln(out)

			priority := []string{"Highest", "Medium", "Lowest"}
			for i, path := range config.GetConfigPaths() {
				exists := " " + emojiFor("failed") + " (not found)"
				if fileExists(path) {
					exists = " " + emojiFor("completed") + " (exists)"
				}

				fmt.Fprintf(out, "  %d. %s%s\n", i+1, path, exists)
				if i < len(priority) {
					fmt.Fprintf(out, "     Priority: %s\n", priority[i])
				}
				fmt.Fprintln(out)
			}

			if current, found := config.FindConfigFile(); found {
				fmt.Fprintf(out, "Current config file: %s\n", current)
			} else {
				fmt.Fprintln(out, "No config file found, using defaults")
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Environment variables with CONTRACTIS_ prefix override file settings")
		},
	}
}

// tomlConfig goes through YAML so keys and durations read the same as in a
// YAML file
func tomlConfig(cfg *config.Config) ([]byte, error) {
	normalized, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var generic map[string]interface{}
	if err := yaml.Unmarshal(normalized, &generic); err != nil {
		return nil, err
	}
	return toml.Marshal(generic)
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}
