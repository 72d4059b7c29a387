package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yildizm/contractis/internal/settings"
)

// SettingsOutput is the JSON shape of the LLM settings; the key is masked
type SettingsOutput struct {
	Type      settings.Type `json:"type"`
	Label     string        `json:"label"`
	LocalURL  string        `json:"localUrl,omitempty"`
	APIURL    string        `json:"apiUrl,omitempty"`
	APIKey    string        `json:"apiKey,omitempty"`
	ModelName string        `json:"modelName,omitempty"`
	MaxTokens int           `json:"maxTokens"`
}

func newSettingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the LLM settings",
		Long: `The LLM settings travel with every analysis. A local model needs its URL; an
online model needs the API URL, the API key and the model name.

Examples:
  contractis settings show
  contractis settings set --type online --api-url https://api.example.com/v1 --api-key sk-... --model gpt-4o
  contractis settings set --max-tokens 2400
  contractis settings reset`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active settings",
		Args:  cobra.NoArgs,
		RunE:  runSettingsShow,
	})
	cmd.AddCommand(newSettingsSetCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings",
		Args:  cobra.NoArgs,
		RunE:  runSettingsReset,
	})

	return cmd
}

func newSettingsSetCommand() *cobra.Command {
	var (
		llmType   string
		localURL  string
		apiURL    string
		apiKey    string
		model     string
		maxTokens int
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings; unset flags keep their value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			candidate := a.store.Active()
			flags := cmd.Flags()
			if flags.Changed("type") {
				candidate.Type = settings.Type(strings.ToLower(llmType))
			}
			if flags.Changed("local-url") {
				candidate.LocalURL = localURL
			}
			if flags.Changed("api-url") {
				candidate.APIURL = apiURL
			}
			if flags.Changed("api-key") {
				candidate.APIKey = apiKey
			}
			if flags.Changed("model") {
				candidate.ModelName = model
			}
			if flags.Changed("max-tokens") {
				candidate.MaxTokens = maxTokens
			}

			saved, err := a.store.Save(ctx, candidate)
			if err != nil {
				var fe *settings.FieldError
				if errors.As(err, &fe) {
					return fmt.Errorf("%s (--%s)", fe.Message, flagFor(fe.Field))
				}
				return err
			}

			progress(cmd, "success", "Configuration saved (%s)", saved.Label())
			return writeSettings(cmd, saved)
		},
	}

	cmd.Flags().StringVar(&llmType, "type", "", "local or online")
	cmd.Flags().StringVar(&localURL, "local-url", "", "local model chat completions URL")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "online API URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "online API key")
	cmd.Flags().StringVar(&model, "model", "", "model name")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "maximum output tokens")

	return cmd
}

// flagFor maps a settings field to the flag that sets it
func flagFor(field string) string {
	switch field {
	case "localUrl":
		return "local-url"
	case "apiUrl":
		return "api-url"
	case "apiKey":
		return "api-key"
	case "modelName":
		return "model"
	case "maxTokens":
		return "max-tokens"
	default:
		return field
	}
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return writeSettings(cmd, a.store.Active())
}

func runSettingsReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	cfg, err := a.store.Reset(ctx)
	if err != nil {
		return err
	}
	progress(cmd, "success", "Settings restored to defaults")
	return writeSettings(cmd, cfg)
}

func writeSettings(cmd *cobra.Command, c settings.LLMConfig) error {
	out := SettingsOutput{
		Type:      c.Type,
		Label:     c.Label(),
		MaxTokens: c.MaxTokens,
		ModelName: c.ModelName,
	}
	if c.IsOnline() {
		out.APIURL = c.APIURL
		out.APIKey = c.MaskedAPIKey()
	} else {
		out.LocalURL = c.LocalURL
	}

	return writeOutput(cmd.OutOrStdout(), getOutputFormat(), output{
		text: func() (string, error) { return settingsText(out), nil },
		json: out,
		markdown: func() string {
			var b strings.Builder
			b.WriteString("## LLM settings\n\n")
			b.WriteString("| Setting | Value |\n|---|---|\n")
			for _, row := range settingsRows(out) {
				fmt.Fprintf(&b, "| %s | %s |\n", row[0], row[1])
			}
			return b.String()
		},
	})
}

func settingsRows(out SettingsOutput) [][2]string {
	rows := [][2]string{{"Type", string(out.Type)}}
	if out.Type == settings.TypeOnline {
		rows = append(rows, [2]string{"API URL", out.APIURL}, [2]string{"API key", out.APIKey})
	} else {
		rows = append(rows, [2]string{"Local URL", out.LocalURL})
	}
	if out.ModelName != "" {
		rows = append(rows, [2]string{"Model", out.ModelName})
	}
	return append(rows, [2]string{"Max tokens", fmt.Sprintf("%d", out.MaxTokens)})
}

func settingsText(out SettingsOutput) string {
	icon := "local"
	if out.Type == settings.TypeOnline {
		icon = "online"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", emojiFor(icon), out.Label)
	for _, row := range settingsRows(out) {
		fmt.Fprintf(&b, "  %-11s %s\n", row[0]+":", row[1])
	}
	return b.String()
}
