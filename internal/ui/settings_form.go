package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yildizm/contractis/internal/settings"
)

type formField int

const (
	fieldType formField = iota
	fieldLocalURL
	fieldAPIURL
	fieldAPIKey
	fieldModel
	fieldMaxTokens
	fieldCount
)

var fieldLabels = map[formField]string{
	fieldType:      "LLM type",
	fieldLocalURL:  "Local URL",
	fieldAPIURL:    "API URL",
	fieldAPIKey:    "API key",
	fieldModel:     "Model name",
	fieldMaxTokens: "Max tokens",
}

// fieldNames maps settings.FieldError.Field back to the input
var fieldNames = map[string]formField{
	"type":      fieldType,
	"localUrl":  fieldLocalURL,
	"apiUrl":    fieldAPIURL,
	"apiKey":    fieldAPIKey,
	"modelName": fieldModel,
	"maxTokens": fieldMaxTokens,
}

// settingsForm edits a candidate LLM configuration. Both URL branches are
// kept while the type is toggled; only the active one is shown.
type settingsForm struct {
	llmType settings.Type
	inputs  [fieldCount]textinput.Model // fieldType has no input
	focus   formField
	err     string
}

func newSettingsForm(cfg settings.LLMConfig) *settingsForm {
	f := &settingsForm{llmType: cfg.Type}
	if f.llmType != settings.TypeOnline {
		f.llmType = settings.TypeLocal
	}

	values := map[formField]string{
		fieldLocalURL:  cfg.LocalURL,
		fieldAPIURL:    cfg.APIURL,
		fieldAPIKey:    cfg.APIKey,
		fieldModel:     cfg.ModelName,
		fieldMaxTokens: strconv.Itoa(cfg.MaxTokens),
	}
	for field := fieldLocalURL; field < fieldCount; field++ {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Width = 48
		ti.CharLimit = 512
		ti.SetValue(values[field])
		f.inputs[field] = ti
	}
	f.inputs[fieldAPIKey].EchoMode = textinput.EchoPassword
	f.inputs[fieldAPIKey].EchoCharacter = '•'
	f.inputs[fieldMaxTokens].CharLimit = 9
	f.inputs[fieldLocalURL].Placeholder = settings.DefaultLocalURL
	f.inputs[fieldAPIURL].Placeholder = "https://api.openai.com/v1/chat/completions"
	return f
}

// visible lists the fields of the active branch in display order
func (f *settingsForm) visible() []formField {
	if f.llmType == settings.TypeOnline {
		return []formField{fieldType, fieldAPIURL, fieldAPIKey, fieldModel, fieldMaxTokens}
	}
	return []formField{fieldType, fieldLocalURL, fieldModel, fieldMaxTokens}
}

func (f *settingsForm) setFocus(field formField) tea.Cmd {
	for i := fieldLocalURL; i < fieldCount; i++ {
		f.inputs[i].Blur()
	}
	f.focus = field
	if field == fieldType {
		return nil
	}
	return f.inputs[field].Focus()
}

func (f *settingsForm) move(delta int) tea.Cmd {
	fields := f.visible()
	idx := 0
	for i, field := range fields {
		if field == f.focus {
			idx = i
		}
	}
	idx = (idx + delta + len(fields)) % len(fields)
	return f.setFocus(fields[idx])
}

func (f *settingsForm) toggleType() {
	if f.llmType == settings.TypeOnline {
		f.llmType = settings.TypeLocal
	} else {
		f.llmType = settings.TypeOnline
	}
}

// update handles a key that is not save or cancel
func (f *settingsForm) update(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab", "down":
		return f.move(1)
	case "shift+tab", "up":
		return f.move(-1)
	}

	if f.focus == fieldType {
		switch msg.String() {
		case " ", "left", "right", "h", "l":
			f.toggleType()
		}
		return nil
	}

	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

// candidate builds the configuration to save. A max tokens value that is
// not a number becomes 0 so validation reports it.
func (f *settingsForm) candidate() settings.LLMConfig {
	maxTokens, err := strconv.Atoi(strings.TrimSpace(f.inputs[fieldMaxTokens].Value()))
	if err != nil {
		maxTokens = 0
	}
	return settings.LLMConfig{
		Type:      f.llmType,
		LocalURL:  f.inputs[fieldLocalURL].Value(),
		APIURL:    f.inputs[fieldAPIURL].Value(),
		APIKey:    f.inputs[fieldAPIKey].Value(),
		ModelName: f.inputs[fieldModel].Value(),
		MaxTokens: maxTokens,
	}
}

// fail shows a save error and focuses the offending field when known
func (f *settingsForm) fail(message, field string) tea.Cmd {
	f.err = message
	target, ok := fieldNames[field]
	if !ok {
		return nil
	}
	if target == fieldLocalURL || target == fieldAPIURL || target == fieldAPIKey {
		// a field of the hidden branch cannot be the culprit
		want := settings.TypeLocal
		if target != fieldLocalURL {
			want = settings.TypeOnline
		}
		if f.llmType != want {
			return nil
		}
	}
	return f.setFocus(target)
}

func (f *settingsForm) view(s *Styles) string {
	lines := make([]string, 0, len(f.visible())+4)
	for _, field := range f.visible() {
		label := fieldLabels[field]
		marker := "  "
		labelStyle := s.Muted
		if field == f.focus {
			marker = "▶ "
			labelStyle = s.Header
		}

		var value string
		if field == fieldType {
			local, online := "( ) local", "( ) online"
			if f.llmType == settings.TypeOnline {
				online = "(•) online"
			} else {
				local = "(•) local"
			}
			value = local + "   " + online
		} else {
			value = f.inputs[field].View()
		}
		lines = append(lines, marker+labelStyle.Render(lipgloss.NewStyle().Width(12).Render(label))+" "+value)
	}

	if f.err != "" {
		lines = append(lines, "", s.Error.Render(f.err))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
