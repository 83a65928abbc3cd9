package services

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v2"

	"github.com/silano08/tokingtoking/internal/models"
)

//go:embed prompts/*.yaml
var promptFS embed.FS

type promptFile struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	UserPrompt   string `yaml:"user_prompt"`
}

type promptTemplates struct {
	system *template.Template
	user   *template.Template
}

// PromptBook renders the embedded prompt templates.
type PromptBook struct {
	chat     promptTemplates
	speaking promptTemplates
	cleanup  promptTemplates
}

var promptFuncs = template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"join": strings.Join,
}

func LoadPromptBook() (*PromptBook, error) {
	chat, err := loadPrompt("prompts/chat_system.yaml")
	if err != nil {
		return nil, err
	}
	speaking, err := loadPrompt("prompts/speaking_system.yaml")
	if err != nil {
		return nil, err
	}
	cleanup, err := loadPrompt("prompts/transcript_cleanup.yaml")
	if err != nil {
		return nil, err
	}
	return &PromptBook{chat: chat, speaking: speaking, cleanup: cleanup}, nil
}

func loadPrompt(path string) (promptTemplates, error) {
	raw, err := promptFS.ReadFile(path)
	if err != nil {
		return promptTemplates{}, err
	}
	var pf promptFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return promptTemplates{}, fmt.Errorf("error parsing prompt yaml %s: %w", path, err)
	}
	if strings.TrimSpace(pf.SystemPrompt) == "" {
		return promptTemplates{}, fmt.Errorf("prompt %s has no system_prompt", path)
	}

	var t promptTemplates
	t.system, err = template.New(pf.Name + ".system").Funcs(promptFuncs).Option("missingkey=error").Parse(pf.SystemPrompt)
	if err != nil {
		return promptTemplates{}, fmt.Errorf("prompt %s: %w", path, err)
	}
	if pf.UserPrompt != "" {
		t.user, err = template.New(pf.Name + ".user").Funcs(promptFuncs).Parse(pf.UserPrompt)
		if err != nil {
			return promptTemplates{}, fmt.Errorf("prompt %s: %w", path, err)
		}
	}
	return t, nil
}

type sessionPromptData struct {
	Level     string
	Words     []string
	UsedWords string
}

// SystemPrompt renders the conversation prompt for mode from the session's
// current word usage.
func (b *PromptBook) SystemPrompt(mode, level string, usage models.WordUsage) (string, error) {
	tmpl := b.chat.system
	if mode == models.ModeSpeaking {
		tmpl = b.speaking.system
	}

	used := "none"
	if words := usage.UsedWords(); len(words) > 0 {
		used = strings.Join(words, ", ")
	}
	return render(tmpl, sessionPromptData{Level: level, Words: usage.Words(), UsedWords: used})
}

type cleanupPromptData struct {
	Words      []string
	Context    string
	Transcript string
}

// CleanupPrompts renders the transcript post-processing system and user prompts.
func (b *PromptBook) CleanupPrompts(targetWords []string, transcript string) (system, user string, err error) {
	data := cleanupPromptData{Words: targetWords, Context: "conversation practice", Transcript: transcript}
	if system, err = render(b.cleanup.system, data); err != nil {
		return "", "", err
	}
	if b.cleanup.user == nil {
		return system, transcript, nil
	}
	if user, err = render(b.cleanup.user, data); err != nil {
		return "", "", err
	}
	return system, user, nil
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
