package domain

import (
	"fmt"
	"strings"
)

// Settings is the user-editable preference document. Stores hand out a
// fresh copy on every Load; callers never cache it across operations.
type Settings struct {
	Shortcuts ShortcutSettings `yaml:"shortcuts" json:"shortcuts"`
	AI        AISettings       `yaml:"ai" json:"ai"`
	Output    OutputSettings   `yaml:"output" json:"output"`
}

// ShortcutSettings holds the three global bindings and the enable flags of
// the two optional modes.
type ShortcutSettings struct {
	Dictation      Chord `yaml:"dictation" json:"dictation"`
	Command        Chord `yaml:"command" json:"command"`
	Rewrite        Chord `yaml:"rewrite" json:"rewrite"`
	CommandEnabled bool  `yaml:"command_enabled" json:"command_enabled"`
	RewriteEnabled bool  `yaml:"rewrite_enabled" json:"rewrite_enabled"`
}

// AISettings configures post-processing.
type AISettings struct {
	CleanupEnabled bool               `yaml:"cleanup_enabled" json:"cleanup_enabled"`
	ActiveProvider ProviderID         `yaml:"active_provider" json:"active_provider"`
	Providers      []ProviderSettings `yaml:"providers" json:"providers"`
	// Reasoning holds the per-model reasoning parameter, keyed by model name.
	Reasoning map[string]ReasoningParam `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`
}

// ProviderSettings is the stored configuration of one provider.
type ProviderSettings struct {
	ID        ProviderID            `yaml:"id" json:"id"`
	BaseURL   string                `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey    string                `yaml:"api_key,omitempty" json:"-"`
	Model     string                `yaml:"model" json:"model"`
	Streaming bool                  `yaml:"streaming" json:"streaming"`
	Extra     map[string]ParamValue `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// ReasoningParam is a provider-specific reasoning/thinking knob, e.g.
// {name: reasoning_effort, value: low} or {name: enable_thinking, value: false}.
type ReasoningParam struct {
	Name    string     `yaml:"name" json:"name"`
	Value   ParamValue `yaml:"value" json:"value"`
	Enabled bool       `yaml:"enabled" json:"enabled"`
}

// OutputSettings selects the delivery channels for finished text.
type OutputSettings struct {
	TypeIntoApp     bool `yaml:"type_into_app" json:"type_into_app"`
	CopyToClipboard bool `yaml:"copy_to_clipboard" json:"copy_to_clipboard"`
	SaveHistory     bool `yaml:"save_history" json:"save_history"`
}

// DefaultSettings returns the settings used when no file exists yet.
func DefaultSettings() Settings {
	return Settings{
		Shortcuts: ShortcutSettings{
			Dictation:      Chord{KeyCode: KeyRightOption},
			Command:        Chord{KeyCode: KeySpace, Modifiers: Mods(ModControl, ModOption)},
			Rewrite:        Chord{KeyCode: KeySpace, Modifiers: Mods(ModControl, ModShift)},
			CommandEnabled: true,
			RewriteEnabled: true,
		},
		AI: AISettings{
			ActiveProvider: ProviderOpenAI,
			Providers: []ProviderSettings{
				{ID: ProviderOpenAI, Model: "gpt-4.1-mini"},
				{ID: ProviderGroq, Model: "llama-3.3-70b-versatile"},
			},
		},
		Output: OutputSettings{
			TypeIntoApp:     true,
			CopyToClipboard: false,
			SaveHistory:     true,
		},
	}
}

// ChordFor returns the binding of target.
func (s *Settings) ChordFor(target ChordTarget) Chord {
	switch target {
	case TargetDictation:
		return s.Shortcuts.Dictation
	case TargetCommand:
		return s.Shortcuts.Command
	case TargetRewrite:
		return s.Shortcuts.Rewrite
	}
	return Chord{}
}

// SetChord replaces the binding of target.
func (s *Settings) SetChord(target ChordTarget, c Chord) error {
	switch target {
	case TargetDictation:
		s.Shortcuts.Dictation = c
	case TargetCommand:
		s.Shortcuts.Command = c
	case TargetRewrite:
		s.Shortcuts.Rewrite = c
	default:
		return fmt.Errorf("%w: chord target %q", ErrInvalidInput, target)
	}
	return nil
}

// ShortcutEnabled reports whether the global shortcut of mode may fire.
// Dictation cannot be disabled.
func (s *Settings) ShortcutEnabled(mode RecordingMode) bool {
	switch mode {
	case ModeDictation:
		return true
	case ModeCommand:
		return s.Shortcuts.CommandEnabled
	case ModeRewrite:
		return s.Shortcuts.RewriteEnabled
	}
	return false
}

// Provider returns the stored settings for id.
func (s *Settings) Provider(id ProviderID) (ProviderSettings, bool) {
	for _, p := range s.AI.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderSettings{}, false
}

// ActiveProviderConfig resolves the active provider into a ProviderConfig,
// merging the provider's extra parameters with the enabled reasoning
// parameter of its model.
func (s *Settings) ActiveProviderConfig() (ProviderConfig, error) {
	p, ok := s.Provider(s.AI.ActiveProvider)
	if !ok {
		return ProviderConfig{}, NewDomainError("Settings.ActiveProviderConfig", ErrNotFound,
			fmt.Sprintf("provider %s", s.AI.ActiveProvider))
	}
	base := strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if base == "" {
		base = p.ID.DefaultBaseURL()
	}
	cfg := ProviderConfig{
		Provider:  p.ID,
		BaseURL:   base,
		APIKey:    p.APIKey,
		Model:     p.Model,
		Streaming: p.Streaming,
		Extra:     make(map[string]ParamValue, len(p.Extra)+1),
	}
	for k, v := range p.Extra {
		cfg.Extra[k] = v
	}
	if r, ok := s.AI.Reasoning[p.Model]; ok && r.Enabled && r.Name != "" {
		cfg.Extra[r.Name] = r.Value
	}
	return cfg, nil
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	out := s
	out.AI.Providers = make([]ProviderSettings, len(s.AI.Providers))
	for i, p := range s.AI.Providers {
		cp := p
		if p.Extra != nil {
			cp.Extra = make(map[string]ParamValue, len(p.Extra))
			for k, v := range p.Extra {
				cp.Extra[k] = v
			}
		}
		out.AI.Providers[i] = cp
	}
	if s.AI.Reasoning != nil {
		out.AI.Reasoning = make(map[string]ReasoningParam, len(s.AI.Reasoning))
		for k, v := range s.AI.Reasoning {
			out.AI.Reasoning[k] = v
		}
	}
	return out
}
