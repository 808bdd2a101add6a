package domain

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ProviderID identifies an LLM provider: one of the built-in providers or a
// user-defined custom endpoint. Its text form is "openai", "groq" or
// "custom:<id>".
type ProviderID struct {
	kind   string
	custom string
}

var (
	ProviderOpenAI = ProviderID{kind: "openai"}
	ProviderGroq   = ProviderID{kind: "groq"}
)

// CustomProvider returns the ID of a user-defined provider.
func CustomProvider(id string) ProviderID {
	return ProviderID{kind: "custom", custom: id}
}

// IsZero reports whether the ID is unset.
func (p ProviderID) IsZero() bool { return p.kind == "" }

// IsCustom reports whether p is a user-defined provider.
func (p ProviderID) IsCustom() bool { return p.kind == "custom" }

// CustomID returns the user-chosen identifier of a custom provider.
func (p ProviderID) CustomID() string { return p.custom }

func (p ProviderID) String() string {
	if p.IsCustom() {
		return "custom:" + p.custom
	}
	return p.kind
}

// MarshalText implements encoding.TextMarshaler.
func (p ProviderID) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return nil, fmt.Errorf("%w: empty provider id", ErrInvalidInput)
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ProviderID) UnmarshalText(b []byte) error {
	parsed, err := ParseProviderID(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseProviderID parses the text form of a provider ID.
func ParseProviderID(s string) (ProviderID, error) {
	switch {
	case s == "openai":
		return ProviderOpenAI, nil
	case s == "groq":
		return ProviderGroq, nil
	case strings.HasPrefix(s, "custom:") && len(s) > len("custom:"):
		return CustomProvider(strings.TrimPrefix(s, "custom:")), nil
	}
	return ProviderID{}, fmt.Errorf("%w: provider id %q", ErrInvalidInput, s)
}

// DisplayName is the user-facing provider name.
func (p ProviderID) DisplayName() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderGroq:
		return "Groq"
	}
	if p.IsCustom() {
		return p.custom
	}
	return "unknown provider"
}

// DefaultBaseURL returns the API root of a built-in provider, or "" for
// custom providers.
func (p ProviderID) DefaultBaseURL() string {
	switch p {
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderGroq:
		return "https://api.groq.com/openai/v1"
	}
	return ""
}

// ParamValue is an extra request parameter: either a string or a bool.
type ParamValue struct {
	s      string
	b      bool
	isBool bool
}

// StringParam returns a string-valued parameter (effort-style).
func StringParam(s string) ParamValue { return ParamValue{s: s} }

// BoolParam returns a bool-valued parameter (thinking-style).
func BoolParam(b bool) ParamValue { return ParamValue{b: b, isBool: true} }

// IsBool reports whether the parameter holds a bool.
func (v ParamValue) IsBool() bool { return v.isBool }

// Bool returns the bool value; false for string parameters.
func (v ParamValue) Bool() bool { return v.isBool && v.b }

// Str returns the string value; "" for bool parameters.
func (v ParamValue) Str() string {
	if v.isBool {
		return ""
	}
	return v.s
}

// Any returns the value as a plain Go value for JSON encoding.
func (v ParamValue) Any() any {
	if v.isBool {
		return v.b
	}
	return v.s
}

func (v ParamValue) String() string { return fmt.Sprint(v.Any()) }

// MarshalJSON implements json.Marshaler.
func (v ParamValue) MarshalJSON() ([]byte, error) { return json.Marshal(v.Any()) }

// UnmarshalJSON implements json.Unmarshaler.
func (v *ParamValue) UnmarshalJSON(b []byte) error {
	var bv bool
	if err := json.Unmarshal(b, &bv); err == nil {
		*v = BoolParam(bv)
		return nil
	}
	var sv string
	if err := json.Unmarshal(b, &sv); err != nil {
		return fmt.Errorf("%w: parameter must be a string or bool", ErrInvalidInput)
	}
	*v = StringParam(sv)
	return nil
}

// MarshalYAML emits the plain value.
func (v ParamValue) MarshalYAML() (any, error) { return v.Any(), nil }

// UnmarshalYAML accepts a YAML bool or string scalar.
func (v *ParamValue) UnmarshalYAML(unmarshal func(any) error) error {
	var bv bool
	if err := unmarshal(&bv); err == nil {
		*v = BoolParam(bv)
		return nil
	}
	var sv string
	if err := unmarshal(&sv); err != nil {
		return fmt.Errorf("%w: parameter must be a string or bool", ErrInvalidInput)
	}
	*v = StringParam(sv)
	return nil
}

// ProviderConfig is everything needed for one chat-completion call. It is
// resolved from settings at the start of every call and never cached.
type ProviderConfig struct {
	Provider  ProviderID
	BaseURL   string
	APIKey    string
	Model     string
	Extra     map[string]ParamValue
	Streaming bool
}

// IsLocal reports whether the endpoint is on this machine or a private
// network, in which case no API key is required.
func (c ProviderConfig) IsLocal() bool { return IsLocalEndpoint(c.BaseURL) }

// HasCredentials reports whether a call may be attempted.
func (c ProviderConfig) HasCredentials() bool {
	return strings.TrimSpace(c.APIKey) != "" || c.IsLocal()
}

// CheckCredentials returns an ErrAPIKeyMissing DomainError naming the
// provider when HasCredentials is false.
func (c ProviderConfig) CheckCredentials() error {
	if c.HasCredentials() {
		return nil
	}
	return NewDomainError("ProviderConfig.CheckCredentials", ErrAPIKeyMissing, c.Provider.DisplayName())
}

// IsLocalEndpoint reports whether baseURL points at a loopback, private,
// link-local or mDNS (.local) host.
func IsLocalEndpoint(baseURL string) bool {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

// reasoningModelPrefixes are model families that reject a temperature
// parameter.
var reasoningModelPrefixes = []string{
	"o1", "o3", "o4",
	"gpt-5",
	"deepseek-r1",
	"qwq",
	"openai/gpt-oss",
	"gpt-oss",
}

// IsReasoningModel reports whether model belongs to a reasoning family.
// Vendor prefixes such as "accounts/fireworks/models/" are ignored.
func IsReasoningModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	candidates := []string{m}
	if i := strings.LastIndex(m, "/"); i >= 0 {
		candidates = append(candidates, m[i+1:])
	}
	for _, c := range candidates {
		for _, p := range reasoningModelPrefixes {
			if c == p || strings.HasPrefix(c, p+"-") || strings.HasPrefix(c, p+".") || strings.HasPrefix(c, p+":") {
				return true
			}
		}
	}
	return false
}
