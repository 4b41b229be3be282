// Package credential implements canonical credential documents and the
// issuance/verification service.
package credential

import (
	"bytes"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/credchain/credchain/model"
)

const (
	Preamble  = "-----BEGIN CREDCHAIN CREDENTIAL-----"
	Postamble = "-----END CREDCHAIN CREDENTIAL-----"

	// SpecTag names the canonical format version in the META section.
	SpecTag = "credchain-1"
)

// SectionOrder is the fixed canonical order of document sections.
// The signed scope covers everything before CRYPTO.
var SectionOrder = []string{"META", "ISSUER", "SUBJECT", "CLAIMS", "CRYPTO"}

// Document is the in-memory form for producing canonical credential bytes.
// Rendered output is always canonical: fixed section order, keys sorted
// lexicographically, LF-only, one blank line between sections, no trailing
// newline after the END line.
type Document struct {
	Meta    map[string]string
	Issuer  map[string]string
	Subject map[string]string
	Claims  map[string]string
	Crypto  map[string]string
}

func (d Document) sections() []struct {
	name  string
	pairs map[string]string
} {
	return []struct {
		name  string
		pairs map[string]string
	}{
		{"META", d.Meta},
		{"ISSUER", d.Issuer},
		{"SUBJECT", d.Subject},
		{"CLAIMS", d.Claims},
		{"CRYPTO", d.Crypto},
	}
}

func writeSection(sb *strings.Builder, name string, pairs map[string]string) error {
	sb.WriteString(name)
	sb.WriteString("\n")

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		if k == "" {
			return model.Errorf(model.ErrValidation, "%s: empty key", name)
		}
		if !isASCII(k) || strings.ContainsAny(k, "\n\r:") {
			return model.Errorf(model.ErrValidation, "%s: invalid key %q", name, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := pairs[k]
		if v == "" {
			return model.Errorf(model.ErrValidation, "%s: empty value for %q", name, k)
		}
		if strings.ContainsAny(v, "\n\r") {
			return model.Errorf(model.ErrValidation, "%s: value for %q contains newlines", name, k)
		}
		if strings.HasPrefix(v, " ") || strings.HasSuffix(v, " ") || strings.HasSuffix(v, "\t") {
			return model.Errorf(model.ErrValidation, "%s: value for %q has surrounding whitespace", name, k)
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	return nil
}

// SignedScope renders the bytes covered by the content hash and signature:
// the BEGIN line through the CLAIMS section, including the blank-line
// separator that precedes CRYPTO.
func SignedScope(doc Document) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(Preamble)
	sb.WriteString("\n")
	for _, sec := range doc.sections() {
		if sec.name == "CRYPTO" {
			break
		}
		if err := writeSection(&sb, sec.name, sec.pairs); err != nil {
			return nil, err
		}
		sb.WriteString("\n")
	}
	return []byte(sb.String()), nil
}

// Render produces the full canonical document bytes.
func Render(doc Document) ([]byte, error) {
	scope, err := SignedScope(doc)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.Write(scope)
	if err := writeSection(&sb, "CRYPTO", doc.Crypto); err != nil {
		return nil, err
	}
	sb.WriteString(Postamble)
	return []byte(sb.String()), nil
}

// Parsed is a canonical credential document accepted by Parse.
type Parsed struct {
	Sections map[string]map[string]string

	// Raw holds the canonical bytes; Signed the signature scope.
	Raw    []byte
	Signed []byte
}

// Get returns a field value, or "" when absent.
func (p *Parsed) Get(section, key string) string {
	pairs, ok := p.Sections[section]
	if !ok {
		return ""
	}
	return pairs[key]
}

// Parse reads a credential document and enforces canonical serialization.
// The input is re-rendered from its parsed fields and must match byte for
// byte; non-canonical inputs are rejected.
func Parse(data []byte) (*Parsed, error) {
	if !utf8.Valid(data) {
		return nil, model.NewError(model.ErrValidation, "document must be valid UTF-8")
	}
	if bytes.Contains(data, []byte("\r")) {
		return nil, model.NewError(model.ErrValidation, "CR line endings not allowed")
	}
	text := string(data)
	if !strings.HasPrefix(text, Preamble+"\n") {
		return nil, model.NewError(model.ErrValidation, "missing credential preamble")
	}
	if !strings.HasSuffix(text, "\n"+Postamble) {
		return nil, model.NewError(model.ErrValidation, "missing credential postamble")
	}
	body := strings.TrimSuffix(strings.TrimPrefix(text, Preamble+"\n"), "\n"+Postamble)

	sections := make(map[string]map[string]string, len(SectionOrder))
	for i, chunk := range strings.Split(body, "\n\n") {
		if i >= len(SectionOrder) {
			return nil, model.NewError(model.ErrValidation, "unexpected extra section")
		}
		lines := strings.Split(chunk, "\n")
		if len(lines) == 0 || lines[0] != SectionOrder[i] {
			return nil, model.NewError(model.ErrValidation, "sections missing or out of order")
		}
		pairs := make(map[string]string)
		for _, line := range lines[1:] {
			key, value, ok := strings.Cut(line, ": ")
			if !ok {
				return nil, model.Errorf(model.ErrValidation, "%s: invalid key-value line", lines[0])
			}
			if _, exists := pairs[key]; exists {
				return nil, model.Errorf(model.ErrValidation, "%s: duplicate key %q", lines[0], key)
			}
			pairs[key] = value
		}
		sections[lines[0]] = pairs
	}
	for _, name := range SectionOrder {
		if _, ok := sections[name]; !ok {
			return nil, model.Errorf(model.ErrValidation, "missing %s section", name)
		}
	}

	doc := Document{
		Meta:    sections["META"],
		Issuer:  sections["ISSUER"],
		Subject: sections["SUBJECT"],
		Claims:  sections["CLAIMS"],
		Crypto:  sections["CRYPTO"],
	}
	canonical, err := Render(doc)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(data, canonical) {
		return nil, model.NewError(model.ErrValidation, "document is not canonical")
	}
	signed, err := SignedScope(doc)
	if err != nil {
		return nil, err
	}
	return &Parsed{Sections: sections, Raw: canonical, Signed: signed}, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
