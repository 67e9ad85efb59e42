package snippets

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"
)

type Framework string

const (
	FrameworkHTML   Framework = "html"
	FrameworkNextJS Framework = "nextjs"
	FrameworkReact  Framework = "react"
)

type Config struct {
	Page      string
	Variants  []string
	ServerURL string
	// CTAText maps a variant key to its button text; missing keys show the key.
	CTAText map[string]string
	Winner  string // locked winner, if any
}

type SnippetFile struct {
	Filename string
	Content  string
}

type templateData struct {
	Page         string
	PagePascal   string
	ServerURL    string
	DefaultText  string
	VariantsJSON string
	WinnerText   string
}

func Generate(framework Framework, config Config) ([]SnippetFile, error) {
	data := buildTemplateData(config)

	// A locked winner needs no tracker-driven swap
	if config.Winner != "" {
		return generateStaticWinner(data)
	}

	switch framework {
	case FrameworkReact:
		return generateReact(data)
	case FrameworkNextJS:
		return generateNextJS(data)
	default:
		return generateHTML(data)
	}
}

func buildTemplateData(config Config) templateData {
	texts := make(map[string]string, len(config.Variants))
	for _, v := range config.Variants {
		texts[v] = v
		if t, ok := config.CTAText[v]; ok && t != "" {
			texts[v] = t
		}
	}
	variantsJSON, _ := json.Marshal(texts)

	defaultText := "Get Started"
	if len(config.Variants) > 0 {
		defaultText = texts[config.Variants[0]]
	}

	winnerText := config.Winner
	if t, ok := config.CTAText[config.Winner]; ok && t != "" {
		winnerText = t
	}

	return templateData{
		Page:         config.Page,
		PagePascal:   toPascalCase(config.Page),
		ServerURL:    strings.TrimSuffix(config.ServerURL, "/"),
		DefaultText:  defaultText,
		VariantsJSON: string(variantsJSON),
		WinnerText:   winnerText,
	}
}

func toPascalCase(s string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' || r == ' ' }) {
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

func renderTemplate(name, content string, data templateData) (string, error) {
	tmpl, err := template.New(name).Parse(content)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func generateStaticWinner(data templateData) ([]SnippetFile, error) {
	rendered, err := renderTemplate("static", `<!-- funnel-goat: {{.Page}} CTA locked to "{{.WinnerText}}" -->
<script src="{{.ServerURL}}/ft.js" data-page="{{.Page}}" defer></script>
<button data-fg-cta="{{.Page}}">{{.WinnerText}}</button>
`, data)
	if err != nil {
		return nil, err
	}
	return []SnippetFile{{Filename: "static-winner.html", Content: rendered}}, nil
}

func generateHTML(data templateData) ([]SnippetFile, error) {
	content := `<!-- funnel-goat CTA test: {{.Page}} -->
<script src="{{.ServerURL}}/ft.js" data-page="{{.Page}}" defer></script>

<!-- The CTA whose text is tested -->
<button data-fg-cta="{{.Page}}" data-fg-variants='{{.VariantsJSON}}'>{{.DefaultText}}</button>

<!-- On the final step, mark the element that completes the funnel -->
<!-- <button data-fg-complete>Submit</button> -->
`

	rendered, err := renderTemplate("html", content, data)
	if err != nil {
		return nil, err
	}

	return []SnippetFile{
		{Filename: data.Page + "-cta.html", Content: rendered},
	}, nil
}

func generateReact(data templateData) ([]SnippetFile, error) {
	content := `// funnel-goat CTA test: {{.Page}}
import { useEffect } from 'react';

const VARIANTS: Record<string, string> = {{.VariantsJSON}};

export function {{.PagePascal}}CTA() {
  useEffect(() => {
    if (document.querySelector('script[data-fg="{{.Page}}"]')) return;
    const s = document.createElement('script');
    s.src = '{{.ServerURL}}/ft.js';
    s.dataset.page = '{{.Page}}';
    s.dataset.fg = '{{.Page}}';
    s.defer = true;
    document.body.appendChild(s);
  }, []);

  return (
    <button data-fg-cta="{{.Page}}" data-fg-variants={JSON.stringify(VARIANTS)}>
      {{.DefaultText}}
    </button>
  );
}
`

	rendered, err := renderTemplate("react", content, data)
	if err != nil {
		return nil, err
	}

	return []SnippetFile{
		{Filename: data.PagePascal + "CTA.tsx", Content: rendered},
	}, nil
}

func generateNextJS(data templateData) ([]SnippetFile, error) {
	content := `// app/{{.Page}}/page.tsx
import Script from 'next/script';

const VARIANTS: Record<string, string> = {{.VariantsJSON}};

export default function {{.PagePascal}}Page() {
  return (
    <main>
      <Script src="{{.ServerURL}}/ft.js" data-page="{{.Page}}" strategy="afterInteractive" />
      <button data-fg-cta="{{.Page}}" data-fg-variants={JSON.stringify(VARIANTS)}>
        {{.DefaultText}}
      </button>
    </main>
  );
}
`

	rendered, err := renderTemplate("nextjs", content, data)
	if err != nil {
		return nil, err
	}

	return []SnippetFile{
		{Filename: "page.tsx", Content: rendered},
	}, nil
}

// AllFrameworks returns all supported frameworks
func AllFrameworks() []Framework {
	return []Framework{
		FrameworkHTML,
		FrameworkNextJS,
		FrameworkReact,
	}
}
