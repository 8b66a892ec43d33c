// Package prompts assembles the literal prompt handed to the generation
// gateway from a normalized request and its section list.
package prompts

import (
	"strings"
	"text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/tbourn/go-report-backend/internal/fingerprint"
	"github.com/tbourn/go-report-backend/internal/generation"
	"github.com/tbourn/go-report-backend/internal/selection"
)

const systemText = `You are an experienced astrologer and numerologist. Write in {{.Language}}. ` +
	`Use plain paragraphs with a short heading per section, in the order given. Do not invent birth data.`

const userText = `{{if .Partner}}Compatibility report{{else}}Personal report{{end}}{{with .Mode}} ({{.}}){{end}}.
{{template "subject" .Subject}}{{with .Partner}}
Partner:
{{template "subject" .}}{{end}}
Sections:
{{range $i, $s := .Sections}}{{inc $i}}. {{$s}}
{{end}}`

const subjectText = `{{define "subject"}}- Birth date: {{.Date}}
{{with .Name}}- Name: {{.}}
{{end}}{{with .Place}}- Birth place: {{.}}
{{end}}{{with .Time}}- Birth time: {{.}}
{{end}}{{end}}`

var (
	systemTmpl = template.Must(template.New("system").Parse(systemText))
	userTmpl   = template.Must(template.Must(template.New("user").
			Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
			Parse(userText)).Parse(subjectText))
)

type subjectView struct {
	Date, Name, Place, Time string
}

type userView struct {
	Mode     string
	Subject  subjectView
	Partner  *subjectView
	Sections []string
}

func viewOf(s fingerprint.Subject) subjectView {
	return subjectView{
		Date:  s.Date.Format("02.01.2006"),
		Name:  s.Name.Value(),
		Place: s.Place.Value(),
		Time:  s.Time.Value(),
	}
}

// Build renders the system and user prompt for fp. locale is a BCP-47 tag;
// unknown or empty tags fall back to English.
func Build(fp fingerprint.Fingerprint, sections []selection.Section, locale string) (generation.Request, error) {
	v := userView{Mode: fp.Mode.Value(), Subject: viewOf(fp.Subject), Sections: selection.Strings(sections)}
	if fp.Partner != nil {
		p := viewOf(*fp.Partner)
		v.Partner = &p
	}

	var sys, user strings.Builder
	if err := systemTmpl.Execute(&sys, struct{ Language string }{LanguageName(locale)}); err != nil {
		return generation.Request{}, err
	}
	if err := userTmpl.Execute(&user, v); err != nil {
		return generation.Request{}, err
	}
	return generation.Request{System: sys.String(), Prompt: user.String()}, nil
}

// LanguageName returns the English display name of locale's base language.
func LanguageName(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil || tag == language.Und {
		return "English"
	}
	base, _ := tag.Base()
	if name := display.English.Languages().Name(base); name != "" {
		return name
	}
	return "English"
}
