package maildispatch

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/osteele/liquid"
)

const letterTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><style>
body { font-family: Georgia, serif; font-size: 11pt; margin: 0.75in; }
.photos img { max-width: 3in; margin: 4pt; }
</style></head>
<body>
<p>{{ date }}</p>
<p>{{ to.name | escape }}<br>{{ to.line1 | escape }}<br>{% if to.line2 != "" %}{{ to.line2 | escape }}<br>{% endif %}{{ to.city | escape }}, {{ to.state | escape }} {{ to.zip | escape }}</p>
<p>Re: Appeal of citation {{ ticket_number | escape }}{% if city_name != "" %} ({{ city_name | escape }}){% endif %}</p>
{{ statement | paragraphs }}
<p>Sincerely,<br>{{ from.name | escape }}<br>{{ from.line1 | escape }}<br>{% if from.line2 != "" %}{{ from.line2 | escape }}<br>{% endif %}{{ from.city | escape }}, {{ from.state | escape }} {{ from.zip | escape }}</p>
{% if photos.size > 0 %}<div class="photos"><p>Enclosed evidence ({{ photos.size }} photo{% if photos.size > 1 %}s{% endif %}):</p>
{% for url in photos %}<img src="{{ url | escape }}">
{% endfor %}</div>{% endif %}
</body>
</html>
`

// letterRenderer renders the appeal letter. The statement is escaped and
// split into paragraphs by the custom filter; nothing user supplied is
// emitted raw.
type letterRenderer struct {
	tpl *liquid.Template
}

func newLetterRenderer() (*letterRenderer, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("paragraphs", paragraphs)
	tpl, err := engine.ParseString(letterTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse letter template: %w", err)
	}
	return &letterRenderer{tpl: tpl}, nil
}

type letterData struct {
	Date         time.Time
	TicketNumber string
	CityName     string
	Statement    string
	To           map[string]any
	From         map[string]any
	PhotoURLs    []string
}

func (r *letterRenderer) render(d letterData) (string, error) {
	photos := make([]any, len(d.PhotoURLs))
	for i, u := range d.PhotoURLs {
		photos[i] = u
	}
	out, err := r.tpl.RenderString(liquid.Bindings{
		"date":          d.Date.Format("January 2, 2006"),
		"ticket_number": d.TicketNumber,
		"city_name":     d.CityName,
		"statement":     d.Statement,
		"to":            d.To,
		"from":          d.From,
		"photos":        photos,
	})
	if err != nil {
		return "", fmt.Errorf("render letter: %w", err)
	}
	return out, nil
}

func paragraphs(s string) string {
	var b strings.Builder
	for _, p := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		b.WriteString("</p>\n")
	}
	return b.String()
}
