package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

const layout = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #2f6f4f; padding: 24px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 22px;">{{block "title" .}}Thriftian{{end}}</h1>
	</div>
	<div style="background: #fff; padding: 24px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		{{block "body" .}}{{end}}
	</div>
	<p style="font-size: 12px; color: #999; text-align: center;">Thriftian Marketplace</p>
</body>
</html>`

var bodies = map[string]string{
	TemplateOrderConfirmation: `{{define "title"}}Thank you for your order{{end}}
{{define "body"}}<p>Hi {{.buyer_name}},</p>
<p>We received your order <strong style="font-family: monospace;">{{.order_id}}</strong>. Payment is Cash on Delivery.</p>
<ul>{{range lines .items}}<li>{{.}}</li>{{end}}</ul>
<p><strong>Total: ₱{{.order_total}}</strong></p>{{end}}`,

	TemplateTrackingUpdate: `{{define "title"}}Your order has shipped{{end}}
{{define "body"}}<p>Hi {{.buyer_name}},</p>
<p>Order <strong style="font-family: monospace;">{{.order_id}}</strong> is on its way.</p>
<p>Tracking number: <strong>{{.tracking_number}}</strong></p>{{end}}`,

	TemplateDisputeAlert: `{{define "title"}}A dispute was opened{{end}}
{{define "body"}}<p>Hi {{.recipient_name}},</p>
<p>The buyer opened a dispute for order <strong style="font-family: monospace;">{{.order_id}}</strong>.</p>
<blockquote style="border-left: 3px solid #ccc; padding-left: 12px; color: #555;">{{.reason}}</blockquote>
<p>An admin will review it shortly.</p>{{end}}`,
}

var funcs = template.FuncMap{
	"lines": func(s string) []string {
		if s == "" {
			return nil
		}
		return strings.Split(s, "\n")
	},
}

var rendered = mustParse()

func mustParse() map[string]*template.Template {
	out := make(map[string]*template.Template, len(bodies))
	for name, body := range bodies {
		t := template.Must(template.New(name).Funcs(funcs).Parse(layout))
		out[name] = template.Must(t.Parse(body))
	}
	return out
}

// RenderHTML renders a known template with the intent data.
func RenderHTML(name string, data map[string]string) (string, error) {
	t, ok := rendered[name]
	if !ok {
		return "", fmt.Errorf("email: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
