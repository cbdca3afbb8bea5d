package email

import (
	"bytes"
	"fmt"
	"html/template"
)

type page struct {
	subject string
	body    string
}

var pages = map[Template]page{
	Activation: {
		subject: "Activate your account",
		body: `<p>Hello {{.email}},</p>
<p>Welcome to Online Cinema. Confirm your address to activate your account:</p>
<p><a href="{{.link}}">Activate account</a></p>
<p>The link expires in {{.expires}}.</p>`,
	},
	ActivationComplete: {
		subject: "Your account is active",
		body: `<p>Hello {{.email}},</p>
<p>Your account has been activated. You can now <a href="{{.link}}">sign in</a>.</p>`,
	},
	PasswordReset: {
		subject: "Reset your password",
		body: `<p>Hello {{.email}},</p>
<p>Someone asked to reset the password of this account. If it was you, follow the link:</p>
<p><a href="{{.link}}">Choose a new password</a></p>
<p>The link expires in {{.expires}}. If you did not ask for it, ignore this email.</p>`,
	},
	PasswordResetComplete: {
		subject: "Your password was changed",
		body: `<p>Hello {{.email}},</p>
<p>Your password has been changed and every other session was signed out. <a href="{{.link}}">Sign in</a> with the new password.</p>`,
	},
	PaymentSuccess: {
		subject: "Payment received",
		body: `<p>Hello {{.email}},</p>
<p>We received your payment of {{.amount}} for order #{{.order_id}}.</p>
<ul>{{range .movies}}<li>{{.}}</li>{{end}}</ul>
<p>Enjoy the movies!</p>`,
	},
}

var templates = func() map[Template]*template.Template {
	out := make(map[Template]*template.Template, len(pages))
	for name, p := range pages {
		out[name] = template.Must(template.New(string(name)).Option("missingkey=zero").Parse(p.body))
	}
	return out
}()

// Render builds the message for tmpl.  The recipient is available to the
// template as .email unless data sets it.
func Render(tmpl Template, to string, data map[string]any) (Message, error) {
	t, ok := templates[tmpl]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", tmpl)
	}
	vars := make(map[string]any, len(data)+1)
	vars["email"] = to
	for k, v := range data {
		vars[k] = v
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", tmpl, err)
	}
	return Message{To: to, Subject: pages[tmpl].subject, HTML: buf.String()}, nil
}
