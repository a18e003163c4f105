package notifications

import (
	"bytes"
	htmltemplate "html/template"
	"math"
	"strconv"
	"text/template"
	"time"
)

type message struct {
	Subject string
	Text    string
	HTML    string
}

type templateData struct {
	AppName  string
	Email    string
	Secret   string
	Lifetime string
}

var (
	verificationText = template.Must(template.New("verification.txt").Parse(`Hello,

Your {{.AppName}} verification code is:

{{.Secret}}

The code expires in {{.Lifetime}}. If you did not create an account, ignore this email.
`))

	verificationHTML = htmltemplate.Must(htmltemplate.New("verification.html").Parse(`<html>
<body>
<p>Hello,</p>
<p>Your {{.AppName}} verification code is:</p>
<p style="font-size:24px;font-weight:bold;letter-spacing:4px">{{.Secret}}</p>
<p>The code expires in {{.Lifetime}}. If you did not create an account, ignore this email.</p>
</body>
</html>
`))

	resetText = template.Must(template.New("reset.txt").Parse(`Hello,

A password reset was requested for {{.Email}}. Use this token to choose a new password:

{{.Secret}}

The token expires in {{.Lifetime}}. If you did not ask for a reset, ignore this email.
`))

	resetHTML = htmltemplate.Must(htmltemplate.New("reset.html").Parse(`<html>
<body>
<p>Hello,</p>
<p>A password reset was requested for {{.Email}}. Use this token to choose a new password:</p>
<p><code>{{.Secret}}</code></p>
<p>The token expires in {{.Lifetime}}. If you did not ask for a reset, ignore this email.</p>
</body>
</html>
`))
)

type renderer struct {
	appName string
	now     func() time.Time
}

func (r renderer) verificationCode(in VerificationCodeInput) (message, error) {
	data := templateData{
		AppName:  r.appName,
		Email:    in.Email,
		Secret:   in.Code,
		Lifetime: lifetime(in.ExpiresAt.Sub(r.now())),
	}

	return render(r.appName+" email verification code", verificationText, verificationHTML, data)
}

func (r renderer) passwordReset(in PasswordResetInput) (message, error) {
	data := templateData{
		AppName:  r.appName,
		Email:    in.Email,
		Secret:   in.Token,
		Lifetime: lifetime(in.ExpiresAt.Sub(r.now())),
	}

	return render(r.appName+" password reset", resetText, resetHTML, data)
}

func render(subject string, text *template.Template, html *htmltemplate.Template, data templateData) (message, error) {
	var tb, hb bytes.Buffer

	if err := text.Execute(&tb, data); err != nil {
		return message{}, err
	}

	if err := html.Execute(&hb, data); err != nil {
		return message{}, err
	}

	return message{Subject: subject, Text: tb.String(), HTML: hb.String()}, nil
}

// lifetime renders a remaining duration the way a person would say it.
func lifetime(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}

	if d < time.Hour {
		return plural(int(math.Round(d.Minutes())), "minute")
	}

	return plural(int(math.Round(d.Hours())), "hour")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
