// Package views renderiza las pantallas de interacción (login, consent,
// error) y la respuesta form_post de authorize.
package views

import (
	"bytes"
	"crypto/rand"
	"embed"
	"encoding/base64"
	"html/template"
	"net/http"
	"net/url"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

//go:embed templates/*.html
var templatesFS embed.FS

var tmpl = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type page struct {
	Lang  string
	Title string
	Nonce string
}

type LoginPage struct {
	page
	Action        string
	Resume        string
	LoginHint     string
	Error         string
	UsernameLabel string
	PasswordLabel string
	Submit        string
}

type ConsentPage struct {
	page
	Action        string
	Resume        string
	Scopes        []repository.Scope
	AllowRemember bool
	Error         string
	RememberLabel string
	Allow         string
	Deny          string
}

type ErrorPage struct {
	page
	Message   string
	RequestID string
}

type formPostPage struct {
	Action string
	Params url.Values
	Nonce  string
}

func nonce() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawStdEncoding.EncodeToString(b[:])
}

// render ejecuta en buffer para no mandar una página a medias.
func render(w http.ResponseWriter, r *http.Request, status int, name string, data any, n string) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		logger.From(r.Context()).Error("template render failed", logger.Component("views"), logger.String("template", name), logger.Err(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Content-Security-Policy", "default-src 'none'; style-src 'nonce-"+n+"'; script-src 'nonce-"+n+"'; form-action *; frame-ancestors 'none'")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func newPage(lang, title string) page { return page{Lang: lang, Title: title, Nonce: nonce()} }

func RenderLogin(w http.ResponseWriter, r *http.Request, status int, lang, title string, p LoginPage) {
	p.page = newPage(lang, title)
	render(w, r, status, "login", p, p.Nonce)
}

func RenderConsent(w http.ResponseWriter, r *http.Request, status int, lang, title string, p ConsentPage) {
	p.page = newPage(lang, title)
	render(w, r, status, "consent", p, p.Nonce)
}

func RenderError(w http.ResponseWriter, r *http.Request, status int, lang, title string, p ErrorPage) {
	p.page = newPage(lang, title)
	render(w, r, status, "error", p, p.Nonce)
}

// RenderFormPost entrega params al redirect_uri con un POST auto-enviado.
func RenderFormPost(w http.ResponseWriter, r *http.Request, action string, params url.Values) {
	n := nonce()
	render(w, r, http.StatusOK, "form_post", formPostPage{Action: action, Params: params, Nonce: n}, n)
}
