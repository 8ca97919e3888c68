package server

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/wrenchbay/wrenchbay/internal/guard"
	"github.com/wrenchbay/wrenchbay/internal/rbac"
	"github.com/wrenchbay/wrenchbay/internal/records"
	"github.com/wrenchbay/wrenchbay/internal/scope"
)

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}} · Wrenchbay</title></head>
<body>
<header><h1>{{.Title}}</h1>{{if .User}}<span class="user">{{.User}}</span>{{end}}</header>
<main>{{.Body}}</main>
</body>
</html>
`))

var (
	loginBody = template.Must(template.New("login").Parse(
		`<p>Sign in to continue.</p><form method="get" action="{{.}}"><button type="submit">Continue</button></form>`))
	dashboardBody = template.Must(template.New("dashboard").Parse(
		`<nav><ul>{{range .}}{{.}}{{end}}</ul></nav>`))
	sectionBody = template.Must(template.New("section").Parse(
		`<div class="toolbar">{{.Create}}{{.Delete}}</div><table class="records" data-kind="{{.Kind}}"></table>`))
	superAdminBody = template.Must(template.New("superadmin").Parse(
		`{{if .Elevated}}<p class="elevated">Cross-organization access is active.</p>{{else}}<p class="elevated-required">Sign in to an elevated session to see every organization.</p>{{end}}{{.Create}}`))
)

type pageData struct {
	Title string
	User  string
	Body  template.HTML
}

// pages serves the HTML shell. Every route sits behind the navigation guard
// and individual actions behind the render guard.
type pages struct {
	nav    *guard.Navigator
	render *guard.Renderer
}

func newPages(nav *guard.Navigator, render *guard.Renderer) *pages {
	return &pages{nav: nav, render: render}
}

func (p *pages) register(mux *http.ServeMux, chain func(http.Handler) http.Handler) {
	page := func(pattern string, req guard.NavRequest, h http.HandlerFunc) {
		mux.Handle(pattern, chain(p.nav.Protect(req)(h)))
	}

	page("GET /login", guard.NavRequest{}, p.handleLogin)
	page("GET /{$}", guard.NavRequest{}, p.handleDashboard)
	page("GET /superadmin", guard.NavRequest{
		Resource: rbac.ResourceOrganizations,
		Action:   rbac.ActionView,
	}, p.handleSuperAdmin)

	for _, k := range records.Kinds() {
		page("GET /"+k.Name, guard.NavRequest{
			Resource: k.Resource,
			Action:   rbac.ActionView,
		}, p.handleSection(k))
	}
}

func (p *pages) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body bytes.Buffer
	if err := loginBody.Execute(&body, guard.ResumePath(r, "/")); err != nil {
		p.fail(w, err)
		return
	}
	p.write(w, r, "Sign in", template.HTML(body.String())) // #nosec G203 -- rendered by html/template
}

func (p *pages) handleDashboard(w http.ResponseWriter, r *http.Request) {
	pass := scope.PassFrom(r.Context())

	var links []template.HTML
	for _, k := range records.Kinds() {
		link := template.HTML(`<li><a href="/` + template.HTMLEscapeString(k.Name) + `">` + template.HTMLEscapeString(k.Name) + `</a></li>`) // #nosec G203 -- escaped
		item, err := p.render.HTML(pass, guard.RenderProps{Resource: k.Resource, Action: rbac.ActionView}, guard.Static(link))
		if err != nil {
			p.fail(w, err)
			return
		}
		if item != "" {
			links = append(links, item)
		}
	}

	var body bytes.Buffer
	if err := dashboardBody.Execute(&body, links); err != nil {
		p.fail(w, err)
		return
	}
	p.write(w, r, "Dashboard", template.HTML(body.String())) // #nosec G203 -- rendered by html/template
}

func (p *pages) handleSection(k records.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pass := scope.PassFrom(r.Context())

		create, err := p.render.HTML(pass, guard.RenderProps{
			Resource:   k.Resource,
			Action:     rbac.ActionCreate,
			ShowDenied: true,
		}, guard.Static(`<button type="button" data-action="create">New</button>`))
		if err != nil {
			p.fail(w, err)
			return
		}
		del, err := p.render.HTML(pass, guard.RenderProps{
			Resource: k.Resource,
			Action:   rbac.ActionDelete,
		}, guard.Static(`<button type="button" data-action="delete">Delete</button>`))
		if err != nil {
			p.fail(w, err)
			return
		}

		var body bytes.Buffer
		err = sectionBody.Execute(&body, map[string]any{"Kind": k.Name, "Create": create, "Delete": del})
		if err != nil {
			p.fail(w, err)
			return
		}
		p.write(w, r, k.Name, template.HTML(body.String())) // #nosec G203 -- rendered by html/template
	}
}

func (p *pages) handleSuperAdmin(w http.ResponseWriter, r *http.Request) {
	pass := scope.PassFrom(r.Context())

	create, err := p.render.HTML(pass, guard.RenderProps{
		Resource: rbac.ResourceOrganizations,
		Action:   rbac.ActionCreate,
	}, guard.Static(`<button type="button" data-action="create-organization">New organization</button>`))
	if err != nil {
		p.fail(w, err)
		return
	}

	var body bytes.Buffer
	if err := superAdminBody.Execute(&body, map[string]any{"Elevated": pass.Elevated, "Create": create}); err != nil {
		p.fail(w, err)
		return
	}
	p.write(w, r, "Superadmin", template.HTML(body.String())) // #nosec G203 -- rendered by html/template
}

func (p *pages) write(w http.ResponseWriter, r *http.Request, title string, body template.HTML) {
	data := pageData{Title: title, Body: body}
	if id := scope.PassFrom(r.Context()).Identity; id != nil {
		data.User = id.Email
	}

	var buf bytes.Buffer
	if err := layout.Execute(&buf, data); err != nil {
		p.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (p *pages) fail(w http.ResponseWriter, err error) {
	slog.Error("rendering page", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
