// Package status is the read-only HTTP status surface spec.md §6
// describes: three HTML views over a kv.LocalKV snapshot, served
// directly on valyala/fasthttp the way the teacher's own HTTP-facing
// packages favor fasthttp over net/http for the intra-cluster path.
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package status

import (
	"fmt"
	"html"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/sandialabs/kelpie/iom"
	"github.com/sandialabs/kelpie/kv"
)

// Server answers the three status routes spec.md §6 names, plus
// /metrics when a stats handler is attached (SPEC_FULL.md §6).
type Server struct {
	local      *kv.LocalKV
	registry   *iom.Registry
	metricsFwd fasthttp.RequestHandler // optional, wired by callers that also run cmn/stats
}

// New builds a Server over local; registry may be nil if the process
// runs no IOMs.
func New(local *kv.LocalKV, registry *iom.Registry) *Server {
	return &Server{local: local, registry: registry}
}

// WithMetrics forwards GET /metrics to fwd (typically
// promhttp.HandlerFor wrapped in a fasthttpadaptor, supplied by the
// caller so this package does not need to import cmn/stats itself).
func (s *Server) WithMetrics(fwd fasthttp.RequestHandler) *Server {
	s.metricsFwd = fwd
	return s
}

// Handler returns the fasthttp.RequestHandler to pass to
// fasthttp.ListenAndServe/fasthttp.Server.Handler.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		switch {
		case path == "/status/rows":
			s.serveRows(ctx)
		case strings.HasPrefix(path, "/status/row/"):
			s.serveRow(ctx, strings.TrimPrefix(path, "/status/row/"))
		case path == "/status/ioms":
			s.serveIOMs(ctx)
		case path == "/metrics" && s.metricsFwd != nil:
			s.metricsFwd(ctx)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetContentType("text/plain; charset=utf-8")
			fmt.Fprintf(ctx, "no such status route: %s", path)
		}
	}
}

func (s *Server) serveRows(ctx *fasthttp.RequestCtx) {
	rows := s.local.Snapshot()
	var b strings.Builder
	b.WriteString("<html><body><h1>LocalKV rows</h1><table border=1>")
	b.WriteString("<tr><th>row</th><th>num_cols</th><th>first_col</th><th>user_bytes</th></tr>")
	for _, row := range rows {
		firstCol := ""
		totalBytes := 0
		if len(row.Columns) > 0 {
			firstCol = row.Columns[0].K2
		}
		for _, col := range row.Columns {
			totalBytes += col.UserBytes
		}
		fmt.Fprintf(&b, "<tr><td><a href=\"/status/row/%s\">%s</a></td><td>%d</td><td>%s</td><td>%d</td></tr>",
			html.EscapeString(row.K1), html.EscapeString(row.K1), len(row.Columns), html.EscapeString(firstCol), totalBytes)
	}
	b.WriteString("</table></body></html>")
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBodyString(b.String())
}

func (s *Server) serveRow(ctx *fasthttp.RequestCtx, rowName string) {
	rows := s.local.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "<html><body><h1>Row %s</h1><table border=1>", html.EscapeString(rowName))
	b.WriteString("<tr><th>col</th><th>bytes</th><th>availability</th><th>dependency_count</th></tr>")
	found := false
	for _, row := range rows {
		if row.K1 != rowName {
			continue
		}
		found = true
		for _, col := range row.Columns {
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td><td>%s</td><td>%d</td></tr>",
				html.EscapeString(col.K2), col.UserBytes, col.Availability, col.Dependencies)
		}
	}
	b.WriteString("</table></body></html>")
	if !found {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBodyString(b.String())
}

func (s *Server) serveIOMs(ctx *fasthttp.RequestCtx) {
	var b strings.Builder
	b.WriteString("<html><body><h1>Registered IOMs</h1><table border=1>")
	b.WriteString("<tr><th>name</th><th>settings</th></tr>")
	if s.registry != nil {
		for _, name := range s.registry.Names() {
			backend, ok := s.registry.Lookup(name)
			if !ok {
				continue
			}
			var settings []string
			for k, v := range backend.Settings() {
				settings = append(settings, fmt.Sprintf("%s=%s", k, v))
			}
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td></tr>", html.EscapeString(name), html.EscapeString(strings.Join(settings, ", ")))
		}
	}
	b.WriteString("</table></body></html>")
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBodyString(b.String())
}
