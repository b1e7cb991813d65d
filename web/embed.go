// Package web embeds the server-rendered views and static assets.
package web

import "embed"

// TemplatesFS embeds the HTML views.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds static assets (css).
//
//go:embed static/*
var StaticFS embed.FS
