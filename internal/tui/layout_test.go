package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/csheth/actes/internal/actes"
)

func TestPageLayoutUpdate(t *testing.T) {
	cases := []struct {
		name           string
		width          int
		height         int
		header         int
		footer         int
		viewportWidth  int
		viewportHeight int
	}{
		{name: "narrow", width: 80, height: 24, header: 0, footer: 3, viewportWidth: 78, viewportHeight: 19},
		{name: "wide with header", width: 200, height: 40, header: 5, footer: 3, viewportWidth: 198, viewportHeight: 30},
		{name: "tiny", width: 30, height: 10, header: 4, footer: 3, viewportWidth: 40, viewportHeight: 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			layout := newPageLayout()
			layout.Update(tc.width, tc.height, tc.header, tc.footer)
			if layout.viewportWidth != tc.viewportWidth {
				t.Fatalf("viewport width mismatch: got %d want %d", layout.viewportWidth, tc.viewportWidth)
			}
			if layout.viewportHeight != tc.viewportHeight {
				t.Fatalf("viewport height mismatch: got %d want %d", layout.viewportHeight, tc.viewportHeight)
			}
		})
	}
}

func TestRenderActeHeader(t *testing.T) {
	if got := renderActeHeader(nil, 80); got != "" {
		t.Fatalf("nil acte should render nothing, got %q", got)
	}
	acte := &actes.Acte{
		Titre:           "Arrêté portant réglementation du stationnement rue des Lilas",
		Type:            "arrêté",
		Service:         "Voirie",
		DatePublication: actes.Date{Time: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		Resume:          strings.Repeat("stationnement interdit ", 20),
	}
	header := renderActeHeader(acte, 60)
	for _, want := range []string{"Arrêté portant", "arrêté · Voirie · published 05/03/2024", "…"} {
		if !strings.Contains(header, want) {
			t.Fatalf("header missing %q:\n%s", want, header)
		}
	}
	if heightOf(header) < 4 {
		t.Fatalf("expected wrapped header, got %d lines", heightOf(header))
	}
}

func TestPreviewText(t *testing.T) {
	if got := previewText("  court  ", 10); got != "court" {
		t.Fatalf("previewText short = %q", got)
	}
	if got := previewText("abcdefghij", 4); got != "abcd…" {
		t.Fatalf("previewText long = %q", got)
	}
}
