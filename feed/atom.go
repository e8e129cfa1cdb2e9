// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

// Package feed renders a domain's delta history as an Atom document.
package feed

import (
	"encoding/xml"
	"html"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/autodns/deltawatch/core"
)

const (
	ContentType = "application/atom+xml; charset=utf-8"

	// Cadence promised to subscribers in the placeholder entry.
	ReportWindow = 24 * time.Hour
)

type Text struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

type Link struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

type Author struct {
	Name string `xml:"name"`
}

type Entry struct {
	Base      string `xml:"http://www.w3.org/XML/1998/namespace base,attr"`
	Title     Text   `xml:"title"`
	ID        string `xml:"id"`
	Updated   string `xml:"updated"`
	Published string `xml:"published"`
	Link      Link   `xml:"link"`
	Author    Author `xml:"author"`
	Content   *Text  `xml:"content,omitempty"`
}

type Feed struct {
	XMLName xml.Name `xml:"http://www.w3.org/2005/Atom feed"`
	Title   Text     `xml:"title"`
	ID      string   `xml:"id"`
	Updated string   `xml:"updated"`
	Links   []Link   `xml:"link"`
	Entries []Entry  `xml:"entry"`
}

// Encode writes the document with its XML declaration.
func (f *Feed) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>`+"\n"); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}

// Renderer is a pure mapping from repository state to a Feed. Now is only
// consulted for the placeholder timestamp.
type Renderer struct {
	BaseURL string

	// WebURL hosts the /search and /analyse views entries link to. Those views
	// belong to the companion web site and are not served here. Defaults to
	// BaseURL.
	WebURL string

	Generator string
	Now       func() time.Time
}

func NewRenderer(baseURL string) *Renderer {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Renderer{
		BaseURL:   baseURL,
		WebURL:    baseURL,
		Generator: "deltawatch",
		Now:       time.Now,
	}
}

// SetWebURL points the search and analyse links at webURL. Empty keeps the default.
func (r *Renderer) SetWebURL(webURL string) *Renderer {
	if webURL != "" {
		r.WebURL = strings.TrimSuffix(webURL, "/")
	}
	return r
}

func (r *Renderer) FeedURL(key core.DomainKey) string { return r.BaseURL + "/atom/" + key.Token() }

func (r *Renderer) SearchURL(key core.DomainKey) string { return r.WebURL + "/search/" + key.Token() }

func (r *Renderer) AnalyseURL(key core.DomainKey) string { return r.WebURL + "/analyse/" + key.Token() }

func (r *Renderer) Render(key core.DomainKey, rec *core.DomainRecord) *Feed {
	var (
		feedURL   = r.FeedURL(key)
		searchURL = r.SearchURL(key)
		display   = key.Display()
	)

	f := &Feed{
		Title: Text{Type: "text", Body: r.Generator + " report for " + display},
		ID:    feedURL,
		Links: []Link{
			{Href: searchURL},
			{Href: feedURL, Rel: "self"},
		},
	}

	entry := func(title, id string, at time.Time, content *Text) Entry {
		ts := stamp(at)
		return Entry{
			Base:      feedURL,
			Title:     Text{Type: "text", Body: title},
			ID:        id,
			Updated:   ts,
			Published: ts,
			Link:      Link{Href: searchURL},
			Author:    Author{Name: r.Generator},
			Content:   content,
		}
	}

	var history []core.DeltaEvent
	if rec != nil {
		history = rec.History
	}

	if len(history) == 0 {
		today := r.Now().UTC().Truncate(24 * time.Hour)
		f.Updated = stamp(today)
		f.Entries = []Entry{entry(
			"No report yet for "+display,
			"waiting:"+string(key),
			today,
			&Text{Type: "html", Body: r.placeholder(display)},
		)}
		return f
	}

	// Newest first; events sharing a timestamp keep New, Updated, Deleted order.
	events := slices.Clone(history)
	slices.SortStableFunc(events, func(a, b core.DeltaEvent) int { return b.At.Compare(a.At) })

	f.Updated = stamp(events[0].At)
	for _, e := range events {
		host := core.DomainKey(e.Hostname)
		switch e.Kind {
		case core.KindNew:
			f.Entries = append(f.Entries, entry("NEW: "+host.Display(), e.ID(), e.At,
				&Text{Type: "html", Body: r.report(e.NewAddress, host)}))
		case core.KindUpdated:
			f.Entries = append(f.Entries, entry("UPDATED: "+host.Display(), e.ID(), e.At,
				&Text{Type: "html", Body: r.report(e.OldAddress+" > "+e.NewAddress, host)}))
		case core.KindDeleted:
			f.Entries = append(f.Entries, entry("DELETED: "+host.Display(), e.ID(), e.At, nil))
		}
	}
	return f
}

func (r *Renderer) report(ip string, host core.DomainKey) string {
	return "<h1>IP: " + html.EscapeString(ip) + "</h1>\n" +
		`<a href="` + html.EscapeString(r.AnalyseURL(host)) + `">analyse</a>`
}

func (r *Renderer) placeholder(display string) string {
	window := strconv.Itoa(int(ReportWindow.Hours()))
	return "<p>\n    This is the placeholder for your " + html.EscapeString(r.Generator) +
		" report for " + html.EscapeString(display) + ".\n</p>\n" +
		"<p>\n    Your first report will be generated within " + window + " hours.\n</p>\n" +
		"<p>\n    <strong>Important:</strong> The &quot;delta&quot; between each report is generated\n" +
		"    every " + window + " hours. If your feed reader polls this feed less often than that,\n" +
		"    you will miss out on changes.\n</p>"
}

func stamp(t time.Time) string { return t.UTC().Format("2006-01-02T15:04:05Z") }
