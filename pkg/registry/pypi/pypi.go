// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package pypi provides a PEP-503 simple-index client, used both to
// resolve candidates from pypi.org (or a mirror) and, with a different base
// URL, against the local wheel cache's own simple index (spec.md §4.5,
// §4.11), modeled on the teacher's pkg/registry/pypi HTTPRegistry.
package pypi

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/fromager-project/fromager/internal/httpx"
	"github.com/fromager-project/fromager/internal/nameutil"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

// DefaultIndexURL is pypi.org's PEP-503 simple index.
const DefaultIndexURL = "https://pypi.org/simple"

// Link is one entry from a project's simple-index page: a file name and the
// href it was served under.
type Link struct {
	Filename string
	Href     string
}

// Registry is a PEP-503 simple-index client.
type Registry struct {
	Client  httpx.BasicClient
	BaseURL string // e.g. https://pypi.org/simple, no trailing slash
}

// Project lists every file the index serves for the canonical project name.
func (r Registry) Project(ctx context.Context, name string) ([]Link, error) {
	canonical, err := nameutil.Canonicalize(name)
	if err != nil {
		return nil, err
	}
	u := strings.TrimSuffix(r.BaseURL, "/") + "/" + path.Join(canonical) + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching simple index for %s", canonical)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("simple index error for %s: %s", canonical, resp.Status)
	}
	return parseLinks(resp.Body)
}

func parseLinks(body io.Reader) ([]Link, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return nil, errors.Wrap(err, "parsing simple index HTML")
	}
	var links []Link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href, text string
			for _, a := range n.Attr {
				if a.Key == "href" {
					href = a.Val
				}
			}
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				text = strings.TrimSpace(n.FirstChild.Data)
			}
			if href != "" && text != "" {
				links = append(links, Link{Filename: text, Href: href})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

var sdistSuffixes = []string{".tar.gz", ".zip", ".tar.bz2", ".tgz"}

// IsWheel reports whether filename names a wheel artifact.
func IsWheel(filename string) bool { return strings.HasSuffix(filename, ".whl") }

// IsSdist reports whether filename names a source distribution.
func IsSdist(filename string) bool {
	for _, s := range sdistSuffixes {
		if strings.HasSuffix(filename, s) {
			return true
		}
	}
	return false
}

var wheelNameRE = regexp.MustCompile(`^([^-]+)-([^-]+)(?:-(\d[^-]*))?-([^-]+)-([^-]+)-([^-]+)\.whl$`)
var sdistNameRE = regexp.MustCompile(`^(.+)-([^-]+)\.(?:tar\.gz|zip|tar\.bz2|tgz)$`)

// ParsedFilename is the (name, version) decoded from a wheel or sdist
// filename per PEP 427/PEP 625 naming conventions.
type ParsedFilename struct {
	Name    string
	Version string
	IsWheel bool
}

// ParseFilename decodes a wheel or sdist filename into its project name and
// raw version string, used when resolving candidates from simple-index
// listings (spec.md §4.5).
func ParseFilename(filename string) (ParsedFilename, error) {
	if m := wheelNameRE.FindStringSubmatch(filename); m != nil {
		name, _ := nameutil.Canonicalize(strings.ReplaceAll(m[1], "_", "-"))
		return ParsedFilename{Name: name, Version: m[2], IsWheel: true}, nil
	}
	if m := sdistNameRE.FindStringSubmatch(filename); m != nil {
		name, _ := nameutil.Canonicalize(strings.ReplaceAll(m[1], "_", "-"))
		return ParsedFilename{Name: name, Version: m[2], IsWheel: false}, nil
	}
	return ParsedFilename{}, errors.Errorf("unrecognized artifact filename %q", filename)
}

// ResolveHref turns a (possibly relative) href from a simple-index page
// into an absolute URL against base.
func ResolveHref(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	h, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(h).String(), nil
}
