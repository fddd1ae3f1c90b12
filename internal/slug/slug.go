// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug derives URL-safe category slugs from display names.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// separators are runs of whitespace, underscores or hyphens.
	separators = regexp.MustCompile(`[\s_-]+`)
	// disallowed matches anything left that isn't a-z, 0-9 or a hyphen.
	disallowed = regexp.MustCompile(`[^a-z0-9-]`)
	// multipleHyphens collapses consecutive hyphens into one.
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// foldMarks decomposes accented letters and drops the combining marks,
// so "Café" becomes "Cafe".
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Generate returns the slug for name. The result is deterministic, so two
// categories whose names differ only by case, accents or punctuation share
// a slug and collide on insert.
// Example: "Téléphones & Tablettes" → "telephones-tablettes"
func Generate(name string) string {
	folded, _, err := transform.String(foldMarks, name)
	if err != nil {
		folded = name
	}

	result := strings.ToLower(strings.TrimSpace(folded))
	result = strings.ReplaceAll(result, "&", " ")
	result = separators.ReplaceAllString(result, "-")
	result = disallowed.ReplaceAllString(result, "")
	result = multipleHyphens.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")
	return result
}
