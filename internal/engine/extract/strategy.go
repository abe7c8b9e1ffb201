package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rendis/mapsift/internal/model"
)

// snapshot is one parsed read of a detail page.
type snapshot struct {
	doc  *goquery.Document
	text string
	url  string
}

// strategy reads one candidate value for a field. ok is false when the
// strategy found nothing usable.
type strategy[T any] func(s *snapshot) (v T, ok bool)

// rule fills one record field from a snapshot.
type rule struct {
	field string
	apply func(s *snapshot, rec *model.BusinessRecord)
}

// firstWins tries strategies in order and keeps the first present value.
func firstWins[T any](field string, set func(*model.BusinessRecord, T), strategies ...strategy[T]) rule {
	return rule{field: field, apply: func(s *snapshot, rec *model.BusinessRecord) {
		for _, st := range strategies {
			if v, ok := st(s); ok {
				set(rec, v)
				return
			}
		}
	}}
}

// accumulate runs every strategy and keeps all results.
func accumulate[T any](field string, add func(*model.BusinessRecord, T), strategies ...strategy[[]T]) rule {
	return rule{field: field, apply: func(s *snapshot, rec *model.BusinessRecord) {
		for _, st := range strategies {
			if vs, ok := st(s); ok {
				for _, v := range vs {
					add(rec, v)
				}
			}
		}
	}}
}

func textOf(selector string) strategy[string] {
	return func(s *snapshot) (string, bool) {
		t := strings.TrimSpace(s.doc.Find(selector).First().Text())
		return t, t != ""
	}
}

func attrOf(selector, attr string) strategy[string] {
	return func(s *snapshot) (string, bool) {
		v, _ := s.doc.Find(selector).First().Attr(attr)
		v = strings.TrimSpace(v)
		return v, v != ""
	}
}

// labelAfter reads an aria-label and drops a "Prefix:" lead-in.
func labelAfter(selector, prefix string) strategy[string] {
	return func(s *snapshot) (string, bool) {
		v, _ := s.doc.Find(selector).First().Attr("aria-label")
		v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), prefix))
		return v, v != ""
	}
}

// labelOrText prefers the aria-label (minus prefix) and falls back to text.
func labelOrText(selector, prefix string) strategy[string] {
	return func(s *snapshot) (string, bool) {
		sel := s.doc.Find(selector).First()
		if sel.Length() == 0 {
			return "", false
		}
		if v, ok := sel.Attr("aria-label"); ok {
			v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), prefix))
			if v != "" {
				return v, true
			}
		}
		t := strings.TrimSpace(sel.Text())
		return t, t != ""
	}
}

// buttonWithKeyword returns the text of the first button containing one of
// the keywords.
func buttonWithKeyword(keywords ...string) strategy[string] {
	return func(s *snapshot) (string, bool) {
		var found string
		s.doc.Find("button").EachWithBreak(func(_ int, b *goquery.Selection) bool {
			t := strings.TrimSpace(b.Text())
			for _, k := range keywords {
				if t != "" && strings.Contains(t, k) {
					found = t
					return false
				}
			}
			return true
		})
		return found, found != ""
	}
}

// labelMatch applies re to the aria-label (or alt) of every element matching
// selector and returns the first capture.
func labelMatch(selector string, re *regexp.Regexp) strategy[string] {
	return func(s *snapshot) (string, bool) {
		var found string
		s.doc.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			label, ok := el.Attr("aria-label")
			if !ok || label == "" {
				label, _ = el.Attr("alt")
			}
			if m := re.FindStringSubmatch(label); m != nil {
				found = m[1]
				return false
			}
			return true
		})
		return found, found != ""
	}
}

func textMatch(selector string, re *regexp.Regexp) strategy[string] {
	return func(s *snapshot) (string, bool) {
		if m := re.FindStringSubmatch(s.doc.Find(selector).First().Text()); m != nil {
			return m[1], true
		}
		return "", false
	}
}

func pageTextMatch(re *regexp.Regexp) strategy[string] {
	return func(s *snapshot) (string, bool) {
		if m := re.FindStringSubmatch(s.text); m != nil {
			return m[1], true
		}
		return "", false
	}
}

func urlMatch(re *regexp.Regexp) strategy[string] {
	return func(s *snapshot) (string, bool) {
		if m := re.FindStringSubmatch(s.url); m != nil {
			return m[1], true
		}
		return "", false
	}
}

func asFloat(st strategy[string]) strategy[float64] {
	return func(s *snapshot) (float64, bool) {
		v, ok := st(s)
		if !ok {
			return 0, false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f == 0 {
			return 0, false
		}
		return f, true
	}
}

func asCount(st strategy[string]) strategy[int] {
	return func(s *snapshot) (int, bool) {
		v, ok := st(s)
		if !ok {
			return 0, false
		}
		n, err := strconv.Atoi(strings.ReplaceAll(v, ",", ""))
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	}
}

// beforeSeparator keeps the part of a value before the first "·".
func beforeSeparator(st strategy[string]) strategy[string] {
	return func(s *snapshot) (string, bool) {
		v, ok := st(s)
		if !ok {
			return "", false
		}
		v, _, _ = strings.Cut(v, "·")
		v = strings.TrimSpace(v)
		return v, v != ""
	}
}
