package checker

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteqa/siteqa/internal/domain/run"
)

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true, "with": true, "by": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"have": true, "has": true, "had": true,
}

// ContentProbe measures text volume and readability proxies.
type ContentProbe struct {
	fetcher *Fetcher
}

func NewContentProbe(f *Fetcher) *ContentProbe { return &ContentProbe{fetcher: f} }

func (p *ContentProbe) Name() run.Kind { return run.KindContent }

func (p *ContentProbe) Check(ctx context.Context, target string) (run.CheckResult, error) {
	doc, resp, err := p.fetcher.Document(ctx, target, pageFetchTimeout)
	if err != nil {
		return run.NewProbeError(run.KindContent, err), nil
	}
	f := newFindings(run.KindContent, 100)
	analyzeContent(doc, len(resp.Body), f)
	return f.result(80, 50), nil
}

type keywordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

func analyzeContent(doc *goquery.Document, htmlLen int, f *findings) {
	title := trimmedText(doc.Find("title").First())
	desc := attrValue(doc.Find(`meta[name="description"]`), "content")

	doc.Find("script, style, noscript").Remove()
	words := strings.Fields(doc.Find("body").Text())
	if len(words) == 0 {
		words = strings.Fields(doc.Text())
	}
	text := strings.Join(words, " ")
	wordCount := len(words)
	f.set("word_count", wordCount)

	switch {
	case wordCount < 100:
		f.deduct(25, SeverityError, "Very thin content: only %d words detected", wordCount)
	case wordCount < 300:
		f.deduct(10, SeverityWarning, "Thin content: %d words (recommend 300+)", wordCount)
	}

	if title != "" && desc != "" && strings.EqualFold(title, desc) {
		f.deduct(10, SeverityWarning, "Title and meta description are identical")
	}

	var sentenceWords, sentences int
	for _, s := range sentenceSplit.Split(text, -1) {
		if n := len(strings.Fields(s)); n > 3 {
			sentences++
			sentenceWords += n
		}
	}
	avg := float64(sentenceWords) / float64(max(sentences, 1))
	f.set("avg_sentence_length", math.Round(avg*10)/10)
	f.set("sentence_count", sentences)
	if avg > 30 {
		f.issue(SeverityInfo, "Average sentence length is %.0f words, consider shorter sentences", avg)
	}

	ratio := 0.0
	if htmlLen > 0 {
		ratio = math.Round(float64(len(text))/float64(htmlLen)*1000) / 10
	}
	f.set("content_ratio_pct", ratio)
	if ratio < 10 {
		f.deduct(10, SeverityWarning, "Low content-to-HTML ratio (%.1f%%), page may be bloated", ratio)
	}

	freq := make(map[string]int)
	for _, w := range words {
		w = strings.Trim(strings.ToLower(w), ".,!?;:")
		if len(w) > 4 && !stopWords[w] {
			freq[w]++
		}
	}
	top := make([]keywordCount, 0, len(freq))
	for w, c := range freq {
		top = append(top, keywordCount{Word: w, Count: c})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Word < top[j].Word
	})
	top = top[:min(10, len(top))]
	f.set("top_keywords", top)

	if len(top) > 0 && wordCount > 0 {
		density := float64(top[0].Count) / float64(wordCount) * 100
		if density > 5 {
			f.deduct(10, SeverityWarning, "Possible keyword stuffing: '%s' appears %dx (%.1f%% density)", top[0].Word, top[0].Count, density)
		}
	}
}
