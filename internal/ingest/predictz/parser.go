package predictz

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrListingNotFound means the page has no recognizable listing container,
// either because the layout drifted or because there are no matches that day.
var ErrListingNotFound = errors.New("listing container not found")

// listingSelectors are tried most specific first; the last one is the
// substring fallback
var listingSelectors = []string{
	"div.pttable.mb30",
	"div.pttable",
	"div[class*='pttable']",
}

var predictionPattern = regexp.MustCompile(`^(Home|Away|Draw)\s*(\d+)-(\d+)`)

// BlockKind is the role a listing child block plays
type BlockKind int

const (
	BlockUnrecognized BlockKind = iota
	BlockLeagueHeader
	BlockMatchRow
)

func (k BlockKind) String() string {
	switch k {
	case BlockLeagueHeader:
		return "league_header"
	case BlockMatchRow:
		return "match_row"
	default:
		return "unrecognized"
	}
}

// RawMatch is one match tuple as it appears on the listing page
type RawMatch struct {
	League        string
	HomeTeam      string
	AwayTeam      string
	PredictedHome *int
	PredictedAway *int
	DetailLink    string
	Date          time.Time
}

// SkippedRow records a match row that could not be parsed
type SkippedRow struct {
	League string
	Nested bool
	Reason string
}

// ListingReport is the outcome of parsing one listing page
type ListingReport struct {
	Matches []RawMatch
	Skipped []SkippedRow
}

// ClassifyBlock decides a block's role from its marker classes
func ClassifyBlock(s *goquery.Selection) BlockKind {
	switch {
	case s.HasClass("pttrnh") && s.HasClass("ptttl"):
		return BlockLeagueHeader
	case s.HasClass("pttr") && s.HasClass("ptcnt"):
		return BlockMatchRow
	default:
		return BlockUnrecognized
	}
}

// nestedGroup returns the full-width sub-container some header blocks carry
// with their own header/row sequence, or nil.
func nestedGroup(s *goquery.Selection) *goquery.Selection {
	if !s.HasClass("pttrnh") {
		return nil
	}
	group := s.Find("div.w100p").First()
	if group.Length() == 0 {
		return nil
	}
	return group
}

// FindListing locates the listing container in a parsed document
func FindListing(doc *goquery.Document) (*goquery.Selection, error) {
	for _, sel := range listingSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found, nil
		}
	}
	return nil, ErrListingNotFound
}

// ParseListing extracts match tuples from a rendered listing page. Every
// tuple is stamped with date. A page without a listing container returns
// ErrListingNotFound; malformed rows are skipped and reported.
func ParseListing(htmlContent string, date time.Time) (*ListingReport, error) {
	doc, err := ParseHTML(htmlContent)
	if err != nil {
		return nil, err
	}

	container, err := FindListing(doc)
	if err != nil {
		return nil, err
	}

	state := foldBlocks(foldState{date: date}, container.Children())
	return &state.report, nil
}

// foldState is the accumulator threaded through a block sequence
type foldState struct {
	league string
	date   time.Time
	nested bool
	report ListingReport
}

// foldBlocks walks blocks in document order. A nested group is folded with a
// fresh accumulator so its league cursor never leaks into the outer one.
func foldBlocks(state foldState, blocks *goquery.Selection) foldState {
	blocks.Each(func(_ int, block *goquery.Selection) {
		state = step(state, block)
	})
	return state
}

func step(state foldState, block *goquery.Selection) foldState {
	switch ClassifyBlock(block) {
	case BlockLeagueHeader:
		state.league = leagueName(block)
	case BlockMatchRow:
		match, err := parseMatchRow(block)
		if err != nil {
			state.report.Skipped = append(state.report.Skipped, SkippedRow{
				League: state.league,
				Nested: state.nested,
				Reason: err.Error(),
			})
			break
		}
		match.League = state.league
		match.Date = state.date
		state.report.Matches = append(state.report.Matches, match)
	}

	if group := nestedGroup(block); group != nil {
		inner := foldBlocks(foldState{date: state.date, nested: true}, group.ChildrenFiltered("div"))
		state.report.Matches = append(state.report.Matches, inner.report.Matches...)
		state.report.Skipped = append(state.report.Skipped, inner.report.Skipped...)
	}

	return state
}

func leagueName(block *goquery.Selection) string {
	return strings.TrimSpace(block.Find("h2").First().Text())
}

// parseMatchRow reads team names, the prediction and the detail link
func parseMatchRow(block *goquery.Selection) (RawMatch, error) {
	home, err := requiredText(block, "div.ptmobh")
	if err != nil {
		return RawMatch{}, fmt.Errorf("home team: %w", err)
	}
	away, err := requiredText(block, "div.ptmoba")
	if err != nil {
		return RawMatch{}, fmt.Errorf("away team: %w", err)
	}

	match := RawMatch{HomeTeam: home, AwayTeam: away}
	match.PredictedHome, match.PredictedAway = ParsePrediction(block.Find("div.ptprd").First().Text())

	if href, ok := block.Find("div.pttd.ptgame a").First().Attr("href"); ok {
		match.DetailLink = strings.TrimSpace(href)
	}

	return match, nil
}

func requiredText(block *goquery.Selection, selector string) (string, error) {
	el := block.Find(selector).First()
	if el.Length() == 0 {
		return "", fmt.Errorf("missing %s", selector)
	}
	text := strings.TrimSpace(el.Text())
	if text == "" {
		return "", fmt.Errorf("empty %s", selector)
	}
	return text, nil
}

// ParsePrediction reads "Home 2-1", "Draw 1-1", "Away0-2". Anything else
// yields nil scores.
func ParsePrediction(text string) (*int, *int) {
	m := predictionPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, nil
	}
	home, errHome := strconv.Atoi(m[2])
	away, errAway := strconv.Atoi(m[3])
	if errHome != nil || errAway != nil {
		return nil, nil
	}
	return &home, &away
}
