// Package report renders the markdown summary written at the end of a run.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// FileName is the object name the summary is stored under.
const FileName = "summary.md"

const timeLayout = "2006-01-02 15:04:05 MST"

// Summary is the end-of-run state worth reporting.
type Summary struct {
	RunID          string
	StartURL       string
	JobID          string
	CrawlBackend   string
	IntelBackend   string
	State          string
	StartedAt      time.Time
	FinishedAt     time.Time
	PagesProcessed int
	Written        int
	Skipped        int
	Failed         int
	FilesTotal     int
	Categories     []string
	CategoryCap    int
	Tags           []string
	TagCap         int
	PendingCursor  string
	Done           bool
	Err            string
}

// Resumable reports whether a later run can continue this one.
func (s Summary) Resumable() bool {
	return !s.Done && s.PendingCursor != ""
}

// Render returns the summary as markdown.
func Render(s Summary) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders the summary to w.
func Write(w io.Writer, s Summary) error {
	md := markdown.NewMarkdown(w)

	md.H1("Harvest Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + s.RunID + "`"},
			{"Start URL", s.StartURL},
			{"Crawl job", orDash(s.JobID)},
			{"Backends", s.CrawlBackend + " / " + s.IntelBackend},
			{"Started", formatTime(s.StartedAt)},
			{"Finished", formatTime(s.FinishedAt)},
			{"Duration", duration(s.StartedAt, s.FinishedAt)},
			{"State", s.State},
		},
	})
	md.PlainText("")

	writeStatus(md, s)
	writeDocuments(md, s)
	writeVocabulary(md, "Categories", s.Categories, s.CategoryCap)
	writeVocabulary(md, "Tags", s.Tags, s.TagCap)

	if err := md.Build(); err != nil {
		return fmt.Errorf("build summary: %w", err)
	}
	return nil
}

func writeStatus(md *markdown.Markdown, s Summary) {
	switch {
	case s.Err != "":
		md.Cautionf("The run failed: %s", s.Err)
	case s.Resumable():
		md.Importantf("The run stopped before the crawl finished. Run again to resume from `%s`.", s.PendingCursor)
	case s.Failed > 0:
		md.Warningf("%d document(s) could not be written and were rolled back.", s.Failed)
	default:
		md.Tip("The crawl completed and every document was written.")
	}
	md.PlainText("")
}

func writeDocuments(md *markdown.Markdown, s Summary) {
	md.H2("Documents")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"Written this run", strconv.Itoa(s.Written)},
			{"Skipped (already recorded)", strconv.Itoa(s.Skipped)},
			{"Rolled back", strconv.Itoa(s.Failed)},
			{"**Pages processed (all runs)**", "**" + strconv.Itoa(s.PagesProcessed) + "**"},
			{"**Files recorded**", "**" + strconv.Itoa(s.FilesTotal) + "**"},
		},
	})
	md.PlainText("")

	if s.Written+s.Skipped+s.Failed == 0 {
		return
	}
	chart := piechart.NewPieChart(io.Discard, piechart.WithTitle("Document outcomes"), piechart.WithShowData(true))
	if s.Written > 0 {
		chart.LabelAndIntValue("Written", uint64(s.Written))
	}
	if s.Skipped > 0 {
		chart.LabelAndIntValue("Skipped", uint64(s.Skipped))
	}
	if s.Failed > 0 {
		chart.LabelAndIntValue("Rolled back", uint64(s.Failed))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func writeVocabulary(md *markdown.Markdown, title string, terms []string, limit int) {
	md.H2(fmt.Sprintf("%s (%d/%d)", title, len(terms), limit))
	md.PlainText("")
	if len(terms) == 0 {
		md.PlainText("None yet.")
		md.PlainText("")
		return
	}
	md.PlainText(strings.Join(terms, ", "))
	md.PlainText("")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func duration(start, end time.Time) string {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return "-"
	}
	return end.Sub(start).Round(time.Second).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
