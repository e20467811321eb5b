package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
)

type imageRef struct {
	url   string
	title string
}

type listState struct {
	ordered bool
	counter int
}

type converter struct {
	out    *strings.Builder
	images []imageRef
	lists  []listState
	pre    int
}

// HTMLToMarkdown renders an HTML document as markdown. Images become reference
// links whose definitions are appended at the end in order of appearance.
func HTMLToMarkdown(src string) (md string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render markdown: %v", r)
		}
	}()
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	c := &converter{out: &strings.Builder{}}
	c.node(root)
	return c.finish(), nil
}

func (c *converter) finish() string {
	lines := strings.Split(c.out.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	text := strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
	if len(c.images) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n")
	for i, img := range c.images {
		b.WriteString(imageDefinition(i+1, img))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func imageDefinition(n int, img imageRef) string {
	def := "[img-" + strconv.Itoa(n) + "]: " + img.url
	if img.title != "" {
		def += ` "` + img.title + `"`
	}
	return def
}

func (c *converter) children(n *html.Node) string {
	saved := c.out
	c.out = &strings.Builder{}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.node(ch)
	}
	s := c.out.String()
	c.out = saved
	return s
}

func (c *converter) write(s string) {
	c.out.WriteString(s)
}

func (c *converter) atLineStart() bool {
	s := c.out.String()
	return s == "" || strings.HasSuffix(s, "\n")
}

func (c *converter) block(s string) {
	c.write("\n\n")
	c.write(s)
	c.write("\n\n")
}

func (c *converter) text(data string) {
	if c.pre > 0 {
		c.write(data)
		return
	}
	s := whitespaceRun.ReplaceAllString(data, " ")
	if c.atLineStart() {
		s = strings.TrimLeft(s, " ")
	}
	c.write(s)
}

func (c *converter) node(n *html.Node) {
	switch n.Type {
	case html.DocumentNode:
		c.write(c.children(n))
	case html.TextNode:
		c.text(n.Data)
	case html.ElementNode:
		c.element(n)
	}
}

func (c *converter) element(n *html.Node) {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Head, atom.Template, atom.Iframe, atom.Svg:
		return
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		text := inline(c.children(n))
		if text != "" {
			c.block(strings.Repeat("#", level) + " " + text)
		}
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main, atom.Header, atom.Footer,
		atom.Nav, atom.Aside, atom.Figure, atom.Figcaption, atom.Table, atom.Thead, atom.Tbody:
		c.write("\n\n")
		c.write(c.children(n))
		c.write("\n\n")
	case atom.Tr:
		c.write("\n")
		c.write(c.children(n))
		c.write("\n")
	case atom.Td, atom.Th:
		c.write(inline(c.children(n)) + " | ")
	case atom.Br:
		c.write("\n")
	case atom.Hr:
		c.block("---")
	case atom.A:
		c.anchor(n)
	case atom.Img:
		c.image(n)
	case atom.Strong, atom.B:
		c.wrap(n, "**")
	case atom.Em, atom.I:
		c.wrap(n, "*")
	case atom.Code:
		if c.pre > 0 {
			c.write(c.children(n))
			return
		}
		c.wrap(n, "`")
	case atom.Pre:
		c.pre++
		text := strings.Trim(c.children(n), "\n")
		c.pre--
		c.block("```\n" + text + "\n```")
	case atom.Ul, atom.Ol:
		c.lists = append(c.lists, listState{ordered: n.DataAtom == atom.Ol})
		items := c.children(n)
		c.lists = c.lists[:len(c.lists)-1]
		if len(c.lists) == 0 {
			c.block(strings.Trim(items, "\n"))
			return
		}
		c.write("\n" + strings.Trim(items, "\n") + "\n")
	case atom.Li:
		c.listItem(n)
	case atom.Blockquote:
		text := strings.TrimSpace(c.children(n))
		if text == "" {
			return
		}
		lines := strings.Split(blankLines.ReplaceAllString(text, "\n\n"), "\n")
		for i, l := range lines {
			lines[i] = strings.TrimRight("> "+l, " ")
		}
		c.block(strings.Join(lines, "\n"))
	default:
		c.write(c.children(n))
	}
}

func (c *converter) wrap(n *html.Node, marker string) {
	text := strings.TrimSpace(c.children(n))
	if text == "" {
		return
	}
	c.write(marker + text + marker)
}

func (c *converter) anchor(n *html.Node) {
	text := inline(c.children(n))
	href := strings.TrimSpace(attr(n, "href"))
	switch {
	case href == "" || strings.HasPrefix(href, "javascript:"):
		c.write(text)
	case text == "":
		c.write("[" + href + "](" + href + ")")
	default:
		c.write("[" + text + "](" + href + ")")
	}
}

func (c *converter) image(n *html.Node) {
	src := strings.TrimSpace(attr(n, "src"))
	if src == "" {
		src = strings.TrimSpace(attr(n, "data-src"))
	}
	if src == "" {
		return
	}
	c.images = append(c.images, imageRef{url: src, title: attr(n, "title")})
	c.write("![" + attr(n, "alt") + "][img-" + strconv.Itoa(len(c.images)) + "]")
}

func (c *converter) listItem(n *html.Node) {
	depth := len(c.lists)
	marker := "- "
	if depth > 0 && c.lists[depth-1].ordered {
		c.lists[depth-1].counter++
		marker = strconv.Itoa(c.lists[depth-1].counter) + ". "
	}
	indent := ""
	if depth > 1 {
		indent = strings.Repeat("  ", depth-1)
	}
	content := strings.TrimSpace(blankLines.ReplaceAllString(c.children(n), "\n"))
	content = strings.ReplaceAll(content, "\n\n", "\n")
	if !c.atLineStart() {
		c.write("\n")
	}
	c.write(indent + marker + content + "\n")
}

func inline(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
