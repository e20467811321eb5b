// Package document renders enriched pages as markdown files with YAML front
// matter and places them in blob storage.
package document

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// TypeDocs is the front matter type of every generated page.
const TypeDocs = "docs"

const fence = "---"

// Sidebar controls the site navigation entry.
type Sidebar struct {
	Open bool `yaml:"open"`
}

// FrontMatter is the metadata block written at the top of each document.
type FrontMatter struct {
	PublishDate string   `yaml:"publishDate"`
	Lastmod     string   `yaml:"lastmod"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Summary     string   `yaml:"summary"`
	URL         string   `yaml:"url"`
	Categories  []string `yaml:"categories"`
	Tags        []string `yaml:"tags"`
	Keywords    []string `yaml:"keywords"`
	Type        string   `yaml:"type"`
	Prev        string   `yaml:"prev"`
	Sidebar     Sidebar  `yaml:"sidebar"`
}

// Render serializes fm and body into a complete document. Keywords are
// written as a flow sequence and a blank line separates the fence from body.
func Render(fm FrontMatter, body string) ([]byte, error) {
	if fm.Type == "" {
		fm.Type = TypeDocs
	}
	fm.Categories = orEmpty(fm.Categories)
	fm.Tags = orEmpty(fm.Tags)
	fm.Keywords = orEmpty(fm.Keywords)

	var node yaml.Node
	if err := node.Encode(fm); err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "keywords" {
			node.Content[i+1].Style = yaml.FlowStyle
		}
	}

	var buf bytes.Buffer
	buf.WriteString(fence + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}
	buf.WriteString(fence + "\n")
	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
		if body[len(body)-1] != '\n' {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

// Parse splits a rendered document back into its front matter and body.
func Parse(data []byte) (FrontMatter, string, error) {
	var fm FrontMatter
	rest, ok := bytes.CutPrefix(data, []byte(fence+"\n"))
	if !ok {
		return fm, "", errors.New("document has no front matter")
	}
	head, body, ok := bytes.Cut(rest, []byte("\n"+fence+"\n"))
	if !ok {
		return fm, "", errors.New("front matter is not terminated")
	}
	if err := yaml.Unmarshal(head, &fm); err != nil {
		return fm, "", fmt.Errorf("decode front matter: %w", err)
	}
	return fm, string(bytes.TrimPrefix(body, []byte("\n"))), nil
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
