package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"github.com/OpenMined/network-ensemble-extras/internal/chat"
	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

var (
	userStyle      = color.New(color.FgGreen, color.Bold).SprintFunc()
	assistantStyle = color.New(color.FgCyan, color.Bold).SprintFunc()
	errorStyle     = color.New(color.FgRed, color.Bold).SprintFunc()
	dimStyle       = color.New(color.Faint).SprintFunc()
)

// markdownRenderer renders assistant replies; nil means plain text.
var markdownRenderer *glamour.TermRenderer

func setColor(enabled bool) {
	color.NoColor = !enabled
	markdownRenderer = nil
	if !enabled {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err == nil {
		markdownRenderer = r
	}
}

func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	out, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// routerLine describes one router and its enabled services.
func routerLine(r models.Router) string {
	var services []string
	for _, s := range r.Services {
		if !s.Enabled {
			continue
		}
		price := chat.FormatCost(s.Pricing)
		if s.Pricing == 0 {
			price = "free"
		}
		services = append(services, fmt.Sprintf("%s %s", s.Type, price))
	}
	if len(services) == 0 {
		services = append(services, "no services")
	}
	return fmt.Sprintf("%-24s %-28s %s", r.Name, r.Author, strings.Join(services, ", "))
}

// printReply writes an assistant message and its citations.
func printReply(w io.Writer, m chat.MessageView) {
	fmt.Fprintln(w, assistantStyle("Assistant:"))
	fmt.Fprintln(w, renderMarkdown(m.Content))
	for i, c := range m.Citations {
		label := c.Label
		if c.Href != "" {
			label = c.Href
		}
		fmt.Fprintf(w, "  %s %s\n", dimStyle(fmt.Sprintf("[%d]", i+1)), label)
	}
	fmt.Fprintln(w)
}

// printResults writes search results as numbered passages.
func printResults(w io.Writer, results []models.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, dimStyle("No results."))
		return
	}
	for i, r := range results {
		name := r.Metadata.Filename
		if name == "" {
			name = "(untitled)"
		}
		fmt.Fprintf(w, "%s %s\n%s\n\n", dimStyle(fmt.Sprintf("%d.", i+1)), name, strings.TrimSpace(r.Content))
	}
}

// printSources writes the current selection and its estimated cost.
func printSources(w io.Writer, v chat.View) {
	var data []string
	for _, o := range v.DataSources {
		if o.Selected {
			data = append(data, o.Name)
		}
	}
	chatSource := "(none)"
	for _, o := range v.ChatSources {
		if o.Selected {
			chatSource = o.Name
		}
	}
	if len(data) == 0 {
		data = []string{"(none)"}
	}
	fmt.Fprintf(w, "Data sources: %s\nChat source:  %s\nCost per message: %s\n",
		strings.Join(data, ", "), chatSource, v.CostLabel)
}
