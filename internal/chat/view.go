package chat

import (
	"net/url"
	"strings"

	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

// Placeholder is shown instead of messages when the conversation is empty.
const Placeholder = "Welcome! Pick a chat source, optionally add data sources, and ask a question."

// View is a render-ready description of a session.
type View struct {
	SessionID   string         `json:"session_id"`
	Messages    []MessageView  `json:"messages"`
	Placeholder string         `json:"placeholder,omitempty"`
	DataSources []SourceOption `json:"data_sources"`
	ChatSources []SourceOption `json:"chat_sources"`
	Cost        float64        `json:"cost"`
	CostLabel   string         `json:"cost_label"`
	Error       string         `json:"error,omitempty"`
	Responding  bool           `json:"responding"`
	SendEnabled bool           `json:"send_enabled"`
}

// MessageView is one rendered message.
type MessageView struct {
	ID        string         `json:"id"`
	Role      models.Role    `json:"role"`
	Content   string         `json:"content"`
	Citations []CitationView `json:"citations,omitempty"`
}

// CitationView is a citation tooltip attached to an assistant reply.
type CitationView struct {
	Label   string `json:"label"`
	Tooltip string `json:"tooltip"`
	Href    string `json:"href,omitempty"`
}

// SourceOption is a selectable router.
type SourceOption struct {
	Name       string  `json:"name"`
	Author     string  `json:"author"`
	Price      float64 `json:"price"`
	PriceLabel string  `json:"price_label"`
	Selected   bool    `json:"selected"`
}

// Render describes s without side effects.
func Render(s *models.Session) View {
	v := View{
		SessionID:   s.ID,
		Messages:    make([]MessageView, 0, len(s.Messages)),
		Cost:        EstimateCost(s.Routers, s.DataSources, s.ChatSource),
		Error:       s.Error,
		Responding:  s.Responding,
		SendEnabled: !s.Responding && s.ChatSource != "",
	}
	v.CostLabel = FormatCost(v.Cost)

	for _, m := range s.Messages {
		mv := MessageView{ID: m.ID, Role: m.Role, Content: m.Content}
		for _, c := range m.Citations {
			mv.Citations = append(mv.Citations, CitationView{
				Label:   c.Filename,
				Tooltip: strings.Join(c.Snippets, "\n\n"),
				Href:    citationHref(c.Filename),
			})
		}
		v.Messages = append(v.Messages, mv)
	}
	if len(v.Messages) == 0 {
		v.Placeholder = Placeholder
	}

	selected := make(map[string]bool, len(s.DataSources))
	for _, name := range s.DataSources {
		selected[name] = true
	}
	for _, r := range models.FilterRouters(s.Routers, models.ServiceSearch) {
		v.DataSources = append(v.DataSources, option(r, models.ServiceSearch, selected[r.Name]))
	}
	for _, r := range models.FilterRouters(s.Routers, models.ServiceChat) {
		v.ChatSources = append(v.ChatSources, option(r, models.ServiceChat, r.Name == s.ChatSource))
	}
	return v
}

func option(r models.Router, t models.ServiceType, selected bool) SourceOption {
	var price float64
	if svc := r.Service(t); svc != nil {
		price = svc.Pricing
	}
	label := FormatCost(price)
	if price == 0 {
		label = "Free"
	}
	return SourceOption{Name: r.Name, Author: r.Author, Price: price, PriceLabel: label, Selected: selected}
}

// citationHref links filenames that are absolute http(s) URLs.
func citationHref(filename string) string {
	u, err := url.Parse(filename)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}
