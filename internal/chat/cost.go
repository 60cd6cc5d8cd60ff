package chat

import (
	"strconv"
	"strings"

	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

// EstimateCost sums the search pricing of every selected data source and the
// chat pricing of the chat source. Unknown routers and missing services cost 0.
func EstimateCost(routers []models.Router, dataSources []string, chatSource string) float64 {
	var total float64
	for _, name := range dataSources {
		if r := models.FindRouter(routers, name); r != nil {
			if s := r.Service(models.ServiceSearch); s != nil {
				total += s.Pricing
			}
		}
	}
	if r := models.FindRouter(routers, chatSource); r != nil {
		if s := r.Service(models.ServiceChat); s != nil {
			total += s.Pricing
		}
	}
	return total
}

// FormatCost renders a price with at least two and at most four decimals.
func FormatCost(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	if dot := strings.IndexByte(s, '.'); len(s)-dot-1 < 2 {
		s += strings.Repeat("0", 2-(len(s)-dot-1))
	}
	return "$" + s
}
