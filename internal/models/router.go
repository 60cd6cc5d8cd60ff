package models

// ServiceType identifies a capability offered by a router.
type ServiceType string

const (
	ServiceSearch ServiceType = "search"
	ServiceChat   ServiceType = "chat"
)

// Service is a typed capability with flat per-request pricing.
type Service struct {
	Type    ServiceType `json:"type" yaml:"type"`
	Enabled bool        `json:"enabled" yaml:"enabled"`
	Pricing float64     `json:"pricing" yaml:"pricing"` // cost per request, 0 = free
}

// Router is a named, authored remote service provider.
type Router struct {
	Name      string    `json:"name" yaml:"name"`
	Author    string    `json:"author" yaml:"author"`
	Published bool      `json:"published" yaml:"published"`
	Services  []Service `json:"services" yaml:"services"`
}

// Service returns the first service of the given type, or nil.
func (r *Router) Service(t ServiceType) *Service {
	for i := range r.Services {
		if r.Services[i].Type == t {
			return &r.Services[i]
		}
	}
	return nil
}

// Offers reports whether the router has an enabled service of the given type.
func (r *Router) Offers(t ServiceType) bool {
	for _, s := range r.Services {
		if s.Type == t && s.Enabled {
			return true
		}
	}
	return false
}

// FindRouter returns the first router with the given name, or nil.
func FindRouter(routers []Router, name string) *Router {
	for i := range routers {
		if routers[i].Name == name {
			return &routers[i]
		}
	}
	return nil
}

// FilterRouters returns the routers offering an enabled service of type t.
// The input order is preserved.
func FilterRouters(routers []Router, t ServiceType) []Router {
	out := make([]Router, 0, len(routers))
	for _, r := range routers {
		if r.Offers(t) {
			out = append(out, r)
		}
	}
	return out
}
