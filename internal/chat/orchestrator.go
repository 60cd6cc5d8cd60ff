// Package chat turns user messages into search and chat dispatches against
// remote routers and keeps the per-session conversation state.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/OpenMined/network-ensemble-extras/clients/go/syftrpc"
	"github.com/OpenMined/network-ensemble-extras/internal/metrics"
	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

// maxParallelSearches bounds concurrent search dispatches in parallel mode.
const maxParallelSearches = 4

// Directory lists the routers available to a session.
type Directory interface {
	ListRouters(ctx context.Context) ([]models.Router, error)
}

// Dispatcher submits search and chat operations to routers.
type Dispatcher interface {
	Search(ctx context.Context, router, author, query string) ([]models.SearchResult, error)
	Chat(ctx context.Context, router, author string, messages []models.ChatMessage) (*models.ChatMessage, error)
}

// Options configures an Orchestrator.
type Options struct {
	Logger zerolog.Logger
	// ParallelSearch dispatches data-source searches concurrently. Results
	// keep the order of the selected sources either way.
	ParallelSearch bool
	// OnUpdate is called whenever the session changes in a way worth rendering.
	OnUpdate func(s *models.Session)
}

// Orchestrator runs chat turns.
type Orchestrator struct {
	dir      Directory
	disp     Dispatcher
	logger   zerolog.Logger
	parallel bool
	onUpdate func(s *models.Session)
}

// Turn is the outcome of one successful Send.
type Turn struct {
	User          models.ChatMessage
	Reply         models.ChatMessage
	Results       []models.SearchResult
	FailedSources []string
}

// NewOrchestrator creates an orchestrator over the given directory and dispatcher.
func NewOrchestrator(dir Directory, disp Dispatcher, opts Options) *Orchestrator {
	return &Orchestrator{
		dir:      dir,
		disp:     disp,
		logger:   opts.Logger,
		parallel: opts.ParallelSearch,
		onUpdate: opts.OnUpdate,
	}
}

func (o *Orchestrator) notify(s *models.Session) {
	s.UpdatedAt = time.Now().UTC()
	if o.onUpdate != nil {
		o.onUpdate(s)
	}
}

// LoadRouters replaces the session's router listing with a fresh one.
func (o *Orchestrator) LoadRouters(ctx context.Context, s *models.Session) error {
	routers, err := o.dir.ListRouters(ctx)
	if err != nil {
		s.Error = ErrorText(err)
		o.notify(s)
		return err
	}
	s.Routers = routers
	s.Error = ""
	o.notify(s)
	return nil
}

// SetSources selects the data sources and the chat source of a session.
func (o *Orchestrator) SetSources(s *models.Session, dataSources []string, chatSource string) error {
	seen := make(map[string]bool, len(dataSources))
	selected := make([]string, 0, len(dataSources))
	for _, name := range dataSources {
		if seen[name] {
			continue
		}
		seen[name] = true
		r := models.FindRouter(s.Routers, name)
		if r == nil || !r.Offers(models.ServiceSearch) {
			return syftrpc.ValidationError(fmt.Sprintf("%q is not an available data source", name))
		}
		selected = append(selected, name)
	}
	if chatSource != "" {
		r := models.FindRouter(s.Routers, chatSource)
		if r == nil || !r.Offers(models.ServiceChat) {
			return syftrpc.ValidationError(fmt.Sprintf("%q is not an available chat source", chatSource))
		}
	}

	s.DataSources = selected
	s.ChatSource = chatSource
	o.notify(s)
	return nil
}

// Reset clears the conversation, the last search results and any error.
func (o *Orchestrator) Reset(s *models.Session) {
	s.Messages = []models.ChatMessage{}
	s.LastResults = nil
	s.Error = ""
	o.notify(s)
}

// validate checks the preconditions of Send without touching the network.
func validate(s *models.Session, input string) (*models.Router, error) {
	if s.Responding {
		return nil, syftrpc.ValidationError("a message is already being answered")
	}
	if input == "" {
		return nil, syftrpc.ValidationError("message is empty")
	}
	if s.ChatSource == "" {
		return nil, syftrpc.ValidationError("select a chat source first")
	}
	r := models.FindRouter(s.Routers, s.ChatSource)
	if r == nil || !r.Offers(models.ServiceChat) {
		return nil, syftrpc.ValidationError(fmt.Sprintf("chat source %q is not available", s.ChatSource))
	}
	return r, nil
}

// Send runs one turn: optional searches across the selected data sources,
// then a single chat call to the chat source. On failure the user message
// stays in the history, no reply is appended, and s.Error is set.
func (o *Orchestrator) Send(ctx context.Context, s *models.Session, input string) (turn *Turn, err error) {
	input = strings.TrimSpace(input)

	chatRouter, err := validate(s, input)
	if err != nil {
		s.Error = ErrorText(err)
		metrics.ChatTurns.WithLabelValues(string(syftrpc.KindValidation)).Inc()
		o.notify(s)
		return nil, err
	}

	s.Error = ""
	s.Responding = true
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Interface("panic", r).Str("session", s.ID).Msg("chat turn panicked")
			turn = nil
			err = &syftrpc.RequestError{Kind: syftrpc.KindServer, Message: fmt.Sprintf("unexpected error: %v", r)}
		}
		s.Responding = false
		outcome := "ok"
		if err != nil {
			s.Error = ErrorText(err)
			outcome = "error"
			if k := syftrpc.KindOf(err); k != "" {
				outcome = string(k)
			}
		}
		metrics.ChatTurns.WithLabelValues(outcome).Inc()
		metrics.ChatTurnDuration.Observe(time.Since(start).Seconds())
		o.notify(s)
	}()

	prior := make([]models.ChatMessage, len(s.Messages))
	copy(prior, s.Messages)

	user := models.NewMessage(models.RoleUser, input)
	s.Messages = append(s.Messages, user)
	o.notify(s)

	results, failed := o.search(ctx, s, input)
	s.LastResults = results

	reply, err := o.disp.Chat(ctx, chatRouter.Name, chatRouter.Author, BuildRequest(prior, user, results))
	if err != nil {
		o.logger.Warn().Err(err).Str("session", s.ID).Str("router", chatRouter.Name).Msg("chat failed")
		return nil, err
	}

	reply.Citations = Citations(results)
	s.Messages = append(s.Messages, *reply)

	o.logger.Info().
		Str("session", s.ID).
		Str("chat_source", chatRouter.Name).
		Int("results", len(results)).
		Strs("failed_sources", failed).
		Dur("latency", time.Since(start)).
		Msg("chat turn completed")

	return &Turn{User: user, Reply: *reply, Results: results, FailedSources: failed}, nil
}

// search queries every selected data source. Failing sources are logged and
// skipped; results keep source order, then within-source order.
func (o *Orchestrator) search(ctx context.Context, s *models.Session, query string) ([]models.SearchResult, []string) {
	n := len(s.DataSources)
	if n == 0 {
		return nil, nil
	}

	slots := make([][]models.SearchResult, n)
	errs := make([]error, n)

	run := func(i int) {
		// A panicking source is skipped like a failing one. In parallel mode
		// this also keeps the panic from escaping the errgroup goroutine.
		defer func() {
			if r := recover(); r != nil {
				errs[i] = fmt.Errorf("search panicked: %v", r)
			}
		}()
		name := s.DataSources[i]
		r := models.FindRouter(s.Routers, name)
		if r == nil {
			errs[i] = fmt.Errorf("router %q not found", name)
			return
		}
		slots[i], errs[i] = o.disp.Search(ctx, r.Name, r.Author, query)
	}

	if o.parallel {
		var g errgroup.Group
		g.SetLimit(maxParallelSearches)
		for i := 0; i < n; i++ {
			i := i
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := 0; i < n; i++ {
			run(i)
		}
	}

	var results []models.SearchResult
	var failed []string
	for i, name := range s.DataSources {
		if errs[i] != nil {
			metrics.SearchFailures.Inc()
			o.logger.Warn().Err(errs[i]).Str("session", s.ID).Str("router", name).Msg("search failed, skipping source")
			failed = append(failed, name)
			continue
		}
		results = append(results, slots[i]...)
	}
	return results, failed
}

// ErrorText is the user-visible message for a failed operation.
func ErrorText(err error) string {
	var re *syftrpc.RequestError
	if !errors.As(err, &re) {
		return "Something went wrong: " + err.Error()
	}
	switch re.Kind {
	case syftrpc.KindValidation:
		return re.Message
	case syftrpc.KindTransport:
		return "Could not reach the server: " + re.Message
	case syftrpc.KindTimeout:
		return "The request is taking longer than expected and may still be processing. Please try again shortly."
	}
	return "The server returned an error: " + re.Message
}
