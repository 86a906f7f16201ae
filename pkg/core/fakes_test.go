package core_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiki-ai/hibiki-go/pkg/core"
	"github.com/hibiki-ai/hibiki-go/pkg/llm"
)

var errBackend = errors.New("backend down")

// callLog records the order of external calls made by a run.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type createCall struct {
	ns      core.Namespace
	content string
}

type fakeStore struct {
	log       *callLog
	fragments []core.Fragment
	searchErr error
	createErr error

	mu       sync.Mutex
	queries  []string
	searchNS []core.Namespace
	creates  []createCall
	closed   bool
}

func (s *fakeStore) Search(ctx context.Context, ns core.Namespace, query string) ([]core.Fragment, error) {
	s.log.add("search")
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.searchNS = append(s.searchNS, ns)
	s.mu.Unlock()
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.fragments, nil
}

func (s *fakeStore) Create(ctx context.Context, ns core.Namespace, content string) (string, error) {
	s.log.add("create")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, createCall{ns: ns, content: content})
	if s.createErr != nil {
		return "", s.createErr
	}
	return "key-1", nil
}

func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

// fakeLLM returns a fixed reply and records every call.
type fakeLLM struct {
	name  string
	log   *callLog
	reply string
	err   error
	// block makes the call wait for its context to end.
	block bool

	mu       sync.Mutex
	messages [][]llm.Message
	options  []*llm.GenerateOptions
	closed   bool
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return f.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

func (f *fakeLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	f.log.add(f.name)
	f.mu.Lock()
	f.messages = append(f.messages, messages)
	f.options = append(f.options, llm.ApplyGenerateOptions(opts))
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) Close() error {
	f.closed = true
	return nil
}

// prompt returns the concatenated message contents of call i.
func (f *fakeLLM) prompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out string
	for _, m := range f.messages[i] {
		out += m.Content + "\n"
	}
	return out
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// recordingObserver keeps every event it receives.
type recordingObserver struct {
	mu          sync.Mutex
	transitions []core.Transition
	stages      []core.Stage
	stageErrs   []error
	writes      []error
}

func (o *recordingObserver) StateChanged(_ context.Context, t core.Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, t)
}

func (o *recordingObserver) StageCompleted(_ context.Context, stage core.Stage, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
	o.stageErrs = append(o.stageErrs, err)
}

func (o *recordingObserver) MemoryWritten(_ context.Context, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = append(o.writes, err)
}

func (o *recordingObserver) states() []core.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]core.State, 0, len(o.transitions))
	for _, t := range o.transitions {
		out = append(out, t.To)
	}
	return out
}

type fixture struct {
	log       *callLog
	store     *fakeStore
	planner   *fakeLLM
	responder *fakeLLM
	observer  *recordingObserver
}

func newFixture() *fixture {
	log := &callLog{}
	return &fixture{
		log:       log,
		store:     &fakeStore{log: log},
		planner:   &fakeLLM{name: "plan", log: log, reply: "1. gentle\n2. none\n3. listen"},
		responder: &fakeLLM{name: "respond", log: log, reply: "That sounds exhausting. Want to rest a bit?"},
		observer:  &recordingObserver{},
	}
}

func (f *fixture) runner(opts ...core.RunnerOption) *core.Runner {
	opts = append([]core.RunnerOption{core.WithObserver(f.observer)}, opts...)
	return core.NewRunner(f.store, f.planner, f.responder, opts...)
}
