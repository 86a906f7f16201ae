package core_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hibiki-ai/hibiki-go/pkg/core"
	"github.com/hibiki-ai/hibiki-go/pkg/embedder/hash"
	"github.com/hibiki-ai/hibiki-go/pkg/llm"
	chromemStore "github.com/hibiki-ai/hibiki-go/pkg/storage/chromem"
)

func TestRunner_StageOrder(t *testing.T) {
	utterances := []string{"hello", "", "今日は疲れた", "remember my cat?"}

	for _, u := range utterances {
		t.Run(u, func(t *testing.T) {
			f := newFixture()

			_, err := f.runner().Run(context.Background(), "user_001", u)
			require.NoError(t, err)

			assert.Equal(t, []string{"search", "plan", "respond", "create"}, f.log.list())
			require.Len(t, f.store.queries, 1)
			assert.Equal(t, u, f.store.queries[0])
			assert.Equal(t, core.Namespace{"memories", "user_001"}, f.store.searchNS[0])
		})
	}
}

func TestRunner_EmptySearchUsesSentinel(t *testing.T) {
	f := newFixture()

	result, err := f.runner().Run(context.Background(), "user_001", "hello")
	require.NoError(t, err)

	assert.Equal(t, "no related memory found", result.RetrievedMemory)
	assert.Contains(t, f.planner.prompt(0), "no related memory found")
	assert.Contains(t, f.responder.prompt(0), "no related memory found")
}

func TestRunner_JoinsFragmentsInStoreOrder(t *testing.T) {
	f := newFixture()
	f.store.fragments = []core.Fragment{
		{Key: "1", Value: map[string]interface{}{"content": "a"}},
		{Key: "2", Value: map[string]interface{}{"content": "b"}},
	}

	result, err := f.runner().Run(context.Background(), "user_001", "hello")
	require.NoError(t, err)

	assert.Equal(t, "a\nb", result.RetrievedMemory)
}

func TestRunner_EmptyContents(t *testing.T) {
	tests := []struct {
		name     string
		contents []string
		want     string
	}{
		{"single empty content", []string{""}, "no related memory found"},
		{"two empty contents", []string{"", ""}, "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			for i, c := range tt.contents {
				f.store.fragments = append(f.store.fragments, core.Fragment{
					Key:   strconv.Itoa(i),
					Value: map[string]interface{}{"content": c},
				})
			}

			result, err := f.runner().Run(context.Background(), "user_001", "hello")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.RetrievedMemory)
		})
	}
}

func TestRunner_MalformedFragmentFallsBackToRawValue(t *testing.T) {
	f := newFixture()
	f.store.fragments = []core.Fragment{
		{Key: "1", Value: map[string]interface{}{"content": "a"}},
		{Key: "2", Value: map[string]interface{}{"content": 42}},
		{Key: "3", Value: map[string]interface{}{"text": "c"}},
	}

	result, err := f.runner().Run(context.Background(), "user_001", "hello")
	require.NoError(t, err)

	assert.Equal(t, "a\nmap[content:42]\nmap[text:c]", result.RetrievedMemory)
}

func TestRunner_WritesExactlyOneRecord(t *testing.T) {
	f := newFixture()

	result, err := f.runner().Run(context.Background(), "user_001", "I like tea")
	require.NoError(t, err)

	require.Len(t, f.store.creates, 1)
	assert.Equal(t, core.Namespace{"memories", "user_001"}, f.store.creates[0].ns)
	assert.Equal(t, "user: I like tea\nagent: "+f.responder.reply, f.store.creates[0].content)
	assert.True(t, result.MemoryWritten)
	assert.Equal(t, "key-1", result.MemoryKey)
	assert.Equal(t, f.responder.reply, result.Reply)
	assert.Equal(t, f.planner.reply, result.Guidance)
}

func TestRunner_PromptsEmbedValuesVerbatim(t *testing.T) {
	f := newFixture()
	f.store.fragments = []core.Fragment{{Value: map[string]interface{}{"content": "user: I have a cat\nagent: How lovely"}}}

	_, err := f.runner().Run(context.Background(), "user_001", "my cat is sick")
	require.NoError(t, err)

	planPrompt := f.planner.prompt(0)
	assert.Contains(t, planPrompt, "my cat is sick")
	assert.Contains(t, planPrompt, "user: I have a cat\nagent: How lovely")

	respondPrompt := f.responder.prompt(0)
	assert.Contains(t, respondPrompt, "my cat is sick")
	assert.Contains(t, respondPrompt, "user: I have a cat\nagent: How lovely")
	assert.Contains(t, respondPrompt, f.planner.reply)
	assert.Contains(t, respondPrompt, `"Hibiki"`)
}

func TestRunner_Temperatures(t *testing.T) {
	f := newFixture()

	_, err := f.runner().Run(context.Background(), "user_001", "hello")
	require.NoError(t, err)

	assert.Equal(t, 0.3, f.planner.options[0].Temperature)
	assert.Equal(t, 0.7, f.responder.options[0].Temperature)
	assert.Less(t, f.planner.options[0].Temperature, f.responder.options[0].Temperature)

	f = newFixture()
	_, err = f.runner(core.WithPlanningTemperature(0.1), core.WithResponseTemperature(0.9)).Run(context.Background(), "user_001", "hello")
	require.NoError(t, err)

	assert.Equal(t, 0.1, f.planner.options[0].Temperature)
	assert.Equal(t, 0.9, f.responder.options[0].Temperature)
}

func TestRunner_ResponsePromptUsesPersonaAsSystemMessage(t *testing.T) {
	f := newFixture()

	_, err := f.runner(core.WithPersonaName("Kaede")).Run(context.Background(), "user_001", "hello")
	require.NoError(t, err)

	msgs := f.responder.messages[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, `"Kaede"`)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "# Kaede's Reply")
}

func TestRunner_PlanningFailureAborts(t *testing.T) {
	f := newFixture()
	f.planner.err = errBackend

	result, err := f.runner().Run(context.Background(), "user_001", "hello")
	require.Error(t, err)
	assert.Nil(t, result)

	assert.ErrorIs(t, err, core.ErrPlanningFailed)
	assert.ErrorIs(t, err, errBackend)

	var stageErr *core.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, core.StagePlanning, stageErr.Stage)

	assert.Equal(t, 0, f.responder.callCount())
	assert.Empty(t, f.store.creates)
	assert.Equal(t, []string{"search", "plan"}, f.log.list())
	assert.Equal(t,
		[]core.State{core.StateRetrieving, core.StatePlanning, core.StateFailed},
		f.observer.states())
	last := f.observer.transitions[len(f.observer.transitions)-1]
	assert.Equal(t, core.StagePlanning, last.Stage)
}

func TestRunner_ResponseFailureWritesNothing(t *testing.T) {
	f := newFixture()
	f.responder.err = errBackend

	result, err := f.runner().Run(context.Background(), "user_001", "hello")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, core.ErrResponseFailed)
	assert.ErrorIs(t, err, errBackend)
	assert.Empty(t, f.store.creates)
	assert.Equal(t,
		[]core.State{core.StateRetrieving, core.StatePlanning, core.StateResponding, core.StateFailed},
		f.observer.states())
}

func TestRunner_StoreUnavailable(t *testing.T) {
	f := newFixture()
	f.store.searchErr = errBackend

	result, err := f.runner().Run(context.Background(), "user_001", "hello")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, 0, f.planner.callCount())
	assert.Equal(t, []core.State{core.StateRetrieving, core.StateFailed}, f.observer.states())
}

func TestRunner_MemoryWriteFailureKeepsReply(t *testing.T) {
	f := newFixture()
	f.store.createErr = errBackend

	result, err := f.runner().Run(context.Background(), "user_001", "hello")
	require.Error(t, err)
	require.NotNil(t, result)

	assert.ErrorIs(t, err, core.ErrMemoryWriteFailed)
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, f.responder.reply, result.Reply)
	assert.False(t, result.MemoryWritten)
	assert.Empty(t, result.MemoryKey)

	var stageErr *core.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, core.StageResponse, stageErr.Stage)

	require.Len(t, f.observer.writes, 1)
	assert.Error(t, f.observer.writes[0])
	assert.Equal(t, core.StateDone, f.observer.states()[len(f.observer.states())-1])
}

func TestRunner_EmptyUserID(t *testing.T) {
	f := newFixture()

	result, err := f.runner().Run(context.Background(), "", "hello")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Empty(t, f.log.list())
	assert.Empty(t, f.observer.transitions)
}

func TestRunner_StageTimeoutMapsToStageKind(t *testing.T) {
	f := newFixture()
	f.planner.block = true

	start := time.Now()
	result, err := f.runner(core.WithStageTimeout(20*time.Millisecond)).Run(context.Background(), "user_001", "hello")
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, core.ErrPlanningFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, f.responder.callCount())
	assert.Empty(t, f.store.creates)
}

func TestRunner_CanceledContext(t *testing.T) {
	f := newFixture()
	f.responder.block = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result, err := f.runner().Run(ctx, "user_001", "hello")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, core.ErrResponseFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.store.creates)
}

func TestRunner_ObserverSeesFullRun(t *testing.T) {
	f := newFixture()

	_, err := f.runner().Run(context.Background(), "user_001", "hello")
	require.NoError(t, err)

	assert.Equal(t,
		[]core.State{core.StateRetrieving, core.StatePlanning, core.StateResponding, core.StateDone},
		f.observer.states())
	assert.Equal(t, core.StateIdle, f.observer.transitions[0].From)
	assert.Equal(t, []core.Stage{core.StageRetrieval, core.StagePlanning, core.StageResponse}, f.observer.stages)
	for _, err := range f.observer.stageErrs {
		assert.NoError(t, err)
	}
	require.Len(t, f.observer.writes, 1)
	assert.NoError(t, f.observer.writes[0])
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to core.State
		want     bool
	}{
		{core.StateIdle, core.StateRetrieving, true},
		{core.StateRetrieving, core.StatePlanning, true},
		{core.StatePlanning, core.StateResponding, true},
		{core.StateResponding, core.StateDone, true},
		{core.StatePlanning, core.StateFailed, true},
		{core.StateIdle, core.StatePlanning, false},
		{core.StateRetrieving, core.StateResponding, false},
		{core.StateDone, core.StateRetrieving, false},
		{core.StateFailed, core.StateRetrieving, false},
		{core.StateResponding, core.StatePlanning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, core.CanTransition(tt.from, tt.to))
		})
	}
}

// The scenario of a first conversation: nothing remembered yet.
func TestRunner_TiredTodayScenario(t *testing.T) {
	f := newFixture()

	result, err := f.runner().Run(context.Background(), "aya", "今日は疲れた")
	require.NoError(t, err)

	assert.Equal(t, "no related memory found", result.RetrievedMemory)
	assert.Contains(t, f.planner.prompt(0), "今日は疲れた")
	assert.Contains(t, f.planner.prompt(0), "no related memory found")
	assert.Contains(t, f.responder.prompt(0), "no related memory found")
	assert.NotEmpty(t, result.Reply)

	require.Len(t, f.store.creates, 1)
	assert.Equal(t, "user: 今日は疲れた\nagent: "+result.Reply, f.store.creates[0].content)
}

func TestRunner_TwoRunsCreateTwoRecords(t *testing.T) {
	vs, err := chromemStore.New(nil)
	require.NoError(t, err)

	store, err := core.NewVectorMemoryStore(vs, hash.New(64), nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	log := &callLog{}
	planner := &fakeLLM{name: "plan", log: log, reply: "be gentle"}
	responder := &fakeLLM{name: "respond", log: log, reply: "I'm here for you."}
	runner := core.NewRunner(store, planner, responder)

	ctx := context.Background()
	first, err := runner.Run(ctx, "aya", "I adopted a cat named Mochi")
	require.NoError(t, err)
	assert.Equal(t, "no related memory found", first.RetrievedMemory)

	second, err := runner.Run(ctx, "aya", "Mochi is sleeping")
	require.NoError(t, err)

	assert.NotEqual(t, first.MemoryKey, second.MemoryKey)

	fragments, err := store.Search(ctx, core.MemoryNamespace("aya"), "Mochi")
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	contents := make([]string, 0, len(fragments))
	for _, fr := range fragments {
		c, err := fr.Content()
		require.NoError(t, err)
		contents = append(contents, c)
	}
	assert.ElementsMatch(t, []string{
		"user: I adopted a cat named Mochi\nagent: I'm here for you.",
		"user: Mochi is sleeping\nagent: I'm here for you.",
	}, contents)

	// Another user's memory space stays empty.
	other, err := runner.Run(ctx, "ren", "Mochi")
	require.NoError(t, err)
	assert.Equal(t, "no related memory found", other.RetrievedMemory)
}
