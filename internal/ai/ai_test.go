package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/lambda-api/internal/cache"
	"github.com/tjfontaine/lambda-api/internal/domain"
	"github.com/tjfontaine/lambda-api/internal/storage"
	"github.com/tjfontaine/lambda-api/internal/storage/memory"
	"github.com/tjfontaine/lambda-api/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCache(t *testing.T) (*cache.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.New(rdb, discardLogger()), mr
}

func newService(t *testing.T, fake *testutil.FakeChatModel, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	svc, err := NewService(fake, opts...)
	require.NoError(t, err)
	return svc
}

// =============================================================================
// Chat Tests
// =============================================================================

func TestChat_GeneratesConversationID(t *testing.T) {
	fake := testutil.NewFakeChatModel("Hi there!")
	svc := newService(t, fake)

	res, err := svc.Chat(context.Background(), ChatRequest{Message: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", res.Response)
	assert.NotEmpty(t, res.ConversationID)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	assert.Equal(t, schema.System, calls[0][0].Role)
	assert.Equal(t, DefaultSystemPrompt, calls[0][0].Content)
	assert.Equal(t, "Hello", calls[0][1].Content)
}

func TestChat_ReusesConversation(t *testing.T) {
	fake := testutil.NewFakeChatModel("first answer", "second answer")
	svc := newService(t, fake)
	ctx := context.Background()

	first, err := svc.Chat(ctx, ChatRequest{Message: "first question"})
	require.NoError(t, err)

	second, err := svc.Chat(ctx, ChatRequest{Message: "second question", ConversationID: first.ConversationID})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, "second answer", second.Response)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	contents := make([]string, 0, len(calls[1]))
	for _, m := range calls[1] {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{DefaultSystemPrompt, "first question", "first answer", "second question"}, contents)

	assert.Len(t, svc.Memory().Load(ctx, first.ConversationID), 4)
}

func TestChat_ModelErrorLeavesMemoryUntouched(t *testing.T) {
	fake := testutil.NewFakeChatModel()
	fake.Err = errors.New("upstream unavailable")
	svc := newService(t, fake)

	_, err := svc.Chat(context.Background(), ChatRequest{Message: "hi", ConversationID: "c-1"})
	require.Error(t, err)
	assert.Empty(t, svc.Memory().Load(context.Background(), "c-1"))
}

func TestStreamChat(t *testing.T) {
	fake := testutil.NewFakeChatModel("abc")
	svc := newService(t, fake)

	var deltas []string
	id, err := svc.StreamChat(context.Background(), ChatRequest{Message: "hi"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, []string{"a", "b", "c"}, deltas)

	history := svc.Memory().Load(context.Background(), id)
	require.Len(t, history, 2)
	assert.Equal(t, "abc", history[1].Content)
}

func TestStreamChat_MidStreamError(t *testing.T) {
	fake := testutil.NewFakeChatModel("ab")
	fake.StreamErr = errors.New("connection reset")
	svc := newService(t, fake)

	var deltas []string
	id, err := svc.StreamChat(context.Background(), ChatRequest{Message: "hi", ConversationID: "c-2"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, "c-2", id)
	assert.Equal(t, []string{"a", "b"}, deltas)
	assert.Empty(t, svc.Memory().Load(context.Background(), "c-2"), "failed turns are not recorded")
}

// =============================================================================
// Memory Tests
// =============================================================================

func TestMemory_MirrorsToRedis(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	m := NewMemory(c, discardLogger())
	m.Append(ctx, "conv", domain.Message{Role: domain.RoleUser, Content: "hello"})

	require.True(t, mr.Exists("memory:conv"))
	assert.Equal(t, MemoryTTL, mr.TTL("memory:conv"))

	// A fresh process reads the mirror back on a miss.
	restarted := NewMemory(c, discardLogger())
	got := restarted.Load(ctx, "conv")
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Content)

	restarted.Clear(ctx, "conv")
	assert.False(t, mr.Exists("memory:conv"))
	assert.Nil(t, restarted.Load(ctx, "conv"))
}

func TestMemory_MirrorExpires(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	NewMemory(c, discardLogger()).Append(ctx, "conv", domain.Message{Role: domain.RoleUser, Content: "x"})
	mr.FastForward(MemoryTTL + time.Second)

	assert.Nil(t, NewMemory(c, discardLogger()).Load(ctx, "conv"))
}

func TestMemory_RedisDownIsBestEffort(t *testing.T) {
	c, mr := newCache(t)
	mr.Close()
	ctx := context.Background()

	m := NewMemory(c, discardLogger())
	m.Append(ctx, "conv", domain.Message{Role: domain.RoleUser, Content: "still works"})
	assert.Len(t, m.Load(ctx, "conv"), 1)
	assert.Nil(t, m.Load(ctx, "unknown"))
}

func TestMemory_LoadReturnsCopy(t *testing.T) {
	m := NewMemory(nil, nil)
	ctx := context.Background()
	m.Append(ctx, "conv", domain.Message{Role: domain.RoleUser, Content: "a"})

	got := m.Load(ctx, "conv")
	got[0].Content = "mutated"
	assert.Equal(t, "a", m.Load(ctx, "conv")[0].Content)
}

// =============================================================================
// Tool Tests
// =============================================================================

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr    string
		want    string
		wantErr bool
	}{
		{"6 * 7", "42", false},
		{"(1 + 2) / 2", "1.5", false},
		{"2 ** 10", "1024", false},
		{"max(3, 9)", "9", false},
		{"'a' + 'b'", "", true},
		{"os.Exit(1)", "", true},
		{"1 +", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := evaluate(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildTools(t *testing.T) {
	svc := newService(t, testutil.NewFakeChatModel("x"))
	ctx := context.Background()

	all, err := svc.buildTools(nil)
	require.NoError(t, err)
	require.Len(t, all, len(AvailableTools))

	subset, err := svc.buildTools([]string{ToolSearch, "unknown"})
	require.NoError(t, err)
	require.Len(t, subset, 1)
	info, err := subset[0].Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, ToolSearch, info.Name)
}

func TestDBQueryTool(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.CreateExample(ctx, &domain.Example{ID: "e-1", Name: "Widget", IsActive: true}))

	svc := newService(t, testutil.NewFakeChatModel("x"), WithExamples(store))
	out, err := svc.dbQuery(ctx, &dbQueryInput{Query: "DROP TABLE examples"})
	require.NoError(t, err)
	assert.Contains(t, out, "Widget")

	_, err = store.GetExample(ctx, "e-1")
	assert.NoError(t, err, "the free-form query is never executed")

	noDB := newService(t, testutil.NewFakeChatModel("x"))
	out, err = noDB.dbQuery(ctx, &dbQueryInput{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "No database is configured.", out)
}

// =============================================================================
// Agent Tests
// =============================================================================

func TestRunAgent_UsesTools(t *testing.T) {
	fake := testutil.NewFakeChatModel()
	fake.Script(schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call_1",
		Type:     "function",
		Function: schema.FunctionCall{Name: ToolCalculator, Arguments: `{"expression":"6 * 7"}`},
	}}))
	fake.Script(schema.AssistantMessage("The answer is 42.", nil))

	svc := newService(t, fake)
	res, err := svc.RunAgent(context.Background(), AgentRequest{Task: "What is 6 * 7?"})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", res.Result)
	assert.Equal(t, AgentTypeDefault, res.AgentType)
	assert.NotEmpty(t, res.TaskID)

	assert.Len(t, fake.Tools(), len(AvailableTools))

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, defaultAgentPrompt, calls[0][0].Content)
	last := calls[1][len(calls[1])-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "42", last.Content)
}

func TestRunAgent_ResearchProfile(t *testing.T) {
	fake := testutil.NewFakeChatModel("done")
	svc := newService(t, fake)

	res, err := svc.RunAgent(context.Background(), AgentRequest{Task: "look into it", AgentType: AgentTypeResearch})
	require.NoError(t, err)
	assert.Equal(t, AgentTypeResearch, res.AgentType)

	var names []string
	for _, info := range fake.Tools() {
		names = append(names, info.Name)
	}
	assert.ElementsMatch(t, []string{ToolSearch, ToolDBQuery}, names)
	assert.Equal(t, researchAgentPrompt, fake.Calls()[0][0].Content)
}

// =============================================================================
// Graph Tests
// =============================================================================

func TestRunGraph_CheckpointsState(t *testing.T) {
	fake := testutil.NewFakeChatModel("first", "second")
	store := memory.New()
	svc := newService(t, fake, WithCheckpoints(store))
	ctx := context.Background()

	res, err := svc.RunGraph(ctx, "", "hello")
	require.NoError(t, err)
	require.NotEmpty(t, res.GraphID)
	assert.Equal(t, "first", res.State.Output)
	assert.Equal(t, 1, res.State.Step)
	assert.Len(t, res.State.Messages, 2)

	saved, err := svc.GraphState(ctx, res.GraphID)
	require.NoError(t, err)
	assert.Equal(t, res.State.Output, saved.Output)

	again, err := svc.RunGraph(ctx, res.GraphID, "and then?")
	require.NoError(t, err)
	assert.Equal(t, 2, again.State.Step)
	assert.Len(t, again.State.Messages, 4)
	assert.Equal(t, "second", again.State.Output)
}

func TestRunGraph_EmptyOutputCountsValidateStep(t *testing.T) {
	svc := newService(t, testutil.NewFakeChatModel(""))
	res, err := svc.RunGraph(context.Background(), "g-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, res.State.Step)
}

func TestStreamGraph_EmitsNodeUpdates(t *testing.T) {
	svc := newService(t, testutil.NewFakeChatModel("streamed"), WithCheckpoints(memory.New()))

	var updates []GraphUpdate
	res, err := svc.StreamGraph(context.Background(), "g-2", "hi", func(u GraphUpdate) error {
		updates = append(updates, u)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "g-2", res.GraphID)

	require.Len(t, updates, 2)
	assert.Equal(t, NodeProcess, updates[0].Node)
	assert.Equal(t, NodeValidate, updates[1].Node)
	assert.Equal(t, "streamed", updates[1].State.Output)
}

func TestGraphState_Unknown(t *testing.T) {
	svc := newService(t, testutil.NewFakeChatModel("x"), WithCheckpoints(memory.New()))
	_, err := svc.GraphState(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	bare := newService(t, testutil.NewFakeChatModel("x"))
	_, err = bare.GraphState(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoCheckpoints)
}

func TestRedisCheckpoints(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()
	cp := NewRedisCheckpoints(c)

	_, err := cp.LoadCheckpoint(ctx, "g")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, cp.SaveCheckpoint(ctx, "g", &domain.GraphState{Input: "in", Output: "out", Step: 3}))
	assert.True(t, mr.Exists("checkpoint:g"))

	got, err := cp.LoadCheckpoint(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Step)
	assert.Equal(t, "out", got.Output)
}

func TestSelectCheckpoints(t *testing.T) {
	c, _ := newCache(t)
	sql := memory.New()
	fallback := memory.New()

	assert.IsType(t, &RedisCheckpoints{}, SelectCheckpoints(c, sql, fallback))
	assert.Same(t, sql, SelectCheckpoints(nil, sql, fallback))
	assert.Same(t, fallback, SelectCheckpoints(nil, nil, fallback))
}
