// ABOUTME: End-to-end tests running the real pools, graph and store behind the hub
// ABOUTME: Model calls are scripted; responses are matched by correlation id
package workers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harper/interview-assistant/internal/commands"
	"github.com/harper/interview-assistant/internal/extract"
	"github.com/harper/interview-assistant/internal/interview"
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/llm/llmtest"
	"github.com/harper/interview-assistant/internal/media"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/runtime"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPoll = 10 * time.Millisecond

type env struct {
	db      *sqlite.DB
	chat    *llmtest.FakeChat
	hub     *runtime.Hub
	pending *runtime.Pending
	cancel  context.CancelFunc
	done    chan error
	once    sync.Once
}

// startEnv runs every pool and a listener until the test ends
func startEnv(t *testing.T, chat *llmtest.FakeChat) *env {
	t.Helper()
	db, err := sqlite.OpenInMemory()
	require.NoError(t, err)

	policy := util.Policy{MaxAttempts: 1}
	embedder := &llmtest.FakeEmbedder{Dim: 8}
	graph := interview.New(interview.Deps{
		DB:           db,
		Chat:         chat,
		Embedder:     embedder,
		Transcriber:  &llmtest.FakeTranscriber{Err: fmt.Errorf("cannot decode")},
		Commands:     commands.NewRegistry(db, commands.NewTokenStore(time.Minute)),
		Policy:       policy,
		EmbeddingDim: 8,
	})
	pipeline := extract.New(db, chat, embedder, policy, 8)

	hub := runtime.NewHub(10)
	w := New(hub, db, graph, pipeline, testPoll)
	ctx, cancel := context.WithCancel(context.Background())

	e := &env{db: db, chat: chat, hub: hub, pending: runtime.NewPending(), cancel: cancel, done: make(chan error, 1)}
	go runtime.Listen(ctx, hub.Responses, nil, e.pending)
	go func() {
		e.done <- runtime.New(hub, testPoll).Run(ctx, w.Pools(PoolSizes{Interview: 2, Extract: 1, Auth: 1})...)
	}()

	t.Cleanup(func() {
		e.stop(t)
		_ = db.Close()
	})
	return e
}

func (e *env) stop(t *testing.T) {
	t.Helper()
	e.once.Do(func() {
		e.cancel()
		select {
		case <-e.done:
		case <-time.After(5 * time.Second):
			t.Error("runtime did not stop")
		}
	})
}

func (e *env) login(t *testing.T, externalID string) *models.User {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := e.hub.ResolveUser(ctx, "telegram", externalID, "", 0)
	require.NoError(t, err)
	user, err := e.db.Repos().Users.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, user)
	return user
}

func (e *env) ask(t *testing.T, user *models.User, payload runtime.Payload) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	text, err := e.hub.Ask(ctx, e.pending, user.ID, payload)
	require.NoError(t, err)
	return text
}

func smallTalkChat(reply func(req llm.Request) string) *llmtest.FakeChat {
	chat := llmtest.NewFakeChat()
	chat.BySchema["target"] = llmtest.JSON(map[string]string{"target": "small_talk"})
	chat.Default = func(req llm.Request) (models.Message, error) {
		return models.AIMessage(reply(req)), nil
	}
	return chat
}

func TestNewUserGreeting(t *testing.T) {
	e := startEnv(t, smallTalkChat(func(llm.Request) string { return "Hi! Want to create a life area?" }))

	user := e.login(t, "12345")
	assert.Equal(t, util.UserIDFor("telegram", "12345"), user.ID)
	assert.Equal(t, "telegram_12345", user.Name)
	assert.Equal(t, models.ModeAuto, user.Mode)

	assert.Equal(t, "Hi! Want to create a life area?", e.ask(t, user, runtime.TextPayload("Hello")))

	rows, err := e.db.Repos().Histories.ListByUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Hello", rows[0].Message.Content)

	// logging in again keeps the same user
	again := e.login(t, "12345")
	assert.Equal(t, user.ID, again.ID)
}

func TestAuthRejectsEmptyIdentity(t *testing.T) {
	e := startEnv(t, llmtest.NewFakeChat())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := e.hub.ResolveUser(ctx, "telegram", "", "", 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestResponsesKeepCorrelation(t *testing.T) {
	e := startEnv(t, smallTalkChat(func(req llm.Request) string {
		last := req.Messages[len(req.Messages)-1].Content
		return "re: " + last
	}))

	const users = 6
	var wg sync.WaitGroup
	replies := make([]string, users)
	errs := make([]error, users)
	for i := 0; i < users; i++ {
		user := e.login(t, fmt.Sprintf("u%d", i))
		wg.Add(1)
		go func(i int, user *models.User) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			replies[i], errs[i] = e.hub.Ask(ctx, e.pending, user.ID, runtime.TextPayload(fmt.Sprintf("message %d", i)))
		}(i, user)
	}
	wg.Wait()

	for i := 0; i < users; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("re: message %d", i), replies[i])
	}
	assert.Zero(t, e.pending.Len())
}

func TestUnknownUserGetsGenericError(t *testing.T) {
	e := startEnv(t, llmtest.NewFakeChat())
	ghost := &models.User{ID: util.NewID()}
	assert.Equal(t, models.GenericErrorMessage, e.ask(t, ghost, runtime.TextPayload("Hello")))
}

func TestMediaFailureGetsMediaReply(t *testing.T) {
	e := startEnv(t, llmtest.NewFakeChat())
	user := e.login(t, "voice")
	voice := &media.Media{Kind: media.KindVoice, Data: []byte("ogg")}
	assert.Equal(t, MediaErrorMessage, e.ask(t, user, runtime.Payload{Media: voice}))
}

func TestCommandReply(t *testing.T) {
	e := startEnv(t, llmtest.NewFakeChat())
	user := e.login(t, "cmd")
	reply := e.ask(t, user, runtime.TextPayload("/mode interview"))
	assert.Contains(t, reply, "interview")

	stored, err := e.db.Repos().Users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ModeConductInterview, stored.Mode)
}

func TestCompletedLeafIsExtracted(t *testing.T) {
	chat := llmtest.NewFakeChat()
	chat.Default = llmtest.Text("Tell me about Python.")
	chat.BySchema["knowledge_extraction"] = llmtest.JSON(extract.Extraction{Items: []extract.Item{
		{Content: "Python programming", Kind: models.KnowledgeSkill, Confidence: 1},
	}})
	e := startEnv(t, chat)
	ctx := context.Background()

	user := e.login(t, "interviewee")
	rootID, leafID := util.NewID(), util.NewID()
	require.NoError(t, e.db.Transaction(ctx, func(r *sqlite.Repos) error {
		if err := r.Areas.Create(ctx, &models.LifeArea{ID: rootID, Title: "Career", UserID: user.ID}); err != nil {
			return err
		}
		if err := r.Areas.Create(ctx, &models.LifeArea{ID: leafID, Title: "Python", ParentID: &rootID, UserID: user.ID}); err != nil {
			return err
		}
		if err := r.Users.SetMode(ctx, user.ID, models.ModeConductInterview); err != nil {
			return err
		}
		return r.Users.SetCurrentArea(ctx, user.ID, &rootID)
	}))

	assert.Equal(t, "Tell me about Python.", e.ask(t, user, runtime.TextPayload("Let's go")))

	chat.BySchema["leaf_evaluation"] = llmtest.JSON(models.LeafEvaluation{Status: models.EvaluationComplete, Reason: "done"})
	e.ask(t, user, runtime.TextPayload("I have 5 years of Python experience"))

	require.Eventually(t, func() bool {
		items, err := e.db.Repos().Knowledge.ListByUser(ctx, user.ID, models.KnowledgeSkill)
		return err == nil && len(items) == 1
	}, 5*time.Second, 20*time.Millisecond)

	summaries, err := e.db.Repos().Summaries.ListVectoredByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, leafID, summaries[0].AreaID)
	assert.True(t, strings.HasPrefix(summaries[0].SummaryText, "Tell me"))
}

func TestShutdownStopsPools(t *testing.T) {
	e := startEnv(t, llmtest.NewFakeChat())
	e.stop(t)
	assert.True(t, e.hub.Shutdown.IsSet())
}
