package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botcrew/botcrew/internal/agent/models"
	"github.com/botcrew/botcrew/internal/agent/repository"
	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/config"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/runtime"
	"github.com/botcrew/botcrew/internal/workerclient"
)

type fakeSecrets struct {
	secrets map[string]string
	err     error
}

func (f *fakeSecrets) SystemSecrets(ctx context.Context) (map[string]string, error) {
	return f.secrets, f.err
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		WorkerPort:               8080,
		DefaultHeartbeatSeconds:  900,
		ReconcileIntervalSeconds: 60,
	}
}

type fixture struct {
	svc     *Service
	repo    *repository.MemoryRepository
	runtime *runtime.FakeRuntime
	secrets *fakeSecrets
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text", OutputPath: "stdout"})
	require.NoError(t, err)

	repo := repository.NewMemoryRepository()
	rt := runtime.NewFakeRuntime()
	secrets := &fakeSecrets{secrets: map[string]string{"ANTHROPIC_API_KEY": "sk-test"}}
	workers := workerclient.New(testAgentConfig(), log)

	return &fixture{
		svc:     NewService(repo, rt, secrets, workers, testAgentConfig(), log),
		repo:    repo,
		runtime: rt,
		secrets: secrets,
	}
}

func (f *fixture) newReconciler(t *testing.T) *Reconciler {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text", OutputPath: "stdout"})
	require.NoError(t, err)
	return NewReconciler(f.repo, f.runtime, testAgentConfig(), log)
}

func TestCreateAgentLaunchesWorker(t *testing.T) {
	f := newFixture(t)

	agent, err := f.svc.Create(context.Background(), CreateAgentInput{
		Name:          "Ada",
		ModelProvider: "anthropic",
		ModelName:     "claude-sonnet",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusRunning, agent.Status)
	assert.Equal(t, "agent-"+agent.ID, agent.WorkerHandle)
	assert.Equal(t, 900, agent.HeartbeatSeconds)
	assert.True(t, agent.HeartbeatEnabled)

	stored, err := f.repo.Get(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, stored.Status)
	assert.Equal(t, agent.WorkerHandle, stored.WorkerHandle)
}

func TestCreateAgentUnconfiguredProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateAgentInput{
		Name:          "Ada",
		ModelProvider: "openai",
		ModelName:     "gpt-4o",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindProviderUnconfigured, apperr.From(err).Kind)

	_, err = f.svc.Create(context.Background(), CreateAgentInput{
		Name:          "Ada",
		ModelProvider: "no-such-provider",
	})
	assert.True(t, apperr.IsValidation(err))
}

func TestCreateAgentOllamaNeedsNoCredential(t *testing.T) {
	f := newFixture(t)
	f.secrets.secrets = map[string]string{}

	agent, err := f.svc.Create(context.Background(), CreateAgentInput{
		Name:          "Local",
		ModelProvider: "ollama",
		ModelName:     "llama3",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, agent.Status)
}

func TestCreateAgentHeartbeatBounds(t *testing.T) {
	f := newFixture(t)

	for _, seconds := range []int{299, 86401} {
		_, err := f.svc.Create(context.Background(), CreateAgentInput{
			Name:             "Ada",
			ModelProvider:    "anthropic",
			HeartbeatSeconds: seconds,
		})
		assert.True(t, apperr.IsValidation(err), "heartbeat %d must be rejected", seconds)
	}
}

func TestCreateAgentLaunchFailureLeavesError(t *testing.T) {
	f := newFixture(t)
	f.runtime.LaunchErr = apperr.Unavailable("runtime down")

	agent, err := f.svc.Create(context.Background(), CreateAgentInput{
		Name:          "Ada",
		ModelProvider: "anthropic",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, agent.Status)

	stored, err := f.repo.Get(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, stored.Status)
	assert.Empty(t, stored.WorkerHandle)
}

func TestDeleteAgentLeavesNoWorker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	agent, err := f.svc.Create(ctx, CreateAgentInput{Name: "Ada", ModelProvider: "anthropic"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, agent.ID))

	_, err = f.repo.Get(ctx, agent.ID)
	assert.True(t, apperr.IsNotFound(err))

	workers, err := f.runtime.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, workers)
	assert.Contains(t, f.runtime.Terminations, agent.WorkerHandle)
}

func TestDuplicateAgentCopiesConfigOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src, err := f.svc.Create(ctx, CreateAgentInput{
		Name:          "Ada",
		Identity:      "researcher",
		Personality:   "curious",
		ModelProvider: "anthropic",
		ModelName:     "claude-sonnet",
	})
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateMemory(ctx, src.ID, "learned things"))

	dup, err := f.svc.Duplicate(ctx, src.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Ada (copy)", dup.Name)
	assert.Equal(t, "researcher", dup.Identity)
	assert.Equal(t, "claude-sonnet", dup.ModelName)
	assert.Empty(t, dup.Memory)
	assert.NotEqual(t, src.ID, dup.ID)
}

func TestAppendMemory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	agent, err := f.svc.Create(ctx, CreateAgentInput{Name: "Ada", ModelProvider: "anthropic"})
	require.NoError(t, err)

	updated, err := f.svc.AppendMemory(ctx, agent.ID, "first note")
	require.NoError(t, err)
	assert.Equal(t, "first note", updated.Memory)

	updated, err = f.svc.AppendMemory(ctx, agent.ID, "second note")
	require.NoError(t, err)
	assert.Equal(t, "first note\n\nsecond note", updated.Memory)
}

func TestListAgentsCursorPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		require.NoError(t, f.repo.Create(ctx, &models.Agent{
			ID:        string(rune('a'+i)) + "-agent",
			Name:      string(rune('A' + i)),
			Status:    models.StatusRunning,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := f.svc.List(ctx, ListAgentsInput{PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, page.Agents, 10)
	assert.True(t, page.HasNext)

	page2, err := f.svc.List(ctx, ListAgentsInput{PageSize: 10, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, page2.Agents, 10)
	assert.True(t, page2.HasNext)
	assert.NotEqual(t, page.Agents[0].ID, page2.Agents[0].ID)

	page3, err := f.svc.List(ctx, ListAgentsInput{PageSize: 10, Cursor: page2.NextCursor})
	require.NoError(t, err)
	assert.Len(t, page3.Agents, 5)
	assert.False(t, page3.HasNext)
}

func TestListAgentsCursorRequiresCreatedAtSort(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.List(context.Background(), ListAgentsInput{
		Sort:   repository.SortName,
		Cursor: "anything",
	})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.svc.List(context.Background(), ListAgentsInput{PageSize: 101})
	assert.True(t, apperr.IsValidation(err))
}

func TestLiveStatusEnrichmentDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	agent, err := f.svc.Create(ctx, CreateAgentInput{Name: "Ada", ModelProvider: "anthropic"})
	require.NoError(t, err)
	f.runtime.SetPhase(agent.WorkerHandle, runtime.PhaseFailed)

	view, err := f.svc.GetWithLiveStatus(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, view.LiveStatus)

	stored, err := f.repo.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, stored.Status)
}

func TestReconcilerRecoversFailedWorker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	agent, err := f.svc.Create(ctx, CreateAgentInput{Name: "Ada", ModelProvider: "anthropic"})
	require.NoError(t, err)
	firstHandle := agent.WorkerHandle

	f.runtime.SetPhase(firstHandle, runtime.PhaseFailed)
	r := f.newReconciler(t)

	r.Tick(ctx)
	stored, err := f.repo.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, stored.Status)

	r.Tick(ctx)
	stored, err = f.repo.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, stored.Status)
	assert.NotEmpty(t, stored.WorkerHandle)

	phase, found, err := f.runtime.Inspect(ctx, stored.WorkerHandle)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, runtime.PhasePending, phase)
}

func TestReconcilerMissingWorkerMarksError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	agent, err := f.svc.Create(ctx, CreateAgentInput{Name: "Ada", ModelProvider: "anthropic"})
	require.NoError(t, err)
	require.NoError(t, f.runtime.Terminate(ctx, agent.WorkerHandle, 0))

	r := f.newReconciler(t)
	r.Tick(ctx)

	stored, err := f.repo.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, stored.Status)
}

func TestReconcilerBacksOffAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.Create(ctx, &models.Agent{
		ID:        "stuck",
		Name:      "Stuck",
		Status:    models.StatusError,
		CreatedAt: time.Now().UTC(),
	}))
	f.runtime.LaunchErr = apperr.Unavailable("runtime down")

	r := f.newReconciler(t)
	for i := 0; i < 5; i++ {
		r.Tick(ctx)
	}
	assert.Equal(t, 5, f.runtime.Launches)

	// Five failures recorded moments ago: the next passes sit out the
	// backoff window instead of launching.
	r.Tick(ctx)
	r.Tick(ctx)
	assert.Equal(t, 5, f.runtime.Launches)
}

func TestRecoveryBackoffSchedule(t *testing.T) {
	assert.Equal(t, 10*time.Second, recoveryBackoff(5))
	assert.Equal(t, 20*time.Second, recoveryBackoff(6))
	assert.Equal(t, 320*time.Second, recoveryBackoff(10))
	assert.Equal(t, 600*time.Second, recoveryBackoff(11))
	assert.Equal(t, 600*time.Second, recoveryBackoff(40))
}

func TestReconcilerSkipsTerminatingAgents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.Create(ctx, &models.Agent{
		ID:        "leaving",
		Name:      "Leaving",
		Status:    models.StatusTerminating,
		CreatedAt: time.Now().UTC(),
	}))

	r := f.newReconciler(t)
	r.Tick(ctx)
	assert.Zero(t, f.runtime.Launches)
}
