package contactflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariusgr/contactflow/pkg/api"
)

func noopStep(ctx context.Context, payload api.ContactPayload) error { return nil }

func TestFlowBuilderBuildsDefinition(t *testing.T) {
	t.Parallel()

	flow := New("wf").
		Step("first", noopStep).
		StepWithRetry("second", noopStep, Retry(5).WithConstantBackoff(50*time.Millisecond).Policy())

	require.Equal(t, "wf", flow.Name())

	def := flow.Definition()
	require.Len(t, def.Steps, 2)
	assert.Equal(t, "first", def.Steps[0].Name)
	assert.Nil(t, def.Steps[0].Retry)
	assert.Equal(t, "second", def.Steps[1].Name)
	require.NotNil(t, def.Steps[1].Retry)
	assert.Equal(t, 5, def.Steps[1].Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, def.Steps[1].Retry.InitialBackoff)
}

func TestFlowBuilderStepPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { New("wf").Step("", noopStep) })
	assert.Panics(t, func() { New("wf").Step("s", nil) })
	assert.Panics(t, func() { New("wf").StepWithRetry("", noopStep, Retry(1).Policy()) })
	assert.Panics(t, func() { New("wf").StepWithRetry("s", nil, Retry(1).Policy()) })
}

// The stored policy must be a copy; callers may reuse and mutate theirs.
func TestStepWithRetryCopiesPolicy(t *testing.T) {
	t.Parallel()

	policy := Retry(3).Policy()
	flow := New("wf").StepWithRetry("s", noopStep, policy)

	policy.MaxAttempts = 99
	assert.Equal(t, 3, flow.Definition().Steps[0].Retry.MaxAttempts)
}

func TestFlowBuilderRegister(t *testing.T) {
	t.Parallel()

	eng := NewInMemoryEngine()
	flow := New("wf").Step("s", noopStep)

	require.NoError(t, flow.Register(eng))
	assert.Error(t, flow.Register(eng), "second registration of the same name must fail")

	assert.Panics(t, func() { flow.MustRegister(eng) })
	assert.NotPanics(t, func() { New("wf-2").Step("s", noopStep).MustRegister(eng) })
}

func TestContactWorkflowShape(t *testing.T) {
	t.Parallel()

	flow := ContactWorkflow(&fakeSender{name: "slack"}, &fakeSender{name: "email"})
	require.Equal(t, WorkflowContactSubmission, flow.Name())

	def := flow.Definition()
	require.Len(t, def.Steps, 2)
	assert.Equal(t, StepSendChatNotification, def.Steps[0].Name)
	assert.Equal(t, StepSendEmailNotification, def.Steps[1].Name)
	for _, s := range def.Steps {
		require.NotNil(t, s.Retry)
		assert.Equal(t, 3, s.Retry.MaxAttempts)
	}
}
