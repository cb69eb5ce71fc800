package main

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/patch-tracker/internal/promotion"
	"github.com/yourorg/patch-tracker/internal/repo"
	"github.com/yourorg/patch-tracker/internal/synthetic"
)

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func newTestApp(t *testing.T) *app {
	t.Helper()
	svc := promotion.New(repo.NewMemoryStore(), synthetic.NewSeeded(7), nil, nil, nil, promotion.Options{
		AfterMinRatio: 0.5,
		AfterMaxRatio: 0.5,
	})
	require.NotNil(t, svc)
	return &app{svc: svc}
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, a *app, args ...string) string {
	t.Helper()
	out, err := execute(t, a, args...)
	require.NoError(t, err, "tracker %s", strings.Join(args, " "))
	return out
}

func TestPromotionWorkflow(t *testing.T) {
	a := newTestApp(t)

	out := mustExecute(t, a, "services")
	assert.Contains(t, out, "Nessus Manager")
	services, err := a.svc.ListServices(t.Context())
	require.NoError(t, err)
	svcID := services[0].ID

	out = mustExecute(t, a, "create", "--service", itoa(svcID), "--env", "DEV", "--ami", "ami-0f00", "--date", "2024-06-01")
	require.Contains(t, out, "Created patch event")
	dash, err := a.svc.Dashboard(t.Context(), promotion.DashboardFilter{})
	require.NoError(t, err)
	require.Len(t, dash.Events, 1)
	id := itoa(dash.Events[0].ID)

	_, err = execute(t, a, "generate-after", id)
	assert.EqualError(t, err, "Generate BEFORE snapshot first for this event.")

	assert.Equal(t, "Synthetic BEFORE snapshot generated with vulnerabilities.\n", mustExecute(t, a, "generate-before", id))
	assert.Equal(t, "Synthetic AFTER snapshot generated with vulnerabilities.\n", mustExecute(t, a, "generate-after", id))

	_, err = execute(t, a, "stage-cr", id)
	assert.EqualError(t, err, "DEV evidence must be computed before generating a STAGE CR summary.")

	assert.Equal(t, "DEV evidence computed from synthetic snapshots.\n", mustExecute(t, a, "compute-evidence", id))
	assert.Equal(t, "STAGE CR summary generated from synthetic DEV evidence.\n", mustExecute(t, a, "stage-cr", id))
	assert.Equal(t, "State updated to DEV_VERIFIED.\n", mustExecute(t, a, "transition", id, "DEV_VERIFIED"))

	_, err = execute(t, a, "transition", id, "CLOSED")
	assert.EqualError(t, err, "cannot close patch event unless PROD is patched")

	var detail struct {
		Event struct {
			CurrentStateCode string `yaml:"current_state_code"`
			StageCRSummary   string `yaml:"stage_cr_summary"`
		} `yaml:"event"`
		BeforeCount int `yaml:"before_count"`
		AfterCount  int `yaml:"after_count"`
		Fixed       []struct {
			SyntheticID string `yaml:"synthetic_id"`
		} `yaml:"fixed"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(mustExecute(t, a, "show", id)), &detail))
	assert.Equal(t, "DEV_VERIFIED", detail.Event.CurrentStateCode)
	assert.Equal(t, 20, detail.BeforeCount)
	assert.Equal(t, 10, detail.AfterCount)
	assert.Len(t, detail.Fixed, 10)
	assert.Contains(t, detail.Event.StageCRSummary, "Total fixed vulnerabilities in DEV: 10")

	out = mustExecute(t, a, "list", "--env", "dev")
	assert.Contains(t, out, "ami-0f00")
	assert.Contains(t, out, "Total: 1 | DEV: 1 STAGE: 0 PROD: 0")

	out = mustExecute(t, a, "delete", id)
	assert.Contains(t, out, "deleted")
	_, err = execute(t, a, "show", id)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestGenerateAfterAllowFallback(t *testing.T) {
	a := newTestApp(t)
	mustExecute(t, a, "services")
	services, err := a.svc.ListServices(t.Context())
	require.NoError(t, err)
	mustExecute(t, a, "create", "--service", itoa(services[0].ID), "--ami", "ami-1", "--date", "2024-06-02")
	dash, err := a.svc.Dashboard(t.Context(), promotion.DashboardFilter{})
	require.NoError(t, err)
	id := itoa(dash.Events[0].ID)

	mustExecute(t, a, "generate-after", "--allow-fallback", id)
	d, err := a.svc.Detail(t.Context(), dash.Events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, synthetic.FallbackAfterCount, d.AfterCount)
	assert.Zero(t, d.BeforeCount)
}

func TestArgumentErrors(t *testing.T) {
	a := newTestApp(t)

	_, err := execute(t, a, "show", "abc")
	assert.EqualError(t, err, `invalid patch event id "abc"`)

	_, err = execute(t, a, "create", "--service", "42", "--ami", "ami-1")
	assert.EqualError(t, err, "Invalid service selected")

	_, err = execute(t, a, "create", "--service", "1", "--ami", "ami-1", "--date", "06/01/2024")
	assert.ErrorContains(t, err, "invalid --date")

	_, err = execute(t, a, "transition", "1")
	assert.Error(t, err)

	_, err = execute(t, a, "archive")
	assert.EqualError(t, err, "archive is not configured")
}
