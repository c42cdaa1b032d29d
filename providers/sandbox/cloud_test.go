package sandbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

func noSleep(context.Context, time.Duration) error { return nil }

func demoChain(t *testing.T, cloud *Cloud) *orchestrator.Chain {
	t.Helper()
	step := func(name string, kind orchestrator.Kind, deps ...string) orchestrator.Step {
		return orchestrator.Step{
			Name:                     name,
			Kind:                     kind,
			DependsOn:                deps,
			Capability:               cloud.Capability(kind),
			MaxRetries:               3,
			EventualConsistencyDelay: time.Second,
		}
	}
	cfg := step("config", orchestrator.KindConfigurationChange, "unit")
	cfg.Params = map[string]string{"env.MODE": "verbose"}
	unit := step("unit", orchestrator.KindDeployedUnit, "role")
	unit.Params = map[string]string{"name": "area-fn", "env.MODE": "quiet"}

	chain, err := orchestrator.NewChain(
		step("role", orchestrator.KindRole),
		unit,
		step("logs", orchestrator.KindLogGroup, "unit"),
		cfg,
	)
	require.NoError(t, err)
	return chain
}

// Tests
// ---------------------------------------------------------------------

func TestCloud_FullLifecycle(t *testing.T) {
	cloud := New(WithVisibility(1))
	chain := demoChain(t, cloud)

	o, err := orchestrator.New(chain,
		orchestrator.WithName("sandbox-demo"),
		orchestrator.WithSleeper(noSleep),
		orchestrator.WithValidation(cloud,
			orchestrator.ValidationCase{
				Name:   "area",
				Input:  map[string]any{"length": 6, "width": 7},
				Expect: orchestrator.FieldEquals("area", 42),
			},
		),
	)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Succeeded(), "report: %+v", report)

	retries := map[string]int{}
	for _, s := range report.Steps {
		retries[s.Step] = s.Retries
	}
	assert.Equal(t, map[string]int{"role": 0, "unit": 1, "logs": 1, "config": 0}, retries,
		"each new resource is invisible to its first lookup")

	require.Len(t, report.Validations, 1)
	assert.True(t, report.Validations[0].Passed)

	require.Len(t, report.Inspections, 1)
	insp := report.Inspections[0]
	assert.Equal(t, "unit", insp.Step)
	assert.Equal(t, "verbose", insp.State["env.MODE"], "configuration change is visible to inspection")
	assert.Equal(t, "1", insp.State["invocations"])

	assert.Empty(t, cloud.Resources(), "teardown removes everything")
	assert.Len(t, report.Teardown, 4)
}

func TestCloud_CreateFailParam(t *testing.T) {
	cloud := New()
	_, err := cloud.Capability(orchestrator.KindRole).Create(context.Background(), orchestrator.CreateRequest{
		Step:   "role",
		Params: map[string]string{"fail": "access denied"},
	})
	require.Error(t, err)
	assert.False(t, orchestrator.IsTransient(err))
	assert.Contains(t, err.Error(), "access denied")
	assert.Empty(t, cloud.Resources())
}

func TestCloud_MissingDependency(t *testing.T) {
	cloud := New()
	_, err := cloud.Capability(orchestrator.KindDeployedUnit).Create(context.Background(), orchestrator.CreateRequest{
		Step: "unit",
		Dependencies: map[string]orchestrator.ResourceHandle{
			"role": {Step: "role", Kind: orchestrator.KindRole, ExternalID: "sandbox:role-9999"},
		},
	})
	require.Error(t, err)
	assert.False(t, orchestrator.IsTransient(err), "a missing dependency will not appear by waiting")
}

func TestCloud_ForeignDependencyIsNotChecked(t *testing.T) {
	cloud := New()
	res, err := cloud.Capability(orchestrator.KindDeployedUnit).Create(context.Background(), orchestrator.CreateRequest{
		Step: "unit",
		Dependencies: map[string]orchestrator.ResourceHandle{
			"package": {Step: "package", Kind: orchestrator.KindArtifactPackage, ExternalID: "/tmp/build/pkg.zip"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/build/pkg.zip", res.Attributes["package"])
	assert.Equal(t, "area", res.Attributes["handler"])
}

func TestCloud_UnknownHandler(t *testing.T) {
	cloud := New()
	_, err := cloud.Capability(orchestrator.KindDeployedUnit).Create(context.Background(), orchestrator.CreateRequest{
		Step:   "unit",
		Params: map[string]string{"handler": "resize"},
	})
	assert.ErrorContains(t, err, `unknown handler "resize"`)
}

func TestCloud_DeleteAbsent(t *testing.T) {
	cloud := New()
	capability := cloud.Capability(orchestrator.KindLogGroup)

	res, err := capability.Create(context.Background(), orchestrator.CreateRequest{Step: "logs"})
	require.NoError(t, err)
	h := orchestrator.ResourceHandle{Step: "logs", ExternalID: res.ExternalID}

	require.NoError(t, capability.Delete(context.Background(), h))
	assert.ErrorIs(t, capability.Delete(context.Background(), h), orchestrator.ErrResourceAbsent)
}

func TestCloud_ConfigurationChangeRequiresUnit(t *testing.T) {
	cloud := New()
	_, err := cloud.Capability(orchestrator.KindConfigurationChange).Create(context.Background(), orchestrator.CreateRequest{Step: "config"})
	assert.ErrorContains(t, err, "must depend on a deployed unit")
}

func TestCloud_InvokeNonUnit(t *testing.T) {
	cloud := New()
	res, err := cloud.Capability(orchestrator.KindRole).Create(context.Background(), orchestrator.CreateRequest{Step: "role"})
	require.NoError(t, err)

	_, err = cloud.Invoke(context.Background(), orchestrator.ResourceHandle{ExternalID: res.ExternalID}, nil)
	assert.ErrorContains(t, err, "not a deployed unit")

	_, err = cloud.Invoke(context.Background(), orchestrator.ResourceHandle{ExternalID: "sandbox:nope"}, nil)
	assert.ErrorIs(t, err, orchestrator.ErrResourceAbsent)
}

func TestCloud_CustomHandler(t *testing.T) {
	cloud := New(WithHandler("echo", func(ctx context.Context, env map[string]string, payload any) (any, error) {
		return map[string]any{"payload": payload, "stage": env["STAGE"]}, nil
	}))
	res, err := cloud.Capability(orchestrator.KindDeployedUnit).Create(context.Background(), orchestrator.CreateRequest{
		Step:   "unit",
		Params: map[string]string{"handler": "echo", "env.STAGE": "test"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"STAGE": "test"}, cloud.Env(res.ExternalID))

	out, err := cloud.Invoke(context.Background(), orchestrator.ResourceHandle{ExternalID: res.ExternalID}, "hi")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"payload": "hi", "stage": "test"}, out)
}

func TestAreaHandler(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
		wantErr string
	}{
		{name: "ints", payload: map[string]any{"length": 6, "width": 7}, want: `{"area":42}`},
		{name: "json numbers", payload: map[string]any{"length": 2.5, "width": 4.0}, want: `{"area":10}`},
		{name: "missing width", payload: map[string]any{"length": 6}, wantErr: "missing width"},
		{name: "string length", payload: map[string]any{"length": "6", "width": 7}, wantErr: "length must be a number"},
		{name: "not an object", payload: []any{6, 7}, wantErr: "payload must be an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AreaHandler(context.Background(), nil, tt.payload)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirectHandler(t *testing.T) {
	decodeBody := func(t *testing.T, out any) map[string]any {
		t.Helper()
		resp, ok := out.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, 200, resp["statusCode"])
		var body map[string]any
		require.NoError(t, json.Unmarshal([]byte(resp["body"].(string)), &body))
		return body
	}

	out, err := DirectHandler(context.Background(), map[string]string{"MODE": "verbose"}, map[string]any{
		"action": "process_data",
		"data":   map[string]any{"items": []any{"alpha", 3}},
	})
	require.NoError(t, err)
	body := decodeBody(t, out)
	assert.Equal(t, "process_data", body["action"])
	result := body["result"].(map[string]any)
	assert.Equal(t, 2.0, result["processed_count"])
	items := result["processed_items"].([]any)
	assert.Equal(t, "ALPHA", items[0].(map[string]any)["processed"])
	assert.Equal(t, "3", items[1].(map[string]any)["processed"])
	assert.Equal(t, map[string]any{"MODE": "verbose"}, body["environment"])

	out, err = DirectHandler(context.Background(), nil, map[string]any{"action": "health_check"})
	require.NoError(t, err)
	assert.Equal(t, "healthy", decodeBody(t, out)["result"].(map[string]any)["status"])

	out, err = DirectHandler(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "default", decodeBody(t, out)["action"])
}
