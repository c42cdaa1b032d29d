package awscloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
	"github.com/brightkeycloud-chad/lifecycle/providers/artifact"
)

const (
	defaultRuntime     = "python3.12"
	defaultHandler     = "lambda_function.lambda_handler"
	defaultTimeoutSecs = 30
	defaultMemoryMB    = 128
	defaultWaitTimeout = 2 * time.Minute
)

// FunctionCapability deploys a Lambda function from the package built by its
// artifact_package dependency, running as the role of its role dependency.
//
// Params:
//   - name: function name (default: the step name)
//   - runtime, handler, description
//   - timeout: seconds, memory: MB
//   - role_arn: used when the step has no role dependency
//   - env.KEY: environment variables
type FunctionCapability struct {
	lambda      LambdaAPI
	waitTimeout time.Duration
	logger      *slog.Logger
}

// NewFunctionCapability creates a function capability.
func NewFunctionCapability(client LambdaAPI, logger *slog.Logger) *FunctionCapability {
	if logger == nil {
		logger = slog.Default()
	}
	return &FunctionCapability{
		lambda:      client,
		waitTimeout: defaultWaitTimeout,
		logger:      logger.With("component", "aws.function"),
	}
}

// Create creates the function and waits until it is Active. A role that Lambda
// cannot assume yet is reported as a transient error.
func (c *FunctionCapability) Create(ctx context.Context, req orchestrator.CreateRequest) (orchestrator.CreateResult, error) {
	name := req.Param("name", req.Step)

	roleARN := req.Params["role_arn"]
	if role, ok := req.Dependency(orchestrator.KindRole); ok {
		roleARN = role.Attr("arn")
	}
	if roleARN == "" {
		return orchestrator.CreateResult{}, fmt.Errorf("function %s: no role dependency or role_arn param", name)
	}
	pkg, ok := req.Dependency(orchestrator.KindArtifactPackage)
	if !ok {
		return orchestrator.CreateResult{}, fmt.Errorf("function %s: no artifact_package dependency", name)
	}
	code, err := artifact.Load(pkg)
	if err != nil {
		return orchestrator.CreateResult{}, fmt.Errorf("function %s: loading package: %w", name, err)
	}
	timeout, err := intParam(req, "timeout", defaultTimeoutSecs)
	if err != nil {
		return orchestrator.CreateResult{}, err
	}
	memory, err := intParam(req, "memory", defaultMemoryMB)
	if err != nil {
		return orchestrator.CreateResult{}, err
	}

	out, err := c.lambda.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: aws.String(name),
		Runtime:      lambdatypes.Runtime(req.Param("runtime", defaultRuntime)),
		Handler:      aws.String(req.Param("handler", defaultHandler)),
		Role:         aws.String(roleARN),
		Code:         &lambdatypes.FunctionCode{ZipFile: code},
		Description:  aws.String(req.Param("description", "Created by lifecycle step "+req.Step)),
		Timeout:      aws.Int32(int32(timeout)),
		MemorySize:   aws.Int32(int32(memory)),
		Environment:  &lambdatypes.Environment{Variables: envParams(req.Params)},
		Tags:         map[string]string{"lifecycle:step": req.Step},
	})
	if err != nil {
		// ResourceConflict here means the name is taken, not an update in progress.
		return orchestrator.CreateResult{}, createError("create function "+name, err, codeResourceConflict)
	}
	c.logger.Info("function created", "function", name, "arn", aws.ToString(out.FunctionArn))

	waiter := lambda.NewFunctionActiveV2Waiter(c.lambda)
	if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)}, c.waitTimeout); err != nil {
		// The function exists but never became usable; remove it so nothing is orphaned.
		if _, delErr := c.lambda.DeleteFunction(context.WithoutCancel(ctx), &lambda.DeleteFunctionInput{FunctionName: aws.String(name)}); delErr != nil {
			c.logger.Error("failed to remove function that never became active", "function", name, "error", delErr)
		}
		return orchestrator.CreateResult{}, fmt.Errorf("function %s did not become active: %w", name, err)
	}

	return orchestrator.CreateResult{
		ExternalID: name,
		Attributes: map[string]string{
			"arn":         aws.ToString(out.FunctionArn),
			"name":        name,
			"runtime":     string(out.Runtime),
			"role":        roleARN,
			"code_sha256": aws.ToString(out.CodeSha256),
			"log_group":   "/aws/lambda/" + name,
		},
	}, nil
}

// Delete deletes the function.
func (c *FunctionCapability) Delete(ctx context.Context, h orchestrator.ResourceHandle) error {
	_, err := c.lambda.DeleteFunction(ctx, &lambda.DeleteFunctionInput{FunctionName: aws.String(h.ExternalID)})
	if err != nil {
		return deleteError("delete function "+h.ExternalID, err)
	}
	c.logger.Info("function deleted", "function", h.ExternalID)
	return nil
}

// Invoke calls the function synchronously with payload encoded as JSON and
// decodes the JSON response. A function error is returned as an error.
func (c *FunctionCapability) Invoke(ctx context.Context, unit orchestrator.ResourceHandle, payload any) (any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	out, err := c.lambda.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(unit.ExternalID),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", unit.ExternalID, err)
	}
	if out.FunctionError != nil {
		return nil, fmt.Errorf("invoke %s: function error %s: %s", unit.ExternalID, aws.ToString(out.FunctionError), string(out.Payload))
	}
	if len(out.Payload) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(out.Payload, &result); err != nil {
		return nil, fmt.Errorf("decoding response of %s: %w", unit.ExternalID, err)
	}
	return result, nil
}

// Inspect reports the function's configuration and state.
func (c *FunctionCapability) Inspect(ctx context.Context, h orchestrator.ResourceHandle) (map[string]string, error) {
	out, err := c.lambda.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(h.ExternalID)})
	if err != nil {
		return nil, fmt.Errorf("get function %s: %w", h.ExternalID, err)
	}
	cfg := out.Configuration
	if cfg == nil {
		return nil, fmt.Errorf("get function %s: no configuration returned", h.ExternalID)
	}
	state := map[string]string{
		"state":              string(cfg.State),
		"last_update_status": string(cfg.LastUpdateStatus),
		"runtime":            string(cfg.Runtime),
		"handler":            aws.ToString(cfg.Handler),
		"memory_mb":          strconv.Itoa(int(aws.ToInt32(cfg.MemorySize))),
		"timeout_s":          strconv.Itoa(int(aws.ToInt32(cfg.Timeout))),
		"code_size":          strconv.FormatInt(cfg.CodeSize, 10),
		"last_modified":      aws.ToString(cfg.LastModified),
		"description":        aws.ToString(cfg.Description),
	}
	if cfg.Environment != nil {
		for k, v := range cfg.Environment.Variables {
			state["env."+k] = v
		}
	}
	return state, nil
}

// FunctionConfigCapability updates the configuration of the function it depends on.
// Deleting it does nothing; the change disappears with the function.
//
// Params:
//   - env.KEY: environment variables merged into the current ones
//   - description, timeout, memory
type FunctionConfigCapability struct {
	lambda      LambdaAPI
	waitTimeout time.Duration
	logger      *slog.Logger
}

// NewFunctionConfigCapability creates a configuration capability.
func NewFunctionConfigCapability(client LambdaAPI, logger *slog.Logger) *FunctionConfigCapability {
	if logger == nil {
		logger = slog.Default()
	}
	return &FunctionConfigCapability{
		lambda:      client,
		waitTimeout: defaultWaitTimeout,
		logger:      logger.With("component", "aws.function_config"),
	}
}

// Create applies the update. An update already in progress is a transient error.
func (c *FunctionConfigCapability) Create(ctx context.Context, req orchestrator.CreateRequest) (orchestrator.CreateResult, error) {
	unit, ok := req.Dependency(orchestrator.KindDeployedUnit)
	if !ok {
		return orchestrator.CreateResult{}, fmt.Errorf("configuration %s: no deployed_unit dependency", req.Step)
	}
	name := unit.ExternalID

	current, err := c.lambda.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)})
	if err != nil {
		return orchestrator.CreateResult{}, createError("get function "+name, err)
	}
	env := map[string]string{}
	if current.Configuration != nil && current.Configuration.Environment != nil {
		maps.Copy(env, current.Configuration.Environment.Variables)
	}
	changed := envParams(req.Params)
	maps.Copy(env, changed)

	in := &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(name),
		Environment:  &lambdatypes.Environment{Variables: env},
	}
	if d := req.Params["description"]; d != "" {
		in.Description = aws.String(d)
	}
	if req.Params["timeout"] != "" {
		timeout, err := intParam(req, "timeout", 0)
		if err != nil {
			return orchestrator.CreateResult{}, err
		}
		in.Timeout = aws.Int32(int32(timeout))
	}
	if req.Params["memory"] != "" {
		memory, err := intParam(req, "memory", 0)
		if err != nil {
			return orchestrator.CreateResult{}, err
		}
		in.MemorySize = aws.Int32(int32(memory))
	}

	out, err := c.lambda.UpdateFunctionConfiguration(ctx, in)
	if err != nil {
		return orchestrator.CreateResult{}, createError("update function configuration "+name, err)
	}

	waiter := lambda.NewFunctionUpdatedV2Waiter(c.lambda)
	if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)}, c.waitTimeout); err != nil {
		return orchestrator.CreateResult{}, fmt.Errorf("function %s update did not complete: %w", name, err)
	}

	keys := make([]string, 0, len(changed))
	for k := range changed {
		keys = append(keys, k)
	}
	c.logger.Info("function configuration updated", "function", name, "env_keys", keys)
	return orchestrator.CreateResult{
		ExternalID: name + "@" + aws.ToString(out.RevisionId),
		Attributes: map[string]string{
			"function":    name,
			"revision_id": aws.ToString(out.RevisionId),
		},
	}, nil
}

// Delete is a no-op.
func (c *FunctionConfigCapability) Delete(ctx context.Context, h orchestrator.ResourceHandle) error {
	return nil
}

func envParams(params map[string]string) map[string]string {
	env := map[string]string{}
	for k, v := range params {
		if key, ok := strings.CutPrefix(k, "env."); ok {
			env[key] = v
		}
	}
	return env
}

func intParam(req orchestrator.CreateRequest, name string, def int) (int, error) {
	s := req.Params[name]
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("step %s: %s must be a positive integer, got %q", req.Step, name, s)
	}
	return n, nil
}
