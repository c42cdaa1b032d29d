package awscloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

const defaultTrustedService = "lambda.amazonaws.com"

// RoleCapability creates an IAM role that a service can assume and attaches
// managed policies to it.
//
// Params:
//   - name: role name (default: the step name)
//   - service: principal trusted to assume the role (default lambda.amazonaws.com)
//   - policies: comma-separated managed policy ARNs
//   - description
type RoleCapability struct {
	iam    IAMAPI
	logger *slog.Logger
}

// NewRoleCapability creates a role capability.
func NewRoleCapability(client IAMAPI, logger *slog.Logger) *RoleCapability {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleCapability{iam: client, logger: logger.With("component", "aws.role")}
}

// TrustPolicy returns the assume-role policy document for service.
func TrustPolicy(service string) (string, error) {
	doc := map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{{
			"Effect":    "Allow",
			"Principal": map[string]string{"Service": service},
			"Action":    "sts:AssumeRole",
		}},
	}
	b, err := json.Marshal(doc)
	return string(b), err
}

// Create creates the role and attaches its policies. If an attachment fails the
// role is removed again so no half-configured role is left behind.
func (c *RoleCapability) Create(ctx context.Context, req orchestrator.CreateRequest) (orchestrator.CreateResult, error) {
	name := req.Param("name", req.Step)
	trust, err := TrustPolicy(req.Param("service", defaultTrustedService))
	if err != nil {
		return orchestrator.CreateResult{}, err
	}

	out, err := c.iam.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(trust),
		Description:              aws.String(req.Param("description", "Created by lifecycle step "+req.Step)),
		Tags:                     []iamtypes.Tag{{Key: aws.String("lifecycle:step"), Value: aws.String(req.Step)}},
	})
	if err != nil {
		return orchestrator.CreateResult{}, createError("create role "+name, err)
	}
	arn := aws.ToString(out.Role.Arn)
	c.logger.Info("role created", "role", name, "arn", arn)

	policies := splitList(req.Params["policies"])
	for _, p := range policies {
		_, err := c.iam.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(name),
			PolicyArn: aws.String(p),
		})
		if err != nil {
			cleanupErr := c.remove(ctx, name)
			return orchestrator.CreateResult{}, errors.Join(
				fmt.Errorf("attach %s to role %s: %w", p, name, err),
				cleanupErr,
			)
		}
		c.logger.Info("policy attached", "role", name, "policy", p)
	}

	return orchestrator.CreateResult{
		ExternalID: name,
		Attributes: map[string]string{
			"arn":      arn,
			"name":     name,
			"role_id":  aws.ToString(out.Role.RoleId),
			"policies": strings.Join(policies, ","),
		},
	}, nil
}

// Delete detaches every managed policy and deletes the role.
func (c *RoleCapability) Delete(ctx context.Context, h orchestrator.ResourceHandle) error {
	return c.remove(ctx, h.ExternalID)
}

func (c *RoleCapability) remove(ctx context.Context, name string) error {
	paginator := iam.NewListAttachedRolePoliciesPaginator(c.iam, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(name),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleteError("list policies of role "+name, err)
		}
		for _, p := range page.AttachedPolicies {
			_, err := c.iam.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
				RoleName:  aws.String(name),
				PolicyArn: p.PolicyArn,
			})
			if err != nil && !isAbsent(err) {
				return deleteError("detach "+aws.ToString(p.PolicyArn)+" from role "+name, err)
			}
			c.logger.Info("policy detached", "role", name, "policy", aws.ToString(p.PolicyArn))
		}
	}

	if _, err := c.iam.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(name)}); err != nil {
		return deleteError("delete role "+name, err)
	}
	c.logger.Info("role deleted", "role", name)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
