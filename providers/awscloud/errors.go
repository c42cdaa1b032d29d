package awscloud

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

// Error codes returned by IAM, Lambda and CloudWatch Logs.
const (
	codeNoSuchEntity          = "NoSuchEntity"
	codeDeleteConflict        = "DeleteConflict"
	codeResourceNotFound      = "ResourceNotFoundException"
	codeResourceConflict      = "ResourceConflictException"
	codeResourceExists        = "ResourceAlreadyExistsException"
	codeInvalidParameterValue = "InvalidParameterValueException"
	codeThrottling            = "ThrottlingException"
	codeTooManyRequests       = "TooManyRequestsException"
)

// apiCode returns the service error code of err, or "" if err is not an API error.
func apiCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

func apiMessage(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorMessage()
	}
	return ""
}

// roleNotAssumable matches the error Lambda returns while a new role has not
// propagated to it yet.
func roleNotAssumable(err error) bool {
	return apiCode(err) == codeInvalidParameterValue &&
		strings.Contains(apiMessage(err), "cannot be assumed")
}

func isTransient(err error) bool {
	switch apiCode(err) {
	case codeThrottling, codeTooManyRequests, codeResourceConflict, codeDeleteConflict:
		return true
	}
	return roleNotAssumable(err)
}

func isAbsent(err error) bool {
	switch apiCode(err) {
	case codeNoSuchEntity, codeResourceNotFound:
		return true
	}
	return false
}

// createError classifies an error from a create call. Codes listed in
// permanent are never transient for this call.
func createError(op string, err error, permanent ...string) error {
	if isTransient(err) && !slices.Contains(permanent, apiCode(err)) {
		return orchestrator.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// deleteError classifies an error from a delete call.
func deleteError(op string, err error) error {
	switch {
	case isAbsent(err):
		return fmt.Errorf("%s: %w: %w", op, orchestrator.ErrResourceAbsent, err)
	case isTransient(err):
		return orchestrator.Transient(op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
