package awscloud

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logstypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

// Inspect reads recentEventsFetched events from the latest stream and reports
// the last recentEventsReported of them.
const (
	recentEventsFetched  = 10
	recentEventsReported = 5
)

// LogGroupCapability manages the CloudWatch log group of a function.
//
// Params:
//   - name: log group name (default /aws/lambda/<function> from the deployed_unit dependency)
//   - retention_days
type LogGroupCapability struct {
	logs   LogsAPI
	logger *slog.Logger
}

// NewLogGroupCapability creates a log group capability.
func NewLogGroupCapability(client LogsAPI, logger *slog.Logger) *LogGroupCapability {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogGroupCapability{logs: client, logger: logger.With("component", "aws.log_group")}
}

// Create creates the log group. A group that already exists, for example because
// the function logged before this step ran, is adopted.
func (c *LogGroupCapability) Create(ctx context.Context, req orchestrator.CreateRequest) (orchestrator.CreateResult, error) {
	name := req.Params["name"]
	if name == "" {
		unit, ok := req.Dependency(orchestrator.KindDeployedUnit)
		if !ok {
			return orchestrator.CreateResult{}, fmt.Errorf("log group %s: no name param or deployed_unit dependency", req.Step)
		}
		name = "/aws/lambda/" + unit.ExternalID
	}

	adopted := false
	_, err := c.logs.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(name),
		Tags:         map[string]string{"lifecycle:step": req.Step},
	})
	switch {
	case err == nil:
		c.logger.Info("log group created", "log_group", name)
	case apiCode(err) == codeResourceExists:
		adopted = true
		c.logger.Info("log group already exists, adopting it", "log_group", name)
	default:
		return orchestrator.CreateResult{}, createError("create log group "+name, err)
	}

	attrs := map[string]string{"name": name, "adopted": strconv.FormatBool(adopted)}
	if s := req.Params["retention_days"]; s != "" {
		days, err := intParam(req, "retention_days", 0)
		if err != nil {
			return orchestrator.CreateResult{}, err
		}
		_, err = c.logs.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
			LogGroupName:    aws.String(name),
			RetentionInDays: aws.Int32(int32(days)),
		})
		if err != nil {
			if !adopted {
				c.deleteQuietly(ctx, name)
			}
			return orchestrator.CreateResult{}, createError("set retention of "+name, err)
		}
		attrs["retention_days"] = s
	}
	return orchestrator.CreateResult{ExternalID: name, Attributes: attrs}, nil
}

// Delete deletes the log group.
func (c *LogGroupCapability) Delete(ctx context.Context, h orchestrator.ResourceHandle) error {
	_, err := c.logs.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{LogGroupName: aws.String(h.ExternalID)})
	if err != nil {
		return deleteError("delete log group "+h.ExternalID, err)
	}
	c.logger.Info("log group deleted", "log_group", h.ExternalID)
	return nil
}

// Inspect reports the group's most recently written stream and its last events
// as event.1 (oldest) to event.N (newest).
func (c *LogGroupCapability) Inspect(ctx context.Context, h orchestrator.ResourceHandle) (map[string]string, error) {
	streams, err := c.logs.DescribeLogStreams(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName: aws.String(h.ExternalID),
		OrderBy:      logstypes.OrderByLastEventTime,
		Descending:   aws.Bool(true),
		Limit:        aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("describe log streams of %s: %w", h.ExternalID, err)
	}
	state := map[string]string{"latest_stream": "", "recent_events": "0"}
	if len(streams.LogStreams) == 0 {
		return state, nil
	}

	stream := streams.LogStreams[0]
	name := aws.ToString(stream.LogStreamName)
	state["latest_stream"] = name
	if stream.LastEventTimestamp != nil {
		state["last_event_time"] = formatMillis(*stream.LastEventTimestamp)
	}

	out, err := c.logs.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(h.ExternalID),
		LogStreamName: aws.String(name),
		Limit:         aws.Int32(recentEventsFetched),
	})
	if err != nil {
		return nil, fmt.Errorf("get log events of %s/%s: %w", h.ExternalID, name, err)
	}
	events := out.Events
	if len(events) > recentEventsReported {
		events = events[len(events)-recentEventsReported:]
	}
	for i, ev := range events {
		msg := strings.TrimSpace(aws.ToString(ev.Message))
		if ev.Timestamp != nil {
			msg = formatMillis(*ev.Timestamp) + " " + msg
		}
		state["event."+strconv.Itoa(i+1)] = msg
	}
	state["recent_events"] = strconv.Itoa(len(events))
	return state, nil
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func (c *LogGroupCapability) deleteQuietly(ctx context.Context, name string) {
	_, err := c.logs.DeleteLogGroup(context.WithoutCancel(ctx), &cloudwatchlogs.DeleteLogGroupInput{LogGroupName: aws.String(name)})
	if err != nil {
		c.logger.Error("failed to remove log group after error", "log_group", name, "error", err)
	}
}
