package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AreaHandler multiplies the length and width fields of the payload and returns
// {"area": n} encoded as a JSON string.
func AreaHandler(ctx context.Context, env map[string]string, payload any) (any, error) {
	event, ok := payload.(map[string]any)
	if !ok {
		return nil, errors.New("payload must be an object")
	}
	length, err := number(event, "length")
	if err != nil {
		return nil, err
	}
	width, err := number(event, "width")
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(map[string]any{"area": length * width})
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// DirectHandler dispatches on the action field: process_data upper-cases
// data.items, health_check reports health, anything else echoes data.
// The response is {"statusCode": 200, "body": "<json>"}.
func DirectHandler(ctx context.Context, env map[string]string, payload any) (any, error) {
	event, _ := payload.(map[string]any)
	action, _ := event["action"].(string)
	if action == "" {
		action = "default"
	}
	data, _ := event["data"].(map[string]any)

	var result map[string]any
	switch action {
	case "process_data":
		items, _ := data["items"].([]any)
		processed := make([]map[string]any, 0, len(items))
		for _, item := range items {
			out := fmt.Sprint(item)
			if s, ok := item.(string); ok {
				out = strings.ToUpper(s)
			}
			processed = append(processed, map[string]any{"original": item, "processed": out})
		}
		result = map[string]any{"processed_count": len(processed), "processed_items": processed}
	case "health_check":
		result = map[string]any{"status": "healthy", "checks": map[string]any{"memory_usage": "normal"}}
	default:
		result = map[string]any{"message": "Default processing completed", "received_data": data}
	}

	body, err := json.Marshal(map[string]any{
		"action":      action,
		"result":      result,
		"environment": env,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"statusCode": 200, "body": string(body)}, nil
}

func number(event map[string]any, key string) (float64, error) {
	switch v := event[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case nil:
		return 0, fmt.Errorf("missing %s", key)
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}
