package testutil

import "time"

// ServiceCall is a service call received by the mock server
type ServiceCall struct {
	Timestamp   time.Time
	Domain      string
	Service     string
	ServiceData map[string]interface{}
}

// EntityID returns the entity_id of the call, or ""
func (c ServiceCall) EntityID() string {
	id, _ := c.ServiceData["entity_id"].(string)
	return id
}

// FilterServiceCalls keeps the calls to domain.service
func FilterServiceCalls(calls []ServiceCall, domain, service string) []ServiceCall {
	var filtered []ServiceCall
	for _, call := range calls {
		if call.Domain == domain && call.Service == service {
			filtered = append(filtered, call)
		}
	}
	return filtered
}

// BrightnessSteps returns the brightness_pct values sent to entityID, in
// the order they were sent
func BrightnessSteps(calls []ServiceCall, entityID string) []int {
	var steps []int
	for _, call := range FilterServiceCalls(calls, "light", "turn_on") {
		if call.EntityID() != entityID {
			continue
		}
		if pct, ok := call.ServiceData["brightness_pct"].(float64); ok {
			steps = append(steps, int(pct))
		}
	}
	return steps
}
