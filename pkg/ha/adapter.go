package ha

import (
	"wakeuplight/internal/ha"
)

// clientAdapter exposes an internal client through Client
type clientAdapter struct {
	client ha.HAClient
}

// WrapClient exposes c to plugins
func WrapClient(c ha.HAClient) Client {
	return &clientAdapter{client: c}
}

// UnwrapClient returns the internal client behind c, or nil when c was not
// created by WrapClient
func UnwrapClient(c Client) ha.HAClient {
	if adapter, ok := c.(*clientAdapter); ok {
		return adapter.client
	}
	return nil
}

func (a *clientAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

func (a *clientAdapter) GetState(entityID string) (*State, error) {
	st, err := a.client.GetState(entityID)
	if err != nil {
		return nil, err
	}
	return convert(st), nil
}

func (a *clientAdapter) CallService(domain, service string, data map[string]interface{}) error {
	return a.client.CallService(domain, service, data)
}

func (a *clientAdapter) SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error) {
	return a.client.SubscribeStateChanges(entityID, func(entity string, oldState, newState *ha.State) {
		handler(entity, convert(oldState), convert(newState))
	})
}

func convert(st *ha.State) *State {
	if st == nil {
		return nil
	}
	return &State{
		EntityID:    st.EntityID,
		State:       st.State,
		Attributes:  st.Attributes,
		LastChanged: st.LastChanged,
		LastUpdated: st.LastUpdated,
	}
}
