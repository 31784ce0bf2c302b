package relay

import "pulse/pkg/models"

// CallOptions are the per-call overrides accepted by every verb.
type CallOptions struct {
	Context      map[string]interface{} `json:"context,omitempty"`
	Integrations map[string]interface{} `json:"integrations,omitempty"`
}

func (o CallOptions) toOptions() *models.Options {
	return &models.Options{Context: o.Context, Integrations: o.Integrations}
}

type IdentifyRequest struct {
	CallOptions
	UserID string                 `json:"userId"`
	Traits map[string]interface{} `json:"traits"`
}

type TrackRequest struct {
	CallOptions
	Event      string                 `json:"event"`
	Properties map[string]interface{} `json:"properties"`
}

type ScreenRequest struct {
	CallOptions
	Category   string                 `json:"category"`
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties"`
}

type GroupRequest struct {
	CallOptions
	GroupID string                 `json:"groupId"`
	Traits  map[string]interface{} `json:"traits"`
}

type AliasRequest struct {
	CallOptions
	UserID string `json:"userId"`
}

type AcceptedResponse struct {
	Status string `json:"status"`
}
