package models

import (
	"strings"

	"pulse/pkg/errors"
)

// AllIntegrations is the integrations-map key that switches every destination at once.
const AllIntegrations = "All"

// Options carries per-call context and integration overrides.
type Options struct {
	Context      map[string]interface{}
	Integrations map[string]interface{}
}

func NewOptions() *Options {
	return &Options{
		Context:      make(map[string]interface{}),
		Integrations: make(map[string]interface{}),
	}
}

// SetIntegration enables or disables a single destination, or every destination when
// key is AllIntegrations.
func (o *Options) SetIntegration(key string, enabled bool) error {
	if strings.TrimSpace(key) == "" {
		return errors.InvalidArgument(errors.MsgIntegrationKey)
	}
	if o.Integrations == nil {
		o.Integrations = make(map[string]interface{})
	}
	o.Integrations[key] = enabled
	return nil
}

// SetIntegrationOptions attaches destination specific options, which also enables it.
func (o *Options) SetIntegrationOptions(key string, opts map[string]interface{}) error {
	if strings.TrimSpace(key) == "" {
		return errors.InvalidArgument(errors.MsgIntegrationKey)
	}
	if o.Integrations == nil {
		o.Integrations = make(map[string]interface{})
	}
	o.Integrations[key] = DeepCopy(opts)
	return nil
}

func (o *Options) PutContext(key string, value interface{}) *Options {
	if o.Context == nil {
		o.Context = make(map[string]interface{})
	}
	o.Context[key] = value
	return o
}

// Copy is taken at every API boundary; a nil receiver yields empty options.
func (o *Options) Copy() *Options {
	if o == nil {
		return NewOptions()
	}
	c := &Options{
		Context:      DeepCopy(o.Context),
		Integrations: DeepCopy(o.Integrations),
	}
	if c.Context == nil {
		c.Context = make(map[string]interface{})
	}
	if c.Integrations == nil {
		c.Integrations = make(map[string]interface{})
	}
	return c
}

// Over layers o on top of defaults and returns a fresh value; neither input changes.
func (o *Options) Over(defaults *Options) *Options {
	base := defaults.Copy()
	top := o.Copy()
	return &Options{
		Context:      Merge(base.Context, top.Context),
		Integrations: Merge(base.Integrations, top.Integrations),
	}
}
