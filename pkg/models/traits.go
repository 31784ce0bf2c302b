package models

import (
	"github.com/google/uuid"
)

const (
	TraitUserID      = "userId"
	TraitAnonymousID = "anonymousId"
)

// Traits is the accumulated set of user attributes.
type Traits map[string]interface{}

// NewTraits returns traits holding only a freshly generated anonymous id.
func NewTraits() Traits {
	return Traits{TraitAnonymousID: uuid.NewString()}
}

func (t Traits) UserID() string {
	s, _ := t[TraitUserID].(string)
	return s
}

func (t Traits) AnonymousID() string {
	s, _ := t[TraitAnonymousID].(string)
	return s
}

// CurrentID is the user id if one was identified, else the anonymous id.
func (t Traits) CurrentID() string {
	if id := t.UserID(); id != "" {
		return id
	}
	return t.AnonymousID()
}

// Merge returns a copy of t overlaid with other; other wins on conflict.
func (t Traits) Merge(other map[string]interface{}) Traits {
	out := t.Copy()
	if out == nil {
		out = Traits{}
	}
	for k, v := range other {
		out[k] = copyValue(v)
	}
	return out
}

func (t Traits) Copy() Traits {
	if t == nil {
		return nil
	}
	return Traits(DeepCopy(map[string]interface{}(t)))
}
