package models

import (
	"strings"

	"pulse/pkg/errors"
)

// Validate enforces the per-type payload invariants. The messages match what the
// client verbs report to callers.
func Validate(p *Payload) error {
	if p == nil {
		return errors.InvalidArgument("payload cannot be nil")
	}

	if !p.Type.Valid() {
		return errors.InvalidArgument("unknown payload type: " + string(p.Type)).WithDetail("field", "type")
	}

	if p.MessageID == "" {
		return errors.InvalidArgument("message id is required").WithDetail("field", "messageId")
	}

	if p.Timestamp == "" {
		return errors.InvalidArgument("timestamp is required").WithDetail("field", "timestamp")
	}

	if p.UserID == "" && p.AnonymousID == "" {
		return errors.InvalidArgument("either userId or anonymousId must be present").WithDetail("field", "anonymousId")
	}

	switch p.Type {
	case EventTrack:
		if strings.TrimSpace(p.Event) == "" {
			return errors.InvalidArgument(errors.MsgTrackEvent).WithDetail("field", "event")
		}
	case EventScreen:
		if p.Name == "" && p.Category == "" {
			return errors.InvalidArgument(errors.MsgScreenArgs).WithDetail("field", "name")
		}
	case EventGroup:
		if p.GroupID == "" {
			return errors.InvalidArgument(errors.MsgGroupID).WithDetail("field", "groupId")
		}
	case EventAlias:
		if p.UserID == "" {
			return errors.InvalidArgument(errors.MsgAliasID).WithDetail("field", "userId")
		}
	}

	return nil
}
